package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"billing-mcp/internal/tools"
)

// Name is the implementation name announced during the MCP handshake.
const Name = "billing-api-mcp"

// maxLineSize bounds a single JSON-RPC message read from stdin.
const maxLineSize = 10 * 1024 * 1024

// MCP serves the billing catalog over MCP. Protocol handling is delegated to
// mcp-go; calls to names outside the catalog are answered by the dispatcher
// so they get the same error envelope as every other failed call.
type MCP struct {
	server     *mcpserver.MCPServer
	dispatcher *tools.Dispatcher
}

// NewMCP registers every catalog tool on an MCP server backed by d.
func NewMCP(d *tools.Dispatcher, version string) *MCP {
	position := make(map[string]int)
	for i, tool := range d.Tools() {
		position[tool.Name] = i
	}

	s := mcpserver.NewMCPServer(Name, version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithToolFilter(func(_ context.Context, listed []mcp.Tool) []mcp.Tool {
			out := append([]mcp.Tool(nil), listed...)
			sort.SliceStable(out, func(i, j int) bool {
				return position[out[i].Name] < position[out[j].Name]
			})
			return out
		}),
	)
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return d.Call(ctx, req.Params.Name, req.GetArguments()), nil
	}
	for _, tool := range d.Tools() {
		s.AddTool(tool, handler)
	}
	return &MCP{server: s, dispatcher: d}
}

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

// HandleMessage processes one JSON-RPC message and returns the response to
// write back, or nil for notifications.
func (m *MCP) HandleMessage(ctx context.Context, raw json.RawMessage) any {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err == nil &&
		req.Method == string(mcp.MethodToolsCall) && len(req.ID) > 0 {
		if _, err := m.dispatcher.Lookup(req.Params.Name); err != nil {
			return rpcResponse{
				JSONRPC: mcp.JSONRPC_VERSION,
				ID:      req.ID,
				Result:  m.dispatcher.Call(ctx, req.Params.Name, req.Params.Arguments),
			}
		}
	}
	if resp := m.server.HandleMessage(ctx, raw); resp != nil {
		return resp
	}
	return nil
}

// ServeStdio reads newline-delimited JSON-RPC messages from in and writes one
// response line per request to out, until in is exhausted or ctx is cancelled.
// Messages are handled one at a time in arrival order.
func (m *MCP) ServeStdio(ctx context.Context, in io.Reader, out io.Writer, logger logrus.FieldLogger) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	logger.Info("Billing API MCP server running on stdio")
	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			return nil
		case line := <-lines:
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			resp := m.HandleMessage(ctx, line)
			if resp == nil {
				continue
			}
			if err := enc.Encode(resp); err != nil {
				logger.WithError(err).Error("write response")
				return fmt.Errorf("write stdout: %w", err)
			}
		}
	}
}
