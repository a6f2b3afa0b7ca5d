package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-mcp/internal/tools"
)

type rpcReply struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func roundTrip(t *testing.T, d *tools.Dispatcher, msg string) rpcReply {
	t.Helper()
	out := NewMCP(d, "test").HandleMessage(context.Background(), json.RawMessage(msg))
	require.NotNil(t, out)
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	var resp rpcReply
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func catalogNames(d *tools.Dispatcher) []string {
	names := make([]string, 0, len(d.Tools()))
	for _, tool := range d.Tools() {
		names = append(names, tool.Name)
	}
	return names
}

func TestMCPListToolsKeepsCatalogOrder(t *testing.T) {
	d := newDispatcher(t, `{}`)
	resp := roundTrip(t, d, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Nil(t, resp.Error)

	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, catalogNames(d), names)
	assert.Equal(t, tools.GetStats, names[0])
	assert.Equal(t, tools.DownloadInvoicePDF, names[len(names)-1])
}

func TestMCPCallTool(t *testing.T) {
	resp := roundTrip(t, newDispatcher(t, `{"id":42}`),
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"billing_get_client","arguments":{"id":"42"}}}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, 2, resp.ID)

	var env envelope
	require.NoError(t, json.Unmarshal(resp.Result, &env))
	assert.False(t, env.IsError)
	require.Len(t, env.Content, 1)
	assert.Equal(t, "{\n  \"id\": 42\n}", env.Content[0].Text)
}

func TestMCPCallToolInvalidArguments(t *testing.T) {
	resp := roundTrip(t, newDispatcher(t, `{}`),
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"billing_get_invoice","arguments":{}}}`)
	require.Nil(t, resp.Error)

	var env envelope
	require.NoError(t, json.Unmarshal(resp.Result, &env))
	assert.True(t, env.IsError)
	assert.Contains(t, env.Content[0].Text, `missing required argument "id"`)
}

func TestMCPCallUnknownToolReturnsErrorEnvelope(t *testing.T) {
	for _, name := range []string{"billing_nope", "", "BILLING_GET_STATS"} {
		msg, _ := json.Marshal(map[string]any{
			"jsonrpc": "2.0", "id": 4, "method": "tools/call",
			"params": map[string]any{"name": name, "arguments": map[string]any{}},
		})
		resp := roundTrip(t, newDispatcher(t, `{}`), string(msg))
		require.Nil(t, resp.Error, name)
		assert.Equal(t, 4, resp.ID)

		var env envelope
		require.NoError(t, json.Unmarshal(resp.Result, &env))
		assert.True(t, env.IsError)
		require.Len(t, env.Content, 1)
		assert.Equal(t, "text", env.Content[0].Type)
		assert.Equal(t, "Unknown tool: "+name, env.Content[0].Text)
	}
}

func TestServeStdioLineProtocol(t *testing.T) {
	d := newDispatcher(t, `{"total":3}`)
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		``,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"billing_nope","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"billing_get_stats","arguments":{}}}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, NewMCP(d, "test").ServeStdio(context.Background(), strings.NewReader(in), &out, quietLogger()))

	var replies []rpcReply
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r rpcReply
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		replies = append(replies, r)
	}
	require.Len(t, replies, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{replies[0].ID, replies[1].ID, replies[2].ID})

	var unknown envelope
	require.NoError(t, json.Unmarshal(replies[1].Result, &unknown))
	assert.True(t, unknown.IsError)
	assert.Equal(t, "Unknown tool: billing_nope", unknown.Content[0].Text)

	var stats envelope
	require.NoError(t, json.Unmarshal(replies[2].Result, &stats))
	assert.False(t, stats.IsError)
	assert.Equal(t, "{\n  \"total\": 3\n}", stats.Content[0].Text)
}

func TestServeStdioStopsOnCancel(t *testing.T) {
	m := NewMCP(newDispatcher(t, `{}`), "test")
	in, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.ServeStdio(ctx, in, io.Discard, quietLogger()) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeStdio did not return after cancel")
	}
}
