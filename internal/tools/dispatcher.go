package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"billing-mcp/internal/billing"
)

var (
	// ErrUnknownTool is returned by Lookup for names outside the catalog.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments wraps every local argument validation failure.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// argument injected by some MCP clients; never forwarded upstream.
const waitForPreviousTools = "waitForPreviousTools"

// Upstream is the subset of billing.Client the dispatcher needs.
type Upstream interface {
	Request(ctx context.Context, method, endpoint string, body any) billing.Result
	Download(ctx context.Context, endpoint string) billing.Result
}

// Dispatcher executes catalog tools against the billing API. It holds no
// mutable state and is safe for concurrent use.
type Dispatcher struct {
	upstream Upstream
	routes   []route
	index    map[string]int
	validate *validator.Validate
	fs       afero.Fs
	strict   bool
	log      logrus.FieldLogger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFs sets the filesystem PDF downloads are written to.
func WithFs(fs afero.Fs) Option { return func(d *Dispatcher) { d.fs = fs } }

// WithStrictErrors flags upstream HTTP and transport failures as error envelopes
// instead of embedding them in successful text results.
func WithStrictErrors(strict bool) Option { return func(d *Dispatcher) { d.strict = strict } }

// WithLogger sets the logger used for per-call entries.
func WithLogger(log logrus.FieldLogger) Option { return func(d *Dispatcher) { d.log = log } }

// NewDispatcher builds the catalog and binds it to upstream.
func NewDispatcher(upstream Upstream, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		upstream: upstream,
		routes:   catalog(),
		validate: newValidator(),
		fs:       afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		d.log = l
	}
	d.index = make(map[string]int, len(d.routes))
	for i, rt := range d.routes {
		d.index[rt.tool.Name] = i
	}
	return d
}

// Tools returns the catalog in its fixed order.
func (d *Dispatcher) Tools() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(d.routes))
	for _, rt := range d.routes {
		out = append(out, rt.tool)
	}
	return out
}

// Lookup returns the definition of the named tool.
func (d *Dispatcher) Lookup(name string) (mcp.Tool, error) {
	i, ok := d.index[name]
	if !ok {
		return mcp.Tool{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return d.routes[i].tool, nil
}

// Call executes one tool and always returns a well-formed envelope.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) (result *mcp.CallToolResult) {
	start := time.Now()
	log := d.log.WithFields(logrus.Fields{"call_id": uuid.NewString(), "tool": name})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("tool call panicked")
			result = mcp.NewToolResultError(fmt.Sprintf("internal error: %v", r))
		}
		log.WithFields(logrus.Fields{
			"duration": time.Since(start),
			"is_error": result.IsError,
		}).Info("tool call finished")
	}()

	i, ok := d.index[name]
	if !ok {
		return mcp.NewToolResultError("Unknown tool: " + name)
	}
	rt := d.routes[i]

	args = clean(args)
	bound, err := d.bind(rt, args)
	if err != nil {
		log.WithError(err).Warn("rejected tool arguments")
		return mcp.NewToolResultError(err.Error())
	}

	endpoint := rt.endpoint
	if p, ok := bound.(pathArgs); ok {
		endpoint = strings.ReplaceAll(endpoint, "{id}", url.PathEscape(p.pathID()))
	}

	if rt.download {
		return d.download(ctx, endpoint, bound.(*downloadArgs).OutputPath)
	}

	var body any
	if rt.forward {
		body = args
	}
	return d.envelope(d.upstream.Request(ctx, rt.method, endpoint, body))
}

func (d *Dispatcher) download(ctx context.Context, endpoint, outputPath string) *mcp.CallToolResult {
	res := d.upstream.Download(ctx, endpoint)
	if !res.OK() {
		return mcp.NewToolResultError(res.Text)
	}
	if err := afero.WriteFile(d.fs, outputPath, res.Data, 0o644); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to write PDF to %s: %v", outputPath, err))
	}
	return mcp.NewToolResultText("PDF successfully saved to " + outputPath)
}

func (d *Dispatcher) envelope(res billing.Result) *mcp.CallToolResult {
	if !res.OK() && d.strict {
		return mcp.NewToolResultError(res.Text)
	}
	return mcp.NewToolResultText(res.Text)
}

// clean copies args without client-injected control keys.
func clean(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if k == waitForPreviousTools {
			continue
		}
		out[k] = v
	}
	return out
}
