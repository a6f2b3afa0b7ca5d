// Package billing provides a minimal client for the billing REST API.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single upstream round trip when no client is supplied.
const DefaultTimeout = 30 * time.Second

// Client is a minimal HTTP client for the billing API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	log     logrus.FieldLogger
}

// New returns a new client. If httpClient is nil, a default with DefaultTimeout is used.
func New(baseURL string, httpClient *http.Client, log logrus.FieldLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient, log: log}
}

// Request performs one JSON call against BaseURL+endpoint. It never returns an error:
// HTTP and transport failures are folded into the Result.
func (c *Client) Request(ctx context.Context, method, endpoint string, body any) Result {
	url := c.BaseURL + endpoint

	var reqBody io.Reader
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return Result{Kind: TransportError, Text: fmt.Sprintf("Error encoding request body: %v", err)}
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return failure(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		res := failure(err)
		c.trace(method, url, payload, res)
		return res
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		res := failure(err)
		c.trace(method, url, payload, res)
		return res
	}

	res := Result{StatusCode: resp.StatusCode, Status: resp.Status}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Kind = HTTPError
		res.Text = fmt.Sprintf("Error: %d - %s", resp.StatusCode, raw)
	} else {
		res.Kind = Success
		res.Text = renderBody(resp.Header.Get("Content-Type"), raw)
	}
	c.trace(method, url, payload, res)
	return res
}

// Download fetches a binary payload with a bodyless GET.
func (c *Client) Download(ctx context.Context, endpoint string) Result {
	url := c.BaseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure(err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		res := failure(err)
		c.trace(http.MethodGet, url, nil, res)
		return res
	}
	defer resp.Body.Close()

	res := Result{StatusCode: resp.StatusCode, Status: resp.Status}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Kind = HTTPError
		res.Text = fmt.Sprintf("Failed to download PDF: %s", statusLine(resp))
		c.trace(http.MethodGet, url, nil, res)
		return res
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		res = failure(err)
		c.trace(http.MethodGet, url, nil, res)
		return res
	}
	res.Kind = Success
	res.Data = data
	res.Text = fmt.Sprintf("%d bytes", len(data))
	c.trace(http.MethodGet, url, nil, res)
	return res
}

// trace logs one upstream round trip at debug level.
func (c *Client) trace(method, url string, payload []byte, res Result) {
	c.log.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
		"body":   string(payload),
		"status": res.StatusCode,
		"kind":   res.Kind.String(),
	}).Debugf("upstream response: %s", res.Text)
}

func failure(err error) Result {
	if isTimeout(err) {
		return Result{Kind: Timeout, Text: fmt.Sprintf("Error: upstream request timed out: %v", err)}
	}
	return Result{Kind: TransportError, Text: fmt.Sprintf("Error connecting to API: %v", err)}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// renderBody pretty-prints JSON bodies and returns anything else verbatim.
func renderBody(contentType string, raw []byte) string {
	if !isJSON(contentType) {
		return string(raw)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(raw), "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "application/json")
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func statusLine(resp *http.Response) string {
	text := http.StatusText(resp.StatusCode)
	if s := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))); s != "" {
		text = s
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, text)
}
