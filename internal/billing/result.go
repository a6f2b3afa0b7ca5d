package billing

import (
	"errors"
	"fmt"
)

// Kind classifies the outcome of one upstream call.
type Kind int

const (
	Success Kind = iota
	HTTPError
	TransportError
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case HTTPError:
		return "http_error"
	case TransportError:
		return "transport_error"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ErrUpstream is wrapped by every error returned from Result.Err.
var ErrUpstream = errors.New("upstream request failed")

// Result is the single normalized outcome of a Request or Download call.
// Text is always populated; Data only carries the payload of a successful Download.
type Result struct {
	Kind       Kind
	StatusCode int
	Status     string
	Text       string
	Data       []byte
}

// OK reports whether the upstream call succeeded.
func (r Result) OK() bool { return r.Kind == Success }

// Err returns nil on success and an error carrying Text otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w (%s): %s", ErrUpstream, r.Kind, r.Text)
}
