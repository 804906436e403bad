package transcription

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one transcription call.
const DefaultTimeout = 10 * time.Minute

// ErrTimeout is returned when the endpoint does not answer within the call timeout.
var ErrTimeout = errors.New("transcription request timed out")

// StatusError is a non-2xx answer from the endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transcription endpoint returned http %d: %s", e.StatusCode, snippet(e.Body))
}

// TransportError is a failure to reach the endpoint at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transcription endpoint unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout overrides DefaultTimeout; tests use short values.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func snippet(body string) string {
	clean := strings.Join(strings.Fields(body), " ")
	const limit = 200
	if r := []rune(clean); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return clean
}
