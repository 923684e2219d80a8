package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// Request describes one outbound API call. It is a value: the client
// never mutates a caller's Request, and a replay is a copy with a higher
// attempt count.
type Request struct {
	Method string
	// Path is relative to the client's base URL and may carry a query.
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// SkipAuth sends the request without a bearer token and returns a 401
	// to the caller as an ordinary APIError. Login and password reset use it.
	SkipAuth bool

	id      string
	attempt int
	// gen is the coordinator generation a replay was issued under.
	gen uint64
}

// NewRequest builds a request with a JSON body. A nil body sends none.
func NewRequest(method, path string, body any) (Request, error) {
	req := Request{
		Method: method,
		Path:   path,
		Header: make(http.Header),
		id:     uuid.NewString(),
	}

	if body == nil {
		return req, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return Request{}, fmt.Errorf("marshalling request body: %w", err)
	}

	req.Body = data
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

// ID returns the request identifier sent as X-Request-ID. A replay
// keeps the identifier of the original call.
func (r Request) ID() string { return r.id }

// Attempt is 0 for the first transmission and 1 for the replay after a
// credential renewal.
func (r Request) Attempt() int { return r.attempt }

func (r Request) retry(gen uint64) Request {
	r.attempt++
	r.gen = gen

	return r
}

// Response is a completed call with a non-error status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// Cookie returns the value of a cookie set by the response, or "".
func (r *Response) Cookie(name string) string {
	resp := http.Response{Header: r.Header}
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}

	return ""
}
