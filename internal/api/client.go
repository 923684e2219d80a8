// Package api is the authenticated request pipeline shared by every
// backend call. Client attaches the current access token to each request
// and, when the backend answers 401, hands the request to a refresher
// that renews the token once and replays everything that expired while
// the renewal was in flight.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexjbarnes/campusctl/internal/session"
	"github.com/google/uuid"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads. Student lists with
	// embedded photo URLs are the largest payloads.
	maxAPIResponseBytes = 8 * 1024 * 1024

	DefaultRefreshPath    = "/api/user/refresh-token"
	DefaultRefreshTimeout = 10 * time.Second
)

// Options configures NewClient.
type Options struct {
	BaseURL string
	Session *session.Session

	// HTTPClient defaults to a client with a same-host redirect policy
	// and Timeout.
	HTTPClient *http.Client

	// Timeout applies to the default HTTPClient. Zero means 30 seconds.
	Timeout time.Duration

	RefreshPath string

	// RefreshTimeout bounds each renewal call. A renewal that runs out of
	// time fails like any other and ends the session.
	RefreshTimeout time.Duration

	// Logouter is told when the session ends because renewal failed.
	Logouter Logouter

	Logger *slog.Logger
}

// Client sends requests to the backend API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	refreshPath string
	session     *session.Session
	refresher   *refresher
	logger      *slog.Logger
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents bearer tokens from
// leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client bound to a session.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}

	if opts.Session == nil {
		return nil, errors.New("session is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		clientTimeout := opts.Timeout
		if clientTimeout <= 0 {
			clientTimeout = httpClientTimeout
		}

		httpClient = &http.Client{
			Timeout:       clientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	refreshPath := opts.RefreshPath
	if refreshPath == "" {
		refreshPath = DefaultRefreshPath
	}

	timeout := opts.RefreshTimeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		refreshPath: refreshPath,
		session:     opts.Session,
		logger:      logger,
	}

	c.refresher = &refresher{
		session:  opts.Session,
		renew:    c.renew,
		replay:   c.dispatch,
		timeout:  timeout,
		logouter: opts.Logouter,
		logger:   logger,
	}

	return c, nil
}

// Session returns the session the client reads tokens from.
func (c *Client) Session() *session.Session {
	return c.session
}

// StartSession installs the pair returned by a login and re-arms the
// refresher after a previous session expired.
func (c *Client) StartSession(creds session.Credentials) error {
	return c.refresher.startSession(creds)
}

// EndSession clears the credential pair after an explicit logout.
// Requests still waiting on a renewal fail with SessionExpiredError.
func (c *Client) EndSession() error {
	return c.refresher.endSession()
}

// Send transmits req with the current access token. A 401 on the first
// attempt is recovered by renewing the token and replaying req once;
// every other outcome is returned as is: *Response for success,
// *APIError for an error status, *TransportError when no response
// arrived, *SessionExpiredError when the session is over.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	if req.id == "" {
		req.id = uuid.NewString()
	}

	var token string
	if !req.SkipAuth {
		token = c.session.AccessToken()
	}

	return c.dispatch(ctx, req, token)
}

// dispatch performs one attempt with the given token and routes a 401
// to the refresher.
func (c *Client) dispatch(ctx context.Context, req Request, token string) (*Response, error) {
	resp, err := c.roundTrip(ctx, req, token)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && !req.SkipAuth:
		if req.attempt > 0 {
			return nil, c.refresher.rejectReplay(req.gen, newAPIError(req.Method, req.Path, resp.StatusCode, resp.Body))
		}

		return c.refresher.handleExpiry(ctx, req, token)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, newAPIError(req.Method, req.Path, resp.StatusCode, resp.Body)
	}

	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, req Request, token string) (*Response, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(req.Path, "?") {
			sep = "&"
		}

		target += sep + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}

	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	httpReq.Header.Set("X-Request-ID", req.id)

	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Err: fmt.Errorf("reading response: %w", err)}
	}

	c.logger.Debug("api call",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
		slog.Int("attempt", req.attempt),
		slog.String("request_id", req.id),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
		RequestID:  req.id,
	}, nil
}
