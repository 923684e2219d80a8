package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/alexjbarnes/campusctl/internal/errors"
	"github.com/alexjbarnes/campusctl/internal/session"
	"github.com/tidwall/gjson"
)

//go:generate mockgen -source=refresh.go -destination=mock_logouter_test.go -package=api

// Logouter is notified once each time the session ends because the
// access token could not be renewed. By then the credential pair is
// already cleared.
type Logouter interface {
	Logout()
}

// LogoutFunc adapts a function to Logouter.
type LogoutFunc func()

// Logout calls f.
func (f LogoutFunc) Logout() { f() }

var (
	errNoRefreshToken  = errors.New("no refresh token stored")
	errLoggedOut       = errors.New("no active session")
	errSessionReplaced = errors.New("session replaced by a new login")
)

type refreshState int

const (
	stateIdle refreshState = iota
	stateRefreshing
	stateLoggedOut
)

func (s refreshState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRefreshing:
		return "refreshing"
	case stateLoggedOut:
		return "logged_out"
	}

	return "unknown"
}

type outcome struct {
	resp *Response
	err  error
}

// waiter is a request that got 401 and is parked until the renewal in
// flight settles. done has room for exactly one outcome so the drain
// never blocks on a caller that stopped waiting.
type waiter struct {
	ctx  context.Context
	req  Request
	done chan outcome
}

// refresher serializes access token renewal. At most one renewal runs at
// a time; requests expiring meanwhile queue behind it and are replayed
// in arrival order once it settles. mu guards state and queue and is
// never held across a network call.
type refresher struct {
	mu    sync.Mutex
	state refreshState
	queue []*waiter
	// gen identifies the current renewal so a stale one cannot settle a
	// queue that belongs to a later session.
	gen uint64

	session  *session.Session
	renew    func(ctx context.Context, refreshToken string) (session.Credentials, error)
	replay   func(ctx context.Context, req Request, token string) (*Response, error)
	timeout  time.Duration
	logouter Logouter
	logger   *slog.Logger

	renewals atomic.Int64
}

// handleExpiry settles a request that got 401 on its first attempt.
// sentWith is the access token the request carried.
func (r *refresher) handleExpiry(ctx context.Context, req Request, sentWith string) (*Response, error) {
	r.mu.Lock()

	switch r.state {
	case stateLoggedOut:
		r.mu.Unlock()
		return nil, &SessionExpiredError{Cause: errLoggedOut}
	case stateIdle:
		// A renewal finished while this request was on the wire.
		if current := r.session.AccessToken(); current != "" && current != sentWith {
			gen := r.gen
			r.mu.Unlock()
			r.logger.Debug("token renewed while request was in flight, replaying",
				slog.String("path", req.Path),
				slog.String("request_id", req.id),
			)

			return r.replay(ctx, req.retry(gen), current)
		}
	}

	w := &waiter{ctx: ctx, req: req, done: make(chan outcome, 1)}
	r.queue = append(r.queue, w)

	start := r.state == stateIdle
	if start {
		r.state = stateRefreshing
		r.gen++
	}

	gen := r.gen
	r.mu.Unlock()

	if start {
		go r.run(gen)
	}

	select {
	case out := <-w.done:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run performs one renewal and settles the queue.
func (r *refresher) run(gen uint64) {
	creds, err := r.renewOnce(r.session.RefreshToken())
	if err != nil {
		r.fail(gen, err)
		return
	}

	r.mu.Lock()
	if r.state != stateRefreshing || r.gen != gen {
		// The session ended or was replaced while renewing.
		r.mu.Unlock()
		return
	}

	if err := r.session.Renew(creds.AccessToken, creds.RefreshToken); err != nil {
		r.logger.Warn("failed to persist renewed credentials", slog.String("error", err.Error()))
	}

	queue := r.queue
	r.queue = nil
	r.state = stateIdle
	r.mu.Unlock()

	r.logger.Info("access token renewed",
		slog.Int("queued", len(queue)),
		slog.Bool("refresh_token_rotated", creds.RefreshToken != ""),
	)

	for _, w := range queue {
		if err := w.ctx.Err(); err != nil {
			w.done <- outcome{err: err}
			continue
		}

		if err := r.superseded(gen); err != nil {
			w.done <- outcome{err: &SessionExpiredError{Cause: err}}
			continue
		}

		resp, err := r.replay(w.ctx, w.req.retry(gen), creds.AccessToken)
		w.done <- outcome{resp: resp, err: err}
	}
}

// renewOnce calls the renewal endpoint under the configured timeout.
// The bound holds even if renew ignores its context.
func (r *refresher) renewOnce(refreshToken string) (session.Credentials, error) {
	if refreshToken == "" {
		return session.Credentials{}, errNoRefreshToken
	}

	r.renewals.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	type result struct {
		creds session.Credentials
		err   error
	}

	ch := make(chan result, 1)

	go func() {
		creds, err := r.renew(ctx, refreshToken)
		ch <- result{creds: creds, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return session.Credentials{}, fmt.Errorf("renewing access token: %w", res.err)
		}

		return res.creds, nil
	case <-ctx.Done():
		return session.Credentials{}, fmt.Errorf("renewing access token: timed out after %s: %w", r.timeout, ctx.Err())
	}
}

// fail ends the session after a failed renewal.
func (r *refresher) fail(gen uint64, cause error) {
	r.mu.Lock()
	if r.state != stateRefreshing || r.gen != gen {
		r.mu.Unlock()
		return
	}

	queue := r.terminateLocked()
	r.mu.Unlock()

	r.logger.Warn("access token renewal failed, ending session",
		slog.String("error", cause.Error()),
		slog.Int("queued", len(queue)),
	)

	r.reject(queue, cause)
	r.notifyLogout()
}

// rejectReplay handles a replayed request that got 401 again. It is
// never requeued. The session ends only if the replay belongs to the
// current generation; a replay left over from an earlier session must
// not end a newer one.
func (r *refresher) rejectReplay(gen uint64, cause error) error {
	r.mu.Lock()
	if r.state == stateLoggedOut || r.gen != gen {
		r.mu.Unlock()
		return &SessionExpiredError{Cause: cause}
	}

	queue := r.terminateLocked()
	r.mu.Unlock()

	r.logger.Warn("request rejected after token renewal, ending session", slog.String("error", cause.Error()))

	r.reject(queue, cause)
	r.notifyLogout()

	return &SessionExpiredError{Cause: cause}
}

// terminateLocked moves to logged out, clears the pair and hands back
// the queue for rejection. Caller holds mu.
func (r *refresher) terminateLocked() []*waiter {
	queue := r.queue
	r.queue = nil
	r.state = stateLoggedOut
	r.gen++

	if err := r.session.Clear(); err != nil {
		r.logger.Warn("failed to clear credentials", slog.String("error", err.Error()))
	}

	return queue
}

func (r *refresher) reject(queue []*waiter, cause error) {
	expired := &SessionExpiredError{Cause: cause}
	for _, w := range queue {
		w.done <- outcome{err: expired}
	}
}

func (r *refresher) notifyLogout() {
	if r.logouter != nil {
		r.logouter.Logout()
	}
}

// superseded reports why a drain for gen must stop replaying, or nil
// while gen is still the live session.
func (r *refresher) superseded(gen uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.state == stateLoggedOut:
		return errLoggedOut
	case r.gen != gen:
		return errSessionReplaced
	}

	return nil
}

func (r *refresher) startSession(creds session.Credentials) error {
	r.mu.Lock()

	if err := r.session.Start(creds); err != nil {
		r.mu.Unlock()
		return err
	}

	queue := r.queue
	r.queue = nil
	r.state = stateIdle
	r.gen++
	r.mu.Unlock()

	r.reject(queue, errSessionReplaced)

	return nil
}

func (r *refresher) endSession() error {
	r.mu.Lock()
	queue := r.queue
	r.queue = nil
	r.state = stateLoggedOut
	r.gen++
	err := r.session.Clear()
	r.mu.Unlock()

	r.reject(queue, errLoggedOut)

	return err
}

// snapshot reports the coordinator state and queue length.
func (r *refresher) snapshot() (refreshState, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state, len(r.queue)
}

// renew calls the renewal endpoint with the refresh token as bearer
// credential. A non-2xx answer is permanent.
func (c *Client) renew(ctx context.Context, refreshToken string) (session.Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.refreshPath, nil)
	if err != nil {
		return session.Credentials{}, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+refreshToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session.Credentials{}, &TransportError{Method: http.MethodPost, Path: c.refreshPath, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return session.Credentials{}, &TransportError{Method: http.MethodPost, Path: c.refreshPath, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return session.Credentials{}, newAPIError(http.MethodPost, c.refreshPath, resp.StatusCode, body)
	}

	access := firstString(body, "data.accessToken", "accessToken")
	if access == "" {
		return session.Credentials{}, fmt.Errorf("%w: renewal response has no access token", apperrors.ErrAPIResponse)
	}

	return session.Credentials{
		AccessToken:  access,
		RefreshToken: firstString(body, "data.refreshToken", "refreshToken"),
	}, nil
}

func firstString(body []byte, paths ...string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}

	return ""
}
