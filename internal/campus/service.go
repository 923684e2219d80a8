// Package campus is the typed client for the campus backend: login and
// logout, students, attendance and a catalog of every backend route. All
// calls go through api.Client, so an expired access token is renewed
// transparently.
package campus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alexjbarnes/campusctl/internal/api"
)

// Service wraps an api.Client with the backend's routes.
type Service struct {
	client *api.Client
	logger *slog.Logger
}

// New creates a Service.
func New(client *api.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Service{client: client, logger: logger}
}

// Client returns the underlying API client.
func (s *Service) Client() *api.Client {
	return s.client
}

// do calls an endpoint with an optional JSON body and decodes the
// envelope.
func (s *Service) do(ctx context.Context, e Endpoint, id string, query url.Values, body any) (Result, error) {
	path, err := e.Resolve(id)
	if err != nil {
		return Result{}, err
	}

	req, err := api.NewRequest(e.Method, path, body)
	if err != nil {
		return Result{}, err
	}

	req.Query = query

	return s.send(ctx, req)
}

func (s *Service) send(ctx context.Context, req api.Request) (Result, error) {
	resp, err := s.client.Send(ctx, req)
	if err != nil {
		return Result{}, err
	}

	return decodeEnvelope(req.Path, resp)
}

// get calls e and decodes the envelope data into v.
func (s *Service) get(ctx context.Context, e Endpoint, id string, query url.Values, body, v any) (string, error) {
	res, err := s.do(ctx, e, id, query, body)
	if err != nil {
		return "", err
	}

	if err := res.into(e.Path, v); err != nil {
		return "", err
	}

	return res.Message, nil
}

// Call sends any catalog endpoint by name with an optional raw JSON body.
func (s *Service) Call(ctx context.Context, name, id string, body json.RawMessage) (Result, error) {
	e, ok := LookupEndpoint(name)
	if !ok {
		return Result{}, fmt.Errorf("unknown endpoint %q", name)
	}

	var payload any
	if len(body) > 0 {
		if !json.Valid(body) {
			return Result{}, fmt.Errorf("body for %s is not valid JSON", name)
		}

		payload = body
	}

	return s.do(ctx, e, id, nil, payload)
}
