package campus

import (
	"encoding/json"
	"fmt"

	"github.com/alexjbarnes/campusctl/internal/api"
	apperrors "github.com/alexjbarnes/campusctl/internal/errors"
	"github.com/tidwall/gjson"
)

// EnvelopeError is a 2xx answer whose envelope reports failure.
type EnvelopeError struct {
	Path    string
	Message string
}

func (e *EnvelopeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: request failed", e.Path)
	}

	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Is makes every EnvelopeError match apperrors.ErrAPIResponse.
func (e *EnvelopeError) Is(target error) bool {
	return target == apperrors.ErrAPIResponse
}

// Result is a decoded envelope.
type Result struct {
	Message string
	Data    json.RawMessage
}

// decodeEnvelope checks success and returns message and raw data. A body
// without a success field is accepted as is.
func decodeEnvelope(path string, resp *api.Response) (Result, error) {
	if !gjson.ValidBytes(resp.Body) {
		return Result{}, fmt.Errorf("%w: %s: body is not JSON", apperrors.ErrAPIResponse, path)
	}

	parsed := gjson.ParseBytes(resp.Body)
	message := parsed.Get("message").String()

	if success := parsed.Get("success"); success.Exists() && !success.Bool() {
		return Result{}, &EnvelopeError{Path: path, Message: message}
	}

	if errFlag := parsed.Get("error"); errFlag.Type == gjson.True {
		return Result{}, &EnvelopeError{Path: path, Message: message}
	}

	var data json.RawMessage
	if d := parsed.Get("data"); d.Exists() {
		data = json.RawMessage(d.Raw)
	}

	return Result{Message: message, Data: data}, nil
}

// into unmarshals the data into v. Missing or null data leaves v as is.
func (r Result) into(path string, v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}

	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("%w: %s: decoding data: %v", apperrors.ErrAPIResponse, path, err)
	}

	return nil
}
