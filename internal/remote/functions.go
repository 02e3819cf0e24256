package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
)

// FunctionRequest is the body sent to date-ranged reporting functions.
type FunctionRequest struct {
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	PracticeID string `json:"practiceId"`
}

// Functions invokes hosted functions under /functions/v1.
type Functions struct {
	c *Client
}

// Functions returns the hosted function invoker sharing c's connection.
func (c *Client) Functions() *Functions {
	return &Functions{c: c}
}

// Invoke calls the named function with req and returns its raw JSON result.
// A 429 answer yields ErrRateLimited and a 402 ErrQuotaExhausted; any other
// failure yields a *FunctionError.
func (f *Functions) Invoke(ctx context.Context, name string, req FunctionRequest) (json.RawMessage, error) {
	u := *f.c.base
	u.Path = u.Path + "/functions/v1/" + url.PathEscape(name)

	resp, err := f.c.do(ctx, http.MethodPost, u.String(), req)
	if err != nil {
		return nil, f.classify(name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FunctionError{Function: name, StatusCode: resp.StatusCode, Message: err.Error()}
	}
	return json.RawMessage(data), nil
}

func (f *Functions) classify(name string, err error) error {
	var se *StatusError
	if !errors.As(err, &se) {
		return &FunctionError{Function: name, Message: err.Error()}
	}
	switch se.StatusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusPaymentRequired:
		return ErrQuotaExhausted
	default:
		return &FunctionError{Function: name, StatusCode: se.StatusCode, Message: se.Message}
	}
}
