// Package remote is the HTTP client for the hosted backend: a
// PostgREST-style table API for record writes and cache reads, and hosted
// functions for server-side computations.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

// DefaultTimeout bounds each HTTP request when Config.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is read into messages.
const maxErrorBody = 4 << 10

// Config holds the connection parameters for the hosted backend.
type Config struct {
	// BaseURL is the project URL, e.g. https://example.supabase.co.
	BaseURL string

	// APIKey is sent as both the apikey header and the bearer token.
	APIKey string

	Timeout time.Duration

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client

	Logger logrus.FieldLogger
}

var (
	_ types.Remote       = (*Client)(nil)
	_ types.RemoteReader = (*Client)(nil)
)

// Client talks to the table API.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
	log    logrus.FieldLogger
}

// New validates cfg and creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing remote base url: %w", err)
	}
	c := &Client{base: base, apiKey: cfg.APIKey, http: cfg.HTTPClient, log: cfg.Logger}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	return c, nil
}

// Insert posts record to table.
func (c *Client) Insert(ctx context.Context, table string, record types.Record) error {
	return c.send(ctx, http.MethodPost, c.tableURL(table, nil), record)
}

// Update patches the record in table matching key with fields.
func (c *Client) Update(ctx context.Context, table string, key types.Key, fields types.Record) error {
	return c.send(ctx, http.MethodPatch, c.tableURL(table, keyFilter(key)), fields)
}

// Delete removes the record in table matching key.
func (c *Client) Delete(ctx context.Context, table string, key types.Key) error {
	return c.send(ctx, http.MethodDelete, c.tableURL(table, keyFilter(key)), nil)
}

// Select fetches every row of table.
func (c *Client) Select(ctx context.Context, table string) ([]types.Record, error) {
	u := c.tableURL(table, url.Values{"select": {"*"}})
	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	records := []types.Record{}
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding %s rows: %w", table, err)
	}
	return records, nil
}

func keyFilter(key types.Key) url.Values {
	return url.Values{key.Column: {"eq." + key.String()}}
}

func (c *Client) tableURL(table string, query url.Values) string {
	u := *c.base
	u.Path = u.Path + "/rest/v1/" + url.PathEscape(table)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) send(ctx context.Context, method, u string, body any) error {
	resp, err := c.do(ctx, method, u, body)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// do issues the request and converts non-2xx answers into *StatusError.
// The caller owns the returned body.
func (c *Client) do(ctx context.Context, method, u string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.authorize(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg := readErrorMessage(resp.Body)
		c.log.WithFields(logrus.Fields{
			"method": method,
			"path":   req.URL.Path,
			"status": resp.StatusCode,
		}).Debug("remote request failed")
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// readErrorMessage extracts "message" or "error" from a JSON error body,
// falling back to the raw text.
func readErrorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}
