// Package api is a thin typed client for the service-desk REST API.
// It handles Bearer token authentication, the {success, data} response
// envelope, and maps failures onto the transport/protocol error taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client is the HTTP client for the service-desk backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.SugaredLogger
}

// NewClient creates a client for the API rooted at baseURL
// (e.g., https://desk.corp.example.com/api), authenticating every
// request with the given bearer token.
func NewClient(baseURL, token string, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// SetHTTPClient overrides the underlying http.Client, mainly for tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope is the optional {success, data} wrapper some endpoints use.
// Endpoints that return the payload bare leave Data unset.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// get performs a GET request and decodes the (possibly enveloped) JSON
// response into result.
func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// post performs a POST request with an optional JSON body and decodes
// the (possibly enveloped) JSON response into result when non-nil.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	op := method + " " + path
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("reading response body: %w", readErr)}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Op: op}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(respBody))),
		}
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	return c.decode(op, respBody, result)
}

// decode unwraps the {success, data} envelope when present and
// unmarshals the payload into result. A payload that matches neither
// shape is a ProtocolError, logged with the raw body for diagnosis.
func (c *Client) decode(op string, respBody []byte, result any) error {
	payload := respBody

	var env envelope
	if err := json.Unmarshal(respBody, &env); err == nil && len(env.Data) > 0 {
		payload = env.Data
	}

	if err := json.Unmarshal(payload, result); err != nil {
		perr := &ProtocolError{Op: op, Body: string(respBody), Err: err}
		c.log.Warnw("protocol error", "op", op, "body", perr.Body, "err", err)
		return perr
	}

	return nil
}
