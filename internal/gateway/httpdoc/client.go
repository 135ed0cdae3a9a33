// Package httpdoc is a Gateway that talks to the habitsync document API.
package httpdoc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/julianstephens/habitsync/internal/gateway"
)

// TokenSource returns the bearer token sent with every request. An empty
// token sends no Authorization header.
type TokenSource func() (string, error)

// StatusError is a non-2xx response from the API
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote returned %d", e.StatusCode)
}

// Temporary reports server-side and throttling failures
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
}

// Permanent reports client errors that a retry will not fix
func (e *StatusError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && !e.Temporary()
}

// Unwrap maps 404 onto gateway.ErrNotFound
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return gateway.ErrNotFound
	}
	return nil
}

// Client implements gateway.Gateway and gateway.Pinger over HTTP
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 15s timeout
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token source
func WithToken(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createResponse struct {
	ID string `json:"id"`
}

type listResponse struct {
	Documents []gateway.Record `json:"documents"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Create(ctx context.Context, collection string, record gateway.Record) (string, error) {
	var out createResponse
	if err := c.do(ctx, http.MethodPost, c.path(collection), record, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("remote returned no id")
	}
	return out.ID, nil
}

func (c *Client) Update(ctx context.Context, collection, id string, patch gateway.Record) error {
	return c.do(ctx, http.MethodPatch, c.path(collection, id), patch, nil)
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, c.path(collection, id), nil, nil)
}

func (c *Client) List(ctx context.Context, collection, ownerID string) ([]gateway.Record, error) {
	var out listResponse
	p := c.path(collection) + "?" + url.Values{"owner_id": {ownerID}}.Encode()
	if err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	if out.Documents == nil {
		return []gateway.Record{}, nil
	}
	return out.Documents, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) path(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return "/collections/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token()
		if err != nil {
			return fmt.Errorf("failed to get session token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&er) == nil {
			se.Code = er.Error.Code
			se.Message = er.Error.Message
		}
		return se
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
