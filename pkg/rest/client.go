// Package rest talks to the booking API. Every response is wrapped in a
// {success, data, message} envelope.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tripnest/tripsync/internal/codec"
	"github.com/tripnest/tripsync/pkg/constants"
)

// Response is the envelope every endpoint replies with.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Total   int             `json:"total,omitempty"`
	HasMore bool            `json:"hasMore,omitempty"`
}

// APIError is returned for HTTP errors and for envelopes with success=false.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	BaseURL     string
	Marshaler   codec.Marshaler
	Unmarshaler codec.Unmarshaler

	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Marshaler:   codec.JSON{},
		Unmarshaler: codec.JSON{},
		httpClient: &http.Client{
			Timeout: constants.DefaultHTTPTimeout,
		},
	}
}

func (c *Client) SetTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

func (c *Client) SetHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Do sends body (if any) as JSON and decodes the envelope's data into out
// (if non-nil). It returns the decoded envelope.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) (*Response, error) {
	if c.BaseURL == "" {
		return nil, constants.ErrNoBaseURL
	}

	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reqBody, err := c.Marshaler.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	respData, status, err := c.MakeRequest(req)
	if err != nil {
		return nil, err
	}

	var res Response
	if err := c.Unmarshaler.Unmarshal(respData, &res); err != nil {
		if status >= 400 {
			return nil, &APIError{StatusCode: status, Message: strings.TrimSpace(string(respData))}
		}
		return nil, fmt.Errorf("decode response from %s %s: %w", method, path, err)
	}
	if status >= 400 || !res.Success {
		return nil, &APIError{StatusCode: status, Message: res.Message}
	}

	if out != nil && len(res.Data) > 0 {
		if err := c.Unmarshaler.Unmarshal(res.Data, out); err != nil {
			return nil, fmt.Errorf("decode data from %s %s: %w", method, path, err)
		}
	}
	return &res, nil
}

// MakeRequest performs req and returns the body and status code.
func (c *Client) MakeRequest(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("error making HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBytes, resp.StatusCode, nil
}
