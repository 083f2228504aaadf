// Package httpx is the JSON-over-HTTP client shared by provider integrations.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
	userAgent      = "sercha-connect"
)

// AuthScheme attaches an access token to a request.
type AuthScheme func(req *http.Request, token string)

// Bearer sends the token as an OAuth bearer token.
func Bearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}

// Bot sends the token with the Bot prefix used by bot accounts.
func Bot(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bot "+token)
}

// HeaderKey sends the token verbatim in the named header.
func HeaderKey(name string) AuthScheme {
	return func(req *http.Request, token string) {
		req.Header.Set(name, token)
	}
}

// Client calls a provider's REST API.
type Client struct {
	// BaseURL is prefixed to relative paths.
	BaseURL    string
	HTTPClient *http.Client
	// Limiter throttles requests. Nil disables throttling.
	Limiter *RateLimiter
	// Auth defaults to Bearer.
	Auth AuthScheme
	// Header is added to every request.
	Header http.Header
}

// New creates a client for baseURL throttled by the provider's shared limiter.
func New(provider, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: httpClient,
		Limiter:    Limiter(provider),
	}
}

// JSON sends body encoded as JSON and decodes the response into out.
// body and out may be nil.
func (c *Client) JSON(ctx context.Context, method, path, token string, body, out any) error {
	_, err := c.JSONHeader(ctx, method, path, token, body, out)
	return err
}

// JSONHeader is JSON that also returns the response headers, for APIs that
// report created resource ids in headers.
func (c *Client) JSONHeader(ctx context.Context, method, path, token string, body, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, token, out)
}

// Form sends form-encoded values and decodes the response into out.
func (c *Client) Form(ctx context.Context, method, path, token string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Do(req, token, out)
}

// Get is a JSON GET with query parameters.
func (c *Client) Get(ctx context.Context, path, token string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.JSON(ctx, http.MethodGet, path, token, nil, out)
}

// Do sends a prepared request. An empty token sends no credentials.
func (c *Client) Do(req *http.Request, token string, out any) error {
	_, err := c.send(req, token, out)
	return err
}

func (c *Client) send(req *http.Request, token string, out any) (http.Header, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if token != "" {
		auth := c.Auth
		if auth == nil {
			auth = Bearer
		}
		auth(req, token)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.Header, c.apiError(req, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return resp.Header, fmt.Errorf("decode response: %w", err)
	}
	return resp.Header, nil
}

func (c *Client) apiError(req *http.Request, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Method:     req.Method,
		URL:        req.URL.Redacted(),
		Body:       strings.TrimSpace(string(data)),
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil {
			apiErr.RetryAfter = time.Duration(secs * float64(time.Second))
		}
		if c.Limiter != nil {
			c.Limiter.RecordRateLimitError(apiErr.RetryAfter)
		}
	}
	return apiErr
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BaseURL + path
}
