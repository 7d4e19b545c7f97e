package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"AngelLink/internal/metrics"
)

// Credentials is the process-wide bearer credential. ClearToken is the only
// writer the client uses.
type Credentials interface {
	Token() string
	ClearToken() error
}

// envelope is the shape every backend response shares.
type envelope struct {
	OK      *bool  `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client is the authenticated request wrapper for the dashboard backend. It is
// the single place where session expiry is handled.
type Client struct {
	baseURL   string
	creds     Credentials
	http      *http.Client
	onExpired func()
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithProxy routes requests through proxyURL. Invalid URLs are ignored.
func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		if proxyURL == "" {
			return
		}
		if u, err := url.Parse(proxyURL); err == nil {
			c.http.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// OnSessionExpired sets the redirect to the unauthenticated entry point.
func OnSessionExpired(fn func()) Option {
	return func(c *Client) {
		c.onExpired = fn
	}
}

func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get calls path and decodes the response into out (which may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post sends body as JSON and decodes the response into out (which may be nil).
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	err := c.request(ctx, method, path, body, out)
	metrics.APIRequests.WithLabelValues(endpointLabel(path), resultLabel(err)).Inc()
	return err
}

func (c *Client) request(ctx context.Context, method, path string, body, out any) error {
	token := c.creds.Token()
	if token == "" {
		// A concurrent 401 may have cleared the credential already.
		c.expire(path)
		return ErrSessionExpired
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Type: SerDeErrorT, Endpoint: path, Err: err}
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &Error{Type: RequestErrorT, Endpoint: path, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Type: RequestErrorT, Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.expire(path)
		return ErrSessionExpired
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Type: RequestErrorT, Endpoint: path, Status: resp.StatusCode, Err: err}
	}

	var env envelope
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode < 300 {
			return &Error{Type: SerDeErrorT, Endpoint: path, Status: resp.StatusCode, Err: err}
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (env.OK != nil && !*env.OK) {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{Type: ServerErrorT, Endpoint: path, Status: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Type: SerDeErrorT, Endpoint: path, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func (c *Client) expire(path string) {
	log.Printf("[WARN] session expired on %s, clearing credential", path)
	if err := c.creds.ClearToken(); err != nil {
		log.Printf("[ERROR] clear credential: %v", err)
	}
	if c.onExpired != nil {
		c.onExpired()
	}
}

// endpointLabel drops path parameters so token handles never become label
// values.
func endpointLabel(path string) string {
	if i := strings.Index(path, "/tokens/"); i >= 0 {
		return path[:i+len("/tokens/")]
	}
	return path
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, ErrSessionExpired) {
		return "expired"
	}
	var re *Error
	if errors.As(err, &re) {
		return string(re.Type)
	}
	return "error"
}
