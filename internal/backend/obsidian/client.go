package obsidian

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/synctogit/synctogit/internal/service"
)

const noteMediaType = "application/vnd.olrapi.note+json"

// ErrNotFound is returned for paths missing from the vault.
var ErrNotFound = errors.New("not found in vault")

// Note is the JSON representation of a vault note.
type Note struct {
	Content     string         `json:"content"`
	Frontmatter map[string]any `json:"frontmatter"`
	Path        string         `json:"path"`
	Stat        FileStat       `json:"stat"`
	Tags        []string       `json:"tags"`
}

// FileStat holds file timestamps in milliseconds since the epoch.
type FileStat struct {
	Ctime float64 `json:"ctime"`
	Mtime float64 `json:"mtime"`
	Size  float64 `json:"size"`
}

// ErrorResponse is the error body returned by the API.
type ErrorResponse struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("obsidian api error %d: %s", e.ErrorCode, e.Message)
}

// Client talks to the Obsidian Local REST API.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// Option configures the Client.
type Option func(*Client)

// NewClient creates an API client for the server at baseURL.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: u,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithInsecureTLS disables certificate verification. The plugin serves a
// self-signed certificate by default.
func WithInsecureTLS() Option {
	return func(c *Client) {
		if c.http.Transport == nil {
			c.http.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		} else if t, ok := c.http.Transport.(*http.Transport); ok {
			if t.TLSClientConfig == nil {
				t.TLSClientConfig = &tls.Config{}
			}
			t.TLSClientConfig.InsecureSkipVerify = true
		}
	}
}

func (c *Client) vaultURL(p string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: "vault/" + p}).String()
}

// List returns the entries of a vault directory. Directory entries end
// with a slash.
func (c *Client) List(ctx context.Context, dir string) ([]string, error) {
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.vaultURL(dir), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Files []string `json:"files"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", dir, err)
	}
	return resp.Files, nil
}

// GetNote returns a note with its parsed metadata.
func (c *Client) GetNote(ctx context.Context, p string) (*Note, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.vaultURL(p), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", noteMediaType)
	var n Note
	if err := c.do(req, &n); err != nil {
		return nil, fmt.Errorf("failed to get note %q: %w", p, err)
	}
	return &n, nil
}

// GetFile returns the raw content of a vault file and its media type.
func (c *Client) GetFile(ctx context.Context, p string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.vaultURL(p), nil)
	if err != nil {
		return nil, "", err
	}
	var body []byte
	mediaType, err := c.doRaw(req, &body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get file %q: %w", p, err)
	}
	return body, mediaType, nil
}

func (c *Client) do(req *http.Request, v any) error {
	var body []byte
	if _, err := c.doRaw(req, &body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) doRaw(req *http.Request, body *[]byte) (string, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", statusError(resp)
	}
	*body, err = io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return resp.Header.Get("Content-Type"), nil
}

// statusError maps a failed response onto the service error classes.
func statusError(resp *http.Response) error {
	var apiErr error
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er ErrorResponse
	if err := json.Unmarshal(data, &er); err == nil && er.Message != "" {
		apiErr = &er
	} else {
		apiErr = fmt.Errorf("status code %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &service.RateLimitError{RetryAfter: retryAfter(resp.Header.Get("Retry-After"), time.Now())}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", service.ErrUnavailable, apiErr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", service.ErrTokenExpired, apiErr)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	}
	return apiErr
}

const defaultRetryAfter = time.Second

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}
