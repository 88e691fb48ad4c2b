package vidget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout bounds every backend call unless overridden.
const DefaultTimeout = 30 * time.Second

// Errors for requests that never produced a usable response.
var (
	ErrTimeout           = errors.New("request timed out")
	ErrAborted           = errors.New("request aborted")
	ErrMalformedResponse = errors.New("malformed response from server")
)

// Sentinels matched by *ServerError for the status codes the backend uses.
var (
	ErrBadRequest      = errors.New("bad request (400)")
	ErrUnauthenticated = errors.New("not logged in (401)")
	ErrForbidden       = errors.New("forbidden (403)")
	ErrNotFound        = errors.New("not found (404)")
	ErrTooLarge        = errors.New("video too large (413)")
	ErrUnavailable     = errors.New("service unavailable (503)")
)

// ServerError is a non-2xx answer from the backend. Message carries the
// body's "error" field when the server sent one.
type ServerError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

func (e *ServerError) Unwrap() error { return e.kind }

// IsAbort reports whether err came from a request that was cut short by its
// deadline or by the caller.
func IsAbort(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrAborted)
}

// Client talks to the download service. It keeps a cookie jar so the
// session cookie set at login rides along on every later request.
type Client struct {
	baseURL     *url.URL
	client      *http.Client
	logger      *log.Logger
	timeout     time.Duration
	idleTimeout time.Duration
	userAgent   string
	transfers   chan<- TransferProgress
}

// Option configures a Client.
type Option func(*Client)

// NewClient returns a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	jar, err := newJar()
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	c := &Client{
		baseURL:     u,
		client:      &http.Client{Transport: transport, Jar: jar},
		logger:      log.New(io.Discard, "[vidget verbose] ", log.Ltime|log.Lmicroseconds),
		timeout:     DefaultTimeout,
		idleTimeout: 60 * time.Second,
		userAgent:   "vidget/" + Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client.Jar == nil {
		c.client.Jar = jar
	}
	return c, nil
}

func newJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

// clearCookies swaps in an empty jar, dropping cookies of every path and
// host.
func (c *Client) clearCookies() error {
	jar, err := newJar()
	if err != nil {
		return err
	}
	c.client.Jar = jar
	return nil
}

// BaseURL returns the service root the client was built for.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Logger returns the verbose logger shared by the components built on c.
func (c *Client) Logger() *log.Logger { return c.logger }

// RequestOptions describes a single call. A non-nil Body is sent as JSON.
// Timeout overrides the client's default when positive.
type RequestOptions struct {
	Method  string
	Header  http.Header
	Body    any
	Timeout time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// Do issues one request to path under the client's timeout. The body is read
// before the deadline is released, so a slow body counts against it too.
func (c *Client) Do(ctx context.Context, path string, ro RequestOptions) (*Response, error) {
	method := ro.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := c.timeout
	if ro.Timeout > 0 {
		timeout = ro.Timeout
	}
	target := c.resolve(path)

	var body io.Reader
	if ro.Body != nil {
		payload, err := json.Marshal(ro.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body for %s: %w", target, err)
		}
		body = bytes.NewReader(payload)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", target, err)
	}
	for k, vs := range ro.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Printf("%s %s (request %s, timeout %s)", method, target, requestID, timeout)
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.classify(ctx, reqCtx, method, target, timeout, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(ctx, reqCtx, method, target, timeout, err)
	}
	c.logger.Printf("%s %s -> %d in %s (request %s)", method, target, resp.StatusCode, time.Since(start).Round(time.Millisecond), requestID)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// classify turns a transport failure into ErrTimeout, ErrAborted or a plain
// wrapped network error.
func (c *Client) classify(parent, reqCtx context.Context, method, target string, timeout time.Duration, err error) error {
	switch {
	case parent.Err() != nil:
		c.logger.Printf("%s %s aborted by caller: %v", method, target, parent.Err())
		return fmt.Errorf("%w: %s %s: %v", ErrAborted, method, target, parent.Err())
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded):
		c.logger.Printf("%s %s timed out after %s", method, target, timeout)
		return fmt.Errorf("%w: %s %s after %s", ErrTimeout, method, target, timeout)
	default:
		return fmt.Errorf("http request failed for %s: %w", target, err)
	}
}

func (c *Client) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil || ref.IsAbs() {
		return path
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawQuery = ref.RawQuery
	return u.String()
}

// apiError maps a non-2xx response to a *ServerError. It returns nil for 2xx.
func apiError(resp *Response) error {
	if resp.OK() {
		return nil
	}
	var payload struct {
		Error string `json:"error"`
	}
	// Error bodies are not always JSON; an unreadable one leaves Message empty.
	_ = json.Unmarshal(resp.Body, &payload)

	e := &ServerError{StatusCode: resp.StatusCode, Message: payload.Error}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		e.kind = ErrBadRequest
	case http.StatusUnauthorized:
		e.kind = ErrUnauthenticated
	case http.StatusForbidden:
		e.kind = ErrForbidden
	case http.StatusNotFound:
		e.kind = ErrNotFound
	case http.StatusRequestEntityTooLarge:
		e.kind = ErrTooLarge
	case http.StatusServiceUnavailable:
		e.kind = ErrUnavailable
	}
	return e
}
