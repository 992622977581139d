// Package httpbackend talks to a layout backend over REST. Client implements
// backend.Backend; API serves the same routes on top of any backend.
package httpbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/backend"
	"github.com/goliatone/go-layout/pkg/exchange"
)

// StatusError is returned for unexpected HTTP statuses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpbackend: %s %s: %d %s", e.Method, e.Path, e.Code, e.Body)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithHeader adds a header to every request (auth tokens, tracing).
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithLogger attaches a logger.
func WithLogger(logger layout.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is a backend.Backend over HTTP.
type Client struct {
	base    *url.URL
	http    *http.Client
	headers http.Header
	logger  layout.Logger
}

var _ backend.Backend = (*Client)(nil)

// New returns a Client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httpbackend: base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("httpbackend: base url %q must be absolute", baseURL)
	}
	c := &Client{
		base:    base,
		http:    &http.Client{Timeout: 30 * time.Second},
		headers: http.Header{},
		logger:  layout.NopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) GetLayout(ctx context.Context, userID string) (*layout.Document, error) {
	var doc layout.Document
	err := c.doJSON(ctx, http.MethodGet, c.userPath(userID, "layout"), nil, nil, &doc)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (c *Client) SaveLayout(ctx context.Context, userID string, doc layout.Document) (layout.Document, error) {
	var saved layout.Document
	if err := c.doJSON(ctx, http.MethodPut, c.userPath(userID, "layout"), nil, doc, &saved); err != nil {
		return layout.Document{}, err
	}
	return saved, nil
}

func (c *Client) SaveSnapshot(ctx context.Context, userID string, input backend.SnapshotInput) (backend.Snapshot, error) {
	var snap backend.Snapshot
	if err := c.doJSON(ctx, http.MethodPost, c.userPath(userID, "snapshots"), nil, input, &snap); err != nil {
		return backend.Snapshot{}, err
	}
	return snap, nil
}

func (c *Client) GetSnapshots(ctx context.Context, userID string) ([]backend.Snapshot, error) {
	var snaps []backend.Snapshot
	if err := c.doJSON(ctx, http.MethodGet, c.userPath(userID, "snapshots"), nil, nil, &snaps); err != nil {
		return nil, err
	}
	if snaps == nil {
		snaps = []backend.Snapshot{}
	}
	return snaps, nil
}

func (c *Client) ApplyTemplate(ctx context.Context, userID, templateID string) (layout.Document, error) {
	var doc layout.Document
	p := c.userPath(userID, "templates", templateID, "apply")
	if err := c.doJSON(ctx, http.MethodPost, p, nil, nil, &doc); err != nil {
		return layout.Document{}, err
	}
	return doc, nil
}

func (c *Client) ExportLayout(ctx context.Context, userID, layoutID string, opts exchange.ExportOptions) (exchange.Blob, error) {
	query := url.Values{}
	if opts.Format != "" {
		query.Set("format", string(opts.Format))
	}
	query.Set("metadata", strconv.FormatBool(opts.IncludeMetadata))
	query.Set("history", strconv.FormatBool(opts.IncludeHistory))
	query.Set("compress", strconv.FormatBool(opts.Compress))

	resp, err := c.do(ctx, http.MethodGet, c.userPath(userID, "layouts", layoutID, "export"), query, nil, "")
	if err != nil {
		return exchange.Blob{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return exchange.Blob{}, fmt.Errorf("httpbackend: read export: %w", err)
	}
	blob := exchange.Blob{ContentType: resp.Header.Get("Content-Type"), Data: data}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		blob.Filename = params["filename"]
	}
	return blob, nil
}

// ImportLayout uploads the raw file. A 422 response carries the validation
// result and is not an error.
func (c *Client) ImportLayout(ctx context.Context, userID string, file exchange.File, opts backend.ImportOptions) (backend.ImportResult, error) {
	query := url.Values{}
	query.Set("filename", file.Name)
	query.Set("replace", strconv.FormatBool(opts.Replace))
	query.Set("validate", strconv.FormatBool(opts.Validate))

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp, err := c.do(ctx, http.MethodPost, c.userPath(userID, "import"), query, bytes.NewReader(file.Data), contentType)
	var result backend.ImportResult
	if err != nil {
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnprocessableEntity {
			return backend.ImportResult{}, err
		}
		if jsonErr := json.Unmarshal([]byte(statusErr.Body), &result); jsonErr != nil {
			return backend.ImportResult{Success: false, Errors: []string{statusErr.Body}}, nil
		}
		return result, nil
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return backend.ImportResult{}, fmt.Errorf("httpbackend: decode import result: %w", err)
	}
	return result, nil
}

func (c *Client) userPath(userID string, parts ...string) string {
	segments := append([]string{"users", userID}, parts...)
	return "/" + strings.Join(segments, "/")
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpbackend: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
		contentType = "application/json"
	}
	resp, err := c.do(ctx, method, path, query, reader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httpbackend: decode %s %s: %w", method, path, err)
	}
	return nil
}

// do issues the request and maps error statuses. The caller closes the body
// of a successful response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	target := *c.base
	target.Path = c.base.Path + path
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("httpbackend: %s %s: %w", method, path, err)
	}
	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.LogLayout(layout.LogEvent{Component: "httpbackend", Action: method + " " + path, Duration: time.Since(started), Err: err})
		return nil, fmt.Errorf("httpbackend: %s %s: %w", method, path, err)
	}
	c.logger.LogLayout(layout.LogEvent{
		Component: "httpbackend",
		Action:    method + " " + path,
		Duration:  time.Since(started),
		Fields:    map[string]any{"status": resp.StatusCode},
	})
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	text := strings.TrimSpace(string(raw))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, &mappedError{status: &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: text}, sentinel: backend.ErrNotFound}
	case http.StatusConflict:
		return nil, &mappedError{status: &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: text}, sentinel: backend.ErrVersionConflict}
	default:
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: text}
	}
}

// mappedError ties a status to a backend sentinel so callers can use
// errors.Is with either.
type mappedError struct {
	status   *StatusError
	sentinel error
}

func (e *mappedError) Error() string { return e.status.Error() }

func (e *mappedError) Unwrap() []error { return []error{e.sentinel, e.status} }

func isStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}
