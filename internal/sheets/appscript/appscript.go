// Package appscript talks to a spreadsheet published as an Apps Script web
// app: GET returns every row as a JSON array of objects, POST appends one row.
package appscript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"finanzas/internal/core"
	ports "finanzas/internal/sheets"
)

// PlaceholderMarker appears in the endpoint shipped with the sample config.
// An endpoint containing it is treated as unconfigured.
const PlaceholderMarker = "PEGAR_TU_URL"

const maxBodyBytes = 16 << 20

// Ensure interface conformance
var _ ports.ReadWriter = (*Client)(nil)

type Client struct {
	endpoint string
	http     *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if !IsConfigured(endpoint) {
		return nil, errors.New("appscript endpoint not configured")
	}
	c := &Client{endpoint: endpoint, http: newHTTPClientWithPooling()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// IsConfigured reports whether endpoint is set to something other than the
// sample placeholder.
func IsConfigured(endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	return endpoint != "" && !strings.Contains(endpoint, PlaceholderMarker)
}

func (c *Client) Endpoint() string { return c.endpoint }

// Fetch implements ports.RecordReader. The response content type is ignored:
// Apps Script serves JSON as text/plain.
func (c *Client) Fetch(ctx context.Context) ([]core.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ports.TransportError{Op: "fetch", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ports.TransportError{Op: "fetch", Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ports.TransportError{Op: "fetch", StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	records, err := DecodeRecords(body)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Fetched records", "count", len(records), "content_type", resp.Header.Get("Content-Type"))
	return records, nil
}

// Submit implements ports.RecordWriter. The body is JSON sent as text/plain
// so browsers treat it as a simple request; the same contract is kept here.
// Redirects are followed, so a non-2xx final status is a failure. The body
// is drained but not interpreted.
func (c *Client) Submit(ctx context.Context, p core.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return &ports.TransportError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ports.TransportError{Op: "submit", StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	return nil
}

// DecodeRecords parses a read response. It accepts a bare JSON array of
// objects or an object wrapping the array under "data". Numbers are kept as
// json.Number so amounts stay exact.
func DecodeRecords(body []byte) ([]core.RawRecord, error) {
	text := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	malformed := func(err error) error {
		return &ports.MalformedResponseError{Body: string(body), Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, malformed(err)
	}
	if dec.More() {
		return nil, malformed(errors.New("trailing data after JSON value"))
	}

	if obj, ok := v.(map[string]any); ok {
		data, found := obj["data"]
		if !found {
			return nil, malformed(errors.New("expected a JSON array of records"))
		}
		v = data
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, malformed(fmt.Errorf("expected a JSON array of records, got %T", v))
	}

	out := make([]core.RawRecord, 0, len(arr))
	for i, el := range arr {
		switch rec := el.(type) {
		case nil:
			continue
		case map[string]any:
			out = append(out, core.RawRecord(rec))
		default:
			return nil, malformed(fmt.Errorf("record %d is %T, not an object", i, el))
		}
	}
	return out, nil
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling and
// transport-level timeouts. Redirects are followed: Apps Script answers with
// a 302 to the content host.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}
