// Package fetch performs outbound HTTPS requests against intelligence providers.
package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/charlesng35/cveintel/internal/intel"
	"github.com/charlesng35/cveintel/internal/monitoring"
	"github.com/charlesng35/cveintel/pkg/logger"
)

const (
	// DefaultTimeout bounds a single provider request including reading the body.
	DefaultTimeout = 30 * time.Second
	// MaxBodyBytes caps how much of a provider response is read into memory.
	MaxBodyBytes = 32 << 20

	defaultUserAgent = "cveintel/1.0"
	maxErrorBody     = 1024
)

// Config controls outbound request behaviour.
type Config struct {
	Timeout time.Duration
	// AllowInsecure permits plain http:// URLs. Only tests should enable it.
	AllowInsecure bool
	UserAgent     string
}

// Response is a successful provider response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// JSON holds the decoded body when the provider returned valid JSON, otherwise nil.
	JSON any
}

// Text returns the raw body as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// Client issues single-attempt GET requests. It never retries.
type Client struct {
	http      *http.Client
	userAgent string
	insecure  bool
	log       *zap.Logger
}

// New constructs a Client with an OpenTelemetry-instrumented transport.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base),
		},
		userAgent: userAgent,
		insecure:  cfg.AllowInsecure,
		log:       logger.WithModule("fetch"),
	}
}

// Get performs one GET request. Non-2xx statuses return *intel.UpstreamHTTPError and network
// failures return *intel.UpstreamTransportError.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target, err := c.validateURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, &intel.UpstreamTransportError{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	provider := target.Hostname()
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		monitoring.RecordUpstreamRequest(provider, "transport_error", time.Since(start))
		c.log.Warn("upstream request failed", zap.String("host", provider), zap.Error(err))
		return nil, &intel.UpstreamTransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		monitoring.RecordUpstreamRequest(provider, "transport_error", time.Since(start))
		return nil, &intel.UpstreamTransportError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > MaxBodyBytes {
		monitoring.RecordUpstreamRequest(provider, "too_large", time.Since(start))
		return nil, &intel.MalformedResponseError{URL: rawURL, Err: fmt.Errorf("body exceeds %d bytes", MaxBodyBytes)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		monitoring.RecordUpstreamRequest(provider, "http_error", time.Since(start))
		c.log.Warn("upstream returned error status",
			zap.String("host", provider),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &intel.UpstreamHTTPError{URL: rawURL, StatusCode: resp.StatusCode, Body: truncate(body, maxErrorBody)}
	}
	monitoring.RecordUpstreamRequest(provider, "success", time.Since(start))

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && json.Valid(trimmed) {
		var decoded any
		if err := json.Unmarshal(trimmed, &decoded); err == nil {
			out.JSON = decoded
		}
	}
	return out, nil
}

// GetJSON performs Get and decodes the body into dest. An undecodable body yields
// *intel.MalformedResponseError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers map[string]string, dest any) error {
	resp, err := c.Get(ctx, rawURL, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, dest); err != nil {
		return &intel.MalformedResponseError{URL: rawURL, Err: err}
	}
	return nil
}

func (c *Client) validateURL(rawURL string) (*url.URL, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || target.Host == "" {
		if err == nil {
			err = errors.New("missing host")
		}
		return nil, &intel.UpstreamTransportError{URL: rawURL, Err: fmt.Errorf("invalid url: %w", err)}
	}
	switch target.Scheme {
	case "https":
	case "http":
		if !c.insecure {
			return nil, &intel.UpstreamTransportError{URL: rawURL, Err: errors.New("plain http is not allowed")}
		}
	default:
		return nil, &intel.UpstreamTransportError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", target.Scheme)}
	}
	return target, nil
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit])
}
