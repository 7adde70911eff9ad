package elab

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/emiliopalmerini/elabgate/internal/config"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/ports"
)

const defaultTimeout = 30 * time.Second

// HTTPDoer describes the HTTP client used to reach eLabFTW.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recorder receives one observation per upstream call.
type Recorder interface {
	RecordUpstreamCall(ctx context.Context, call ports.UpstreamCall)
}

// Config holds everything the client needs. It is passed explicitly; the
// client reads no process-wide state.
type Config struct {
	BaseURL            string
	APIKey             string
	VerifyTLS          bool
	Timeout            time.Duration
	ItemTypeTitle      string
	TemplateTitle      string
	FallbackTemplateID int64
}

// ConfigFrom extracts client settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		BaseURL:            cfg.Elab.URL,
		APIKey:             cfg.Elab.APIKey,
		VerifyTLS:          cfg.Elab.VerifyTLS,
		Timeout:            cfg.ElabTimeout(),
		ItemTypeTitle:      cfg.Elab.ItemTypeTitle,
		TemplateTitle:      cfg.Elab.TemplateTitle,
		FallbackTemplateID: cfg.Elab.FallbackTemplateID,
	}
}

type Client struct {
	cfg      Config
	baseURL  *url.URL
	http     HTTPDoer
	recorder Recorder
	logger   *slog.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client (useful for tests).
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "elab-client")
		}
	}
}

// New constructs an eLabFTW client.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidInput)
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidInput, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: base url %q must be absolute", ErrInvalidInput, base)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalidInput)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Client{
		cfg:     cfg,
		baseURL: parsed,
		logger:  logging.NewComponentLogger(nil, "elab-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout, Transport: transport(cfg.VerifyTLS)}
	}
	return c, nil
}

func transport(verifyTLS bool) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if !verifyTLS {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed lab instances
	}
	return t
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	accept string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) send(ctx context.Context, r request) (*response, error) {
	endpoint := c.baseURL.JoinPath(r.path)
	if len(r.query) > 0 {
		endpoint.RawQuery = r.query.Encode()
	}

	var payload io.Reader
	if r.body != nil {
		encoded, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode request: %w", r.method, r.path, err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint.String(), payload)
	if err != nil {
		return nil, fmt.Errorf("%s %s: build request: %w", r.method, r.path, err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(ctx, r, 0, time.Since(start))
		c.logger.WarnContext(ctx, "elab request failed",
			logging.String("method", r.method),
			logging.String("path", r.path),
			logging.Error(err),
		)
		return nil, &TransportError{Method: r.method, Path: r.path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	c.record(ctx, r, resp.StatusCode, elapsed)
	if err != nil {
		return nil, &TransportError{Method: r.method, Path: r.path, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.DebugContext(ctx, "elab request",
		logging.String("method", r.method),
		logging.String("path", r.path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", elapsed),
	)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
	default:
		return nil, newUpstreamError(r.method, r.path, resp.StatusCode, body)
	}
}

func (c *Client) record(ctx context.Context, r request, status int, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordUpstreamCall(ctx, ports.UpstreamCall{
		Operation:  r.op,
		Method:     r.method,
		StatusCode: status,
		Duration:   elapsed,
	})
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	resp, err := c.send(ctx, request{op: op, method: http.MethodGet, path: path, query: query})
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return nil
}

func (c *Client) list(ctx context.Context, op, path string, query url.Values) ([]Resource, error) {
	resp, err := c.send(ctx, request{op: op, method: http.MethodGet, path: path, query: query})
	if err != nil {
		return nil, err
	}
	items, err := decodeList[Resource](resp.body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: decode list: %w", path, err)
	}
	return items, nil
}

var locationID = regexp.MustCompile(`/(\d+)$`)

// create POSTs body to collection and resolves the id of the new resource
// from the response body, then the Location header, then a title search
// over the most recent entries of the collection.
func (c *Client) create(ctx context.Context, op, collection string, body any, title string) (int64, error) {
	resp, err := c.send(ctx, request{op: op, method: http.MethodPost, path: collection, body: body})
	if err != nil {
		return 0, err
	}

	var created struct {
		ID ID `json:"id"`
	}
	if len(bytes.TrimSpace(resp.body)) > 0 && json.Unmarshal(resp.body, &created) == nil && created.ID > 0 {
		return int64(created.ID), nil
	}

	if m := locationID.FindStringSubmatch(resp.header.Get("Location")); m != nil {
		var id ID
		if err := id.UnmarshalJSON([]byte(m[1])); err == nil && id > 0 {
			return int64(id), nil
		}
	}

	recent, err := c.list(ctx, op, collection, url.Values{"limit": {"5"}, "order": {"desc"}})
	if err != nil {
		c.logger.WarnContext(ctx, "title search for created resource failed",
			logging.String("collection", collection),
			logging.Error(err),
		)
	}
	for _, r := range recent {
		if strings.TrimSpace(r.Title) == strings.TrimSpace(title) && r.ID > 0 {
			return int64(r.ID), nil
		}
	}

	return 0, &UpstreamError{
		Method:     http.MethodPost,
		Path:       collection,
		StatusCode: resp.status,
		Message:    "response carried no resource id",
	}
}

func (c *Client) patch(ctx context.Context, op, path string, body any) error {
	_, err := c.send(ctx, request{op: op, method: http.MethodPatch, path: path, body: body})
	return err
}

func isUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
