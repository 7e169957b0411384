package ecommerce

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/telemetry"
)

// maxResponseSize is the maximum allowed response size from the REST API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// wooResponse is a successful HTTP response
type wooResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// totalPages reads the X-WP-TotalPages header, defaulting to 1
func (r *wooResponse) totalPages() int {
	n, err := strconv.Atoi(r.Header.Get("X-WP-TotalPages"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// WooClient performs authenticated requests against one WooCommerce store
type WooClient struct {
	config     *WooConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewWooClient creates a client for the given configuration
func NewWooClient(config *WooConfig, logger *zap.Logger) (*WooClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for staging stores
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &WooClient{
		config: config,
		httpClient: &http.Client{
			Timeout:   time.Duration(config.TimeoutSeconds) * time.Second,
			Transport: transport,
		},
		limiter: rate.NewLimiter(limit, config.Burst),
		logger:  logger.With(zap.String("store", config.BaseURL)),
	}, nil
}

// doRequest sends one request. Failures are returned as *integration.RemoteError.
func (c *WooClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (out *wooResponse, err error) {
	ctx, span := telemetry.StartClientSpan(ctx, "woocommerce "+method,
		attribute.String("http.method", method),
		attribute.String("woocommerce.path", path),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, integration.NewTransportError(err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("woocommerce: failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.config.Endpoint(path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("woocommerce: failed to create request: %w", err)
	}
	req.SetBasicAuth(c.config.ConsumerKey, c.config.ConsumerSecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, integration.NewTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, integration.NewTransportError(fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug("woocommerce request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		var apiErr wooErrorResponse
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, integration.NewRemoteError(resp.StatusCode, apiErr.Code, apiErr.Message)
	}

	return &wooResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// getList fetches one page of a collection and splits it into raw documents
func (c *WooClient) getList(ctx context.Context, path string, query url.Values) ([]json.RawMessage, *wooResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(resp.Body, &items); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", integration.ErrInvalidRemoteResponse, path, err)
	}
	return items, resp, nil
}

// getAllPages walks every page of a collection
func (c *WooClient) getAllPages(ctx context.Context, path string, query url.Values) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for page := 1; ; page++ {
		q := cloneValues(query)
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.config.PageSize))

		items, resp, err := c.getList(ctx, path, q)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if page >= resp.totalPages() || len(items) == 0 {
			return all, nil
		}
	}
}

// send performs a write and decodes the returned entity
func (c *WooClient) send(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	resp, err := c.doRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, nil
	}
	var doc json.RawMessage
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", integration.ErrInvalidRemoteResponse, path, err)
	}
	return doc, nil
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
