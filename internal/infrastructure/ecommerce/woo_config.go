package ecommerce

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// WooConfig holds configuration for one WooCommerce REST endpoint
type WooConfig struct {
	// BaseURL is the store root, e.g. https://shop.example.com
	BaseURL string
	// ConsumerKey is the REST API key (ck_...)
	ConsumerKey string
	// ConsumerSecret is the REST API secret (cs_...)
	ConsumerSecret string
	// APIPrefix is the REST namespace path
	APIPrefix string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// PageSize is the page size used for index listings (max 100)
	PageSize int
	// RequestsPerSecond caps outgoing requests, 0 means unlimited
	RequestsPerSecond float64
	// Burst is the limiter burst size
	Burst int
	// InsecureSkipVerify disables TLS verification for self-signed staging stores
	InsecureSkipVerify bool
}

const (
	// WooDefaultAPIPrefix is the WooCommerce REST v3 namespace
	WooDefaultAPIPrefix = "/wp-json/wc/v3"
	// WooMaxPageSize is the largest per_page accepted by the API
	WooMaxPageSize = 100
	// WooDefaultTimeoutSeconds is the default request timeout
	WooDefaultTimeoutSeconds = 30
)

// Errors for WooCommerce configuration
var (
	ErrWooConfigMissingBaseURL = errors.New("woocommerce: base url is required")
	ErrWooConfigInvalidBaseURL = errors.New("woocommerce: base url must be an absolute http(s) url")
	ErrWooConfigMissingKey     = errors.New("woocommerce: consumer key is required")
	ErrWooConfigMissingSecret  = errors.New("woocommerce: consumer secret is required")
)

// NewWooConfig creates a configuration with defaults
func NewWooConfig(baseURL, consumerKey, consumerSecret string) *WooConfig {
	return &WooConfig{
		BaseURL:        baseURL,
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		APIPrefix:      WooDefaultAPIPrefix,
		TimeoutSeconds: WooDefaultTimeoutSeconds,
		PageSize:       WooMaxPageSize,
		Burst:          1,
	}
}

// WooTransportDefaults returns the transport settings shared by every
// integration's client. Zero arguments keep the built-in defaults.
func WooTransportDefaults(timeout time.Duration, pageSize int, requestsPerSecond float64, burst int) WooConfig {
	cfg := NewWooConfig("", "", "")
	if secs := int(timeout / time.Second); secs > 0 {
		cfg.TimeoutSeconds = secs
	}
	if pageSize > 0 && pageSize <= WooMaxPageSize {
		cfg.PageSize = pageSize
	}
	if requestsPerSecond > 0 {
		cfg.RequestsPerSecond = requestsPerSecond
	}
	if burst > 0 {
		cfg.Burst = burst
	}
	return *cfg
}

// Validate validates the configuration and fills defaults
func (c *WooConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrWooConfigMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrWooConfigInvalidBaseURL
	}
	if c.ConsumerKey == "" {
		return ErrWooConfigMissingKey
	}
	if c.ConsumerSecret == "" {
		return ErrWooConfigMissingSecret
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.APIPrefix == "" {
		c.APIPrefix = WooDefaultAPIPrefix
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = WooDefaultTimeoutSeconds
	}
	if c.PageSize <= 0 || c.PageSize > WooMaxPageSize {
		c.PageSize = WooMaxPageSize
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return nil
}

// Endpoint returns the absolute URL of a resource path
func (c *WooConfig) Endpoint(path string) string {
	return c.BaseURL + c.APIPrefix + "/" + strings.TrimLeft(path, "/")
}

// Fingerprint identifies the endpoint and credentials, used to detect changes
func (c *WooConfig) Fingerprint() string {
	return strings.Join([]string{c.BaseURL, c.APIPrefix, c.ConsumerKey, c.ConsumerSecret, strconv.FormatBool(c.InsecureSkipVerify)}, "|")
}
