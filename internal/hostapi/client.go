package hostapi

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Config configures the host XMLHttpRequest.
type Config struct {
	// Timeout bounds requests whose script timeout is 0.
	Timeout   time.Duration
	UserAgent string
	// BaseURL resolves relative request URLs.
	BaseURL string
	// Client overrides the HTTP client shared by every request.
	Client *resty.Client
	Logger *zap.Logger
}

// DefaultConfig returns the default XHR configuration
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		UserAgent: "realmbridge-xhr/1.0",
	}
}

// NewClient creates the HTTP client used by XMLHttpRequest. Scripts expect
// one request per send, so retries are disabled on both layers.
func NewClient(cfg Config) *resty.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	client := resty.New()
	client.
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.UserAgent)

	client.SetTransport(retryClient.HTTPClient.Transport)
	return client
}
