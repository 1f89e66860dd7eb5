// Package cfapi is a thin authenticated client for the Cloudflare v4 REST API.
package cfapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/edgecomet/cfpurge/internal/common/configtypes"
)

// Credentials supplies the account email and global API key on every call.
type Credentials interface {
	Get(ctx context.Context, name string) (string, bool, error)
}

// Caller is the single operation the rest of the daemon depends on.
type Caller interface {
	Call(ctx context.Context, method, path string, params Params) (*Result, error)
}

// MaxResponseBodySize bounds how much of a provider response is buffered
const MaxResponseBodySize = 4 << 20

// Client performs one authenticated round trip per Call, without retries.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	maxBodySize int64
	credentials Credentials
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewClient builds a client from provider settings.
// A zero timeout leaves the request bounded only by ctx.
func NewClient(cfg configtypes.ProviderConfig, credentials Credentials, logger *zap.Logger) (*Client, error) {
	if credentials == nil {
		return nil, fmt.Errorf("credentials source is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = configtypes.DefaultProviderBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout),
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:     baseURL,
		maxBodySize: MaxResponseBodySize,
		credentials: credentials,
		logger:      logger,
	}

	if cfg.RateLimit.Enabled {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	return c, nil
}

// Call sends method to baseURL+path. POST, PUT and DELETE carry params as a
// JSON body; GET carries them as a query string. Non-2xx responses are still
// decoded since the provider reports failures inside the envelope.
func (c *Client) Call(ctx context.Context, method, path string, params Params) (*Result, error) {
	endpoint := c.baseURL + strings.TrimPrefix(path, "/")

	var body []byte
	switch method {
	case http.MethodGet:
		if q := encodeQuery(params); q != "" {
			endpoint += "?" + q
		}
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		if params == nil {
			params = Params{}
		}
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		body = encoded
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	}

	email, key := c.readCredentials(ctx)
	req.Header.Set("X-Auth-Email", email)
	req.Header.Set("X-Auth-Key", key)
	req.Header.Set("Content-Type", "application/json")

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.Warn("Cloudflare API call dropped by rate limiter",
				zap.String("method", method),
				zap.String("path", path),
				zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Cloudflare API request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		c.logger.Error("Failed to read Cloudflare API response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if int64(len(respBody)) > c.maxBodySize {
		c.logger.Error("Cloudflare API response too large",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.Int64("limit_bytes", c.maxBodySize))
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", ErrMalformedResponse, c.maxBodySize)
	}

	result, err := parseResult(resp.StatusCode, respBody)
	if err != nil {
		c.logger.Error("Cloudflare API returned malformed response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_preview", string(respBody[:min(200, len(respBody))])))
		return nil, err
	}

	c.logger.Debug("Cloudflare API call completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode),
		zap.Bool("success", result.Succeeded()),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

func (c *Client) readCredentials(ctx context.Context) (string, string) {
	email, _, err := c.credentials.Get(ctx, configtypes.OptionAPIEmail)
	if err != nil {
		c.logger.Warn("Failed to read Cloudflare API email", zap.Error(err))
	}
	key, _, err := c.credentials.Get(ctx, configtypes.OptionAPIKey)
	if err != nil {
		c.logger.Warn("Failed to read Cloudflare API key", zap.Error(err))
	}
	return email, key
}
