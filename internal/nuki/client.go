// Package nuki is the gateway to the Nuki Web API and the decoder for the
// webhooks it delivers.
package nuki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL  = "https://api.nuki.io"
	DefaultTimeout  = 5 * time.Second
	DefaultCacheTTL = 60 * time.Second
)

// ErrUnreachable wraps every transport failure, timeout and non-2xx answer.
var ErrUnreachable = errors.New("nuki: api unreachable")

type Config struct {
	BaseURL  string
	APIKey   string // instance default, used when a lock has no override
	Timeout  time.Duration
	CacheTTL time.Duration
}

// ActionResult is the body of an accepted advanced action.  Error is the
// vendor's per-call error string; empty means the command was queued.
type ActionResult struct {
	RequestID string
	Error     string
}

type Client struct {
	cfg   Config
	http  *http.Client
	cache *cache.Cache
	log   *zap.Logger
}

// New returns a Client.  httpClient may be nil.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:   cfg,
		http:  httpClient,
		cache: cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		log:   logger,
	}
}

func cacheKey(deviceID string) string { return "nuki:" + deviceID }

func (c *Client) key(override string) string {
	if override != "" {
		return override
	}
	return c.cfg.APIKey
}

// AdvancedAction sends action to the device.  Commands never touch the read
// cache.
func (c *Client) AdvancedAction(ctx context.Context, deviceID, apiKey string, action int) (ActionResult, error) {
	body, err := json.Marshal(map[string]int{"action": action})
	if err != nil {
		return ActionResult{}, err
	}

	raw, err := c.do(ctx, http.MethodPost, deviceID, "action/advanced", apiKey, body)
	if err != nil {
		return ActionResult{}, err
	}

	var payload struct {
		RequestID flexString `json:"requestId"`
		Error     flexString `json:"error"`
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return ActionResult{}, fmt.Errorf("%w: decode action response: %v", ErrUnreachable, err)
		}
	}
	return ActionResult{RequestID: string(payload.RequestID), Error: string(payload.Error)}, nil
}

// Smartlock returns the device document, served from cache for CacheTTL.
func (c *Client) Smartlock(ctx context.Context, deviceID, apiKey string) (map[string]any, error) {
	if v, ok := c.cache.Get(cacheKey(deviceID)); ok {
		return v.(map[string]any), nil
	}

	raw, err := c.do(ctx, http.MethodGet, deviceID, "", apiKey, nil)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode smartlock: %v", ErrUnreachable, err)
	}
	c.cache.Set(cacheKey(deviceID), doc, cache.DefaultExpiration)
	return doc, nil
}

// Invalidate drops the cached device document.
func (c *Client) Invalidate(deviceID string) {
	c.cache.Delete(cacheKey(deviceID))
}

func (c *Client) do(ctx context.Context, method, deviceID, endpoint, apiKey string, body []byte) ([]byte, error) {
	url := c.cfg.BaseURL + "/smartlock/" + deviceID
	if endpoint != "" {
		url += "/" + endpoint
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.key(apiKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("nuki call failed",
			zap.String("method", method), zap.String("device_id", deviceID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}

	c.log.Debug("nuki call",
		zap.String("method", method),
		zap.String("device_id", deviceID),
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
	return raw, nil
}
