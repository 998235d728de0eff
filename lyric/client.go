package lyric

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.honeywell.com/v2"

// Client talks to the Honeywell Lyric REST API. Authentication is the
// responsibility of the supplied http.Client; the Client only adds the API key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	mu        sync.RWMutex
	devices   []Device
	locations []Location
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithLogger sets the logger used for payload tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(httpClient *http.Client, apiKey string, opts ...Option) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}

	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	return c, nil
}

// ClientID returns the API key used for every request.
func (c *Client) ClientID() string {
	return c.apiKey
}

// Devices returns the devices from the most recent GetDevices call.
func (c *Client) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.devices)
}

// Locations returns the locations from the most recent GetLocations call.
func (c *Client) Locations() []Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.locations)
}

// GetLocations fetches all locations and replaces the stored list.
func (c *Client) GetLocations(ctx context.Context) ([]Location, error) {
	var locations []Location
	if err := c.getJSON(ctx, "/locations", nil, &locations); err != nil {
		return nil, err
	}
	if locations == nil {
		locations = []Location{}
	}

	c.mu.Lock()
	c.locations = locations
	c.mu.Unlock()

	return slices.Clone(locations), nil
}

// GetDevices fetches the devices of a location and replaces the stored list.
func (c *Client) GetDevices(ctx context.Context, locationID int) ([]Device, error) {
	query := url.Values{"locationId": {strconv.Itoa(locationID)}}

	var devices []Device
	if err := c.getJSON(ctx, "/devices", query, &devices); err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []Device{}
	}

	c.mu.Lock()
	c.devices = devices
	c.mu.Unlock()

	return slices.Clone(devices), nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	// An empty body, null or {} all mean nothing to report.
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) {
		return nil
	}
	c.logger.Debug("lyric response", zap.String("path", path), zap.ByteString("body", body))
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, query url.Values, payload any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodPost, path, query, data)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	c.logger.Debug("lyric response", zap.String("path", path), zap.ByteString("body", body))
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	endpoint := c.endpoint(path, query)

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	values := url.Values{"apikey": {c.apiKey}}
	for key, vals := range query {
		values[key] = vals
	}
	return c.baseURL + path + "?" + values.Encode()
}
