// Package resource is the generic REST accessor for the framework API.
//
// A Client is an immutable path builder: WithPath returns a new Client and
// the underlying transport is shared. Outbound parameter keys are converted
// to camelCase and inbound fields back to snake_case.
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/sigapi/internal/poller"
	"github.com/wonny/sigapi/pkg/config"
	"github.com/wonny/sigapi/pkg/httputil"
	"github.com/wonny/sigapi/pkg/logger"
)

// Params are request parameters keyed in snake_case
type Params map[string]interface{}

// Client addresses one REST collection
type Client struct {
	baseURL string
	url     string
	apiKey  string
	version string

	http   *httputil.Client
	logger *logger.Logger

	waitTimeout time.Duration
	waitTimer   bool
	pollClock   poller.Clock
	pollUnit    time.Duration
}

// New creates a root client.
// Returns config.ErrMissingAPIKey when no key is configured.
func New(cfg config.APIConfig, http *httputil.Client, log *logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	version := cfg.Version
	if version == "" {
		version = config.Version
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		baseURL:     base,
		url:         base,
		apiKey:      cfg.APIKey,
		version:     version,
		http:        http,
		logger:      log.Component("resource"),
		waitTimeout: cfg.WaitTimeout,
		waitTimer:   cfg.WaitTimer,
	}, nil
}

func (c *Client) clone() *Client {
	cp := *c
	return &cp
}

// WithPath returns a new client addressing url/segment/...
func (c *Client) WithPath(segments ...string) *Client {
	cp := c.clone()
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s == "" {
			continue
		}
		cp.url += "/" + s
	}
	return cp
}

// Root returns a client addressing the API root
func (c *Client) Root() *Client {
	cp := c.clone()
	cp.url = c.baseURL
	return cp
}

// WithRoot re-bases on the API root and appends a slash-separated path
func (c *Client) WithRoot(path string) *Client {
	return c.Root().WithPath(strings.Split(path, "/")...)
}

// WithPolling overrides the poller clock and backoff unit used by envelope waits
func (c *Client) WithPolling(clock poller.Clock, unit time.Duration) *Client {
	cp := c.clone()
	cp.pollClock = clock
	cp.pollUnit = unit
	return cp
}

// URL returns the addressed resource URL
func (c *Client) URL() string {
	return c.url
}

// Namespace returns the last path segment
func (c *Client) Namespace() string {
	if i := strings.LastIndex(c.url, "/"); i >= 0 {
		return c.url[i+1:]
	}
	return c.url
}

// WaitTimeout returns the default polling budget
func (c *Client) WaitTimeout() time.Duration {
	return c.waitTimeout
}

// Create POSTs params and wraps the created object
func (c *Client) Create(ctx context.Context, params Params) (*Envelope, error) {
	body, err := json.Marshal(toWire(params))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s params: %w", c.Namespace(), err)
	}

	c.logger.WithField("params", params).Debugf("POST %s", c.url)

	data, err := c.do(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, err
	}

	raw, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", c.url, err)
	}
	return NewEnvelope(raw, Singular(c.Namespace()), c, params), nil
}

// List GETs the collection. Both a bare array and {"<namespace>": [...]} are accepted.
func (c *Client) List(ctx context.Context, params Params) ([]*Envelope, error) {
	target := c.url + encodeQuery(params)

	data, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	items, err := c.decodeList(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", target, err)
	}

	name := Singular(c.Namespace())
	out := make([]*Envelope, 0, len(items))
	for _, item := range items {
		out = append(out, NewEnvelope(item, name, c, params))
	}
	return out, nil
}

// Get GETs url/id (id may be empty)
func (c *Client) Get(ctx context.Context, id string, params Params) (*Envelope, error) {
	target := strings.TrimRight(c.url+"/"+id, "/") + encodeQuery(params)

	data, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	raw, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", target, err)
	}
	return NewEnvelope(raw, Singular(c.Namespace()), c, params), nil
}

// Delete DELETEs url/id. An empty response body yields an empty envelope.
func (c *Client) Delete(ctx context.Context, id string) (*Envelope, error) {
	target := strings.TrimRight(c.url+"/"+id, "/")

	data, err := c.do(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return nil, err
	}

	raw, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", target, err)
	}
	return NewEnvelope(raw, Singular(c.Namespace()), c, nil), nil
}

// QueryObject fetches sessions/{sessionID}/objects/{objectID} from the API root
func (c *Client) QueryObject(ctx context.Context, sessionID, objectID string) (*Envelope, error) {
	env, err := c.Root().WithPath("sessions", sessionID, "objects", objectID).Get(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	// keep session_id so the result can be polled again
	env.params = Params{"session_id": sessionID}
	return env, nil
}

// do sends one request and returns the body of a 2xx response
func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Sig-Version", c.version)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s response: %w", method, target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
		c.logger.WithError(httpErr).Error("API request error")
		return nil, httpErr
	}

	return data, nil
}

func decodeObject(data []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]interface{}{}, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return raw, nil
}

func (c *Client) decodeList(data []byte) ([]map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []map[string]interface{}
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}

	ns := c.Namespace()
	for _, key := range []string{ns, SnakeToCamel(ns)} {
		if inner, ok := wrapped[key]; ok {
			var items []map[string]interface{}
			if err := json.Unmarshal(inner, &items); err != nil {
				return nil, err
			}
			return items, nil
		}
	}
	return nil, fmt.Errorf("list response has no %q key", ns)
}

// encodeQuery renders params as ?camelKey=value in key order
func encodeQuery(params Params) string {
	if len(params) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(SnakeToCamel(k), fmt.Sprint(v))
	}
	return "?" + values.Encode()
}
