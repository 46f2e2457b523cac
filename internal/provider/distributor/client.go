// Package distributor implements a provider for part-distributor services
// exposing a REST API of the form GET {base}/v1/parts/{subject}/{resource}.
package distributor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/phrazzld/stockroom/internal/capability"
	"github.com/phrazzld/stockroom/internal/provider"
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 1 << 20

var subjectPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// resources maps each capability onto the distributor endpoint serving it.
var resources = map[capability.Name]string{
	capability.FetchDatasheet: "datasheet",
	capability.FetchSpecs:     "specs",
	capability.FetchImage:     "image",
	capability.FetchPricing:   "pricing",
}

// Client talks to one distributor.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a distributor client.
func NewClient(name, baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capabilities reports what this client can serve with its current
// credentials. Product images are public; everything else needs a key.
func (c *Client) Capabilities() []capability.Name {
	if c.apiKey == "" {
		return []capability.Name{capability.FetchImage}
	}
	return []capability.Name{
		capability.FetchDatasheet,
		capability.FetchSpecs,
		capability.FetchImage,
		capability.FetchPricing,
	}
}

// Provider exposes the client as a capability table.
func (c *Client) Provider() *provider.Provider {
	table := make(provider.Table)
	for _, capName := range c.Capabilities() {
		resource := resources[capName]
		table[capName] = func(ctx context.Context, subjectID string, _ map[string]any) (provider.Artifact, error) {
			data, err := c.fetch(ctx, subjectID, resource)
			if err != nil {
				return provider.Artifact{}, err
			}
			return provider.Artifact{Data: data}, nil
		}
	}
	return provider.New(c.name, table)
}

func (c *Client) fetch(ctx context.Context, subjectID, resource string) (map[string]any, error) {
	if !subjectPattern.MatchString(subjectID) {
		return nil, fmt.Errorf("%s: %w: %q", c.name, provider.ErrMalformedSubject, subjectID)
	}

	u := fmt.Sprintf("%s/v1/parts/%s/%s", c.baseURL, url.PathEscape(subjectID), resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%s build request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", c.name, resource, ctx.Err())
		}
		return nil, fmt.Errorf("%s %s: %w: %v", c.name, resource, provider.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s read response: %w: %v", c.name, provider.ErrTransient, err)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%s %s for %s: %w (status %d)", c.name, resource, subjectID, err, resp.StatusCode)
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%s parse response: %w", c.name, err)
	}
	return data, nil
}

func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return provider.ErrNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return provider.ErrUnauthorized
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return provider.ErrMalformedSubject
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return provider.ErrTransient
	default:
		return fmt.Errorf("unexpected upstream status %d", status)
	}
}
