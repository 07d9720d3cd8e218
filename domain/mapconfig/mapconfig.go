// Package mapconfig defines the immutable MapConfig snapshot (spec §3) and
// the control-plane REST client that produces it (spec §6).
package mapconfig

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/guarzo/wanderer-notifier/internal/apperror"
	"github.com/guarzo/wanderer-notifier/internal/httpclient"
)

// MapConfig is an immutable snapshot of one map's configuration. It is
// created from the control-plane response (or environment fallback) and
// replaced wholesale when the control-plane version changes — never
// mutated in place.
type MapConfig struct {
	Slug        string
	MapID       string
	APIToken    string
	EventFilter []string // nil means "all default events"
	CreatedAt   time.Time
}

// EventAllowed reports whether eventType passes this map's event_filter.
// An empty filter means "all default events" per §8.12.
func (c MapConfig) EventAllowed(eventType string) bool {
	if len(c.EventFilter) == 0 {
		return true
	}
	for _, allowed := range c.EventFilter {
		if allowed == eventType {
			return true
		}
	}
	return false
}

// ConfigResponse is the parsed shape of GET {base}/api/v1/notifier/config.
type ConfigResponse struct {
	Maps    []MapConfig
	Version int64
}

// ErrEndpointNotFound signals a 404 from the control plane, which triggers
// legacy fallback per §4.1 step 5.
var ErrEndpointNotFound = fmt.Errorf("control-plane endpoint not found")

// ControlPlaneClient fetches map configs from the control-plane REST
// endpoint named in spec §6.
type ControlPlaneClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewControlPlaneClient builds a client for baseURL, authenticating with
// apiKey.
func NewControlPlaneClient(baseURL, apiKey string, client *http.Client) (*ControlPlaneClient, error) {
	normalized, err := httpclient.NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, apperror.Config("invalid MAP_URL", err)
	}
	if client == nil {
		client = httpclient.NewClient(httpclient.Config{}, httpclient.DefaultDefaults())
	}
	return &ControlPlaneClient{baseURL: normalized, apiKey: apiKey, client: client}, nil
}

// FetchConfig retrieves and parses the current control-plane config.
// Entries that fail validation are skipped (logged by the caller), not
// fatal to the whole fetch.
func (c *ControlPlaneClient) FetchConfig(ctx context.Context) (ConfigResponse, []error, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/notifier/config", nil)
	if err != nil {
		return ConfigResponse{}, nil, apperror.Transport("build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return ConfigResponse{}, nil, apperror.Transport("control-plane request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ConfigResponse{}, nil, ErrEndpointNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return ConfigResponse{}, nil, apperror.Transport(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	body, err := httpclient.ReadAllStrict(resp.Body, 4<<20)
	if err != nil {
		return ConfigResponse{}, nil, apperror.Transport("reading response body", err)
	}

	return parseConfigResponse(body)
}

func parseConfigResponse(body []byte) (ConfigResponse, []error, error) {
	if !gjson.ValidBytes(body) {
		return ConfigResponse{}, nil, apperror.Decode("invalid JSON", nil)
	}

	root := gjson.ParseBytes(body)
	data := root.Get("data")
	if !data.Exists() {
		return ConfigResponse{}, nil, apperror.Decode("missing data field", nil)
	}

	version := data.Get("version").Int()
	mapsArr := data.Get("maps")

	var out ConfigResponse
	out.Version = version

	var skipped []error
	mapsArr.ForEach(func(_, entry gjson.Result) bool {
		cfg, err := parseMapEntry(entry)
		if err != nil {
			skipped = append(skipped, err)
			return true
		}
		out.Maps = append(out.Maps, cfg)
		return true
	})

	return out, skipped, nil
}

func parseMapEntry(entry gjson.Result) (MapConfig, error) {
	slug := entry.Get("slug").String()
	mapID := entry.Get("map_id").String()
	token := entry.Get("api_token").String()

	var missing []string
	if slug == "" {
		missing = append(missing, "slug")
	}
	if mapID == "" {
		missing = append(missing, "map_id")
	}
	if len(missing) > 0 {
		return MapConfig{}, apperror.Validation("map config entry rejected", missing)
	}

	var filter []string
	if f := entry.Get("event_filter"); f.Exists() && f.IsArray() {
		f.ForEach(func(_, v gjson.Result) bool {
			if s := v.String(); s != "" {
				filter = append(filter, s)
			}
			return true
		})
	}

	return MapConfig{
		Slug:        slug,
		MapID:       mapID,
		APIToken:    token,
		EventFilter: filter,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
