// Package mapapi implements the static-info enrichment client of spec §6:
// GET {map_base}/api/common/system-static-info?id={solar_system_id}.
package mapapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/guarzo/wanderer-notifier/internal/apperror"
	"github.com/guarzo/wanderer-notifier/internal/httpclient"
	"github.com/guarzo/wanderer-notifier/internal/ratelimit"
	"github.com/guarzo/wanderer-notifier/domain/system"
)

// StaticInfo is the enrichment data extracted from the response. Missing
// fields are tolerated per spec: callers only merge what is present.
type StaticInfo struct {
	ClassTitle    string
	EffectName    string
	IsShattered   bool
	RegionName    string
	Security      float64
	SunTypeID     int64
	StaticDetails []system.StaticDetail
}

// StaticInfoClient fetches per-system enrichment data, rate-limited so a
// burst of add_system events cannot hammer the map's REST API.
type StaticInfoClient struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Limiter
}

// NewStaticInfoClient builds a client for baseURL.
func NewStaticInfoClient(baseURL string, httpClient *http.Client, limiter *ratelimit.Limiter) (*StaticInfoClient, error) {
	normalized, err := httpclient.NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, apperror.Config("invalid map base URL", err)
	}
	if httpClient == nil {
		httpClient = httpclient.NewClient(httpclient.Config{}, httpclient.DefaultDefaults())
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultStaticInfoConfig())
	}
	return &StaticInfoClient{baseURL: normalized, client: httpClient, limiter: limiter}, nil
}

// Fetch retrieves static-info for solarSystemID.
func (c *StaticInfoClient) Fetch(ctx context.Context, solarSystemID int64) (StaticInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return StaticInfo{}, apperror.Timeout("rate limit wait canceled", err)
	}

	url := fmt.Sprintf("%s/api/common/system-static-info?id=%s", c.baseURL, strconv.FormatInt(solarSystemID, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StaticInfo{}, apperror.Transport("build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return StaticInfo{}, apperror.Transport("static-info request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StaticInfo{}, apperror.Transport(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	body, err := httpclient.ReadAllStrict(resp.Body, 1<<20)
	if err != nil {
		return StaticInfo{}, apperror.Transport("reading response body", err)
	}

	if !gjson.ValidBytes(body) {
		return StaticInfo{}, apperror.Decode("invalid JSON", nil)
	}

	data := gjson.ParseBytes(body).Get("data")

	info := StaticInfo{
		ClassTitle:  data.Get("class_title").String(),
		EffectName:  data.Get("effect_name").String(),
		IsShattered: data.Get("is_shattered").Bool(),
		RegionName:  data.Get("region_name").String(),
		SunTypeID:   data.Get("sun_type_id").Int(),
	}
	if sec := data.Get("security"); sec.Exists() {
		if f, err := strconv.ParseFloat(sec.String(), 64); err == nil {
			info.Security = f
		}
	}

	data.Get("static_details").ForEach(func(_, entry gjson.Result) bool {
		info.StaticDetails = append(info.StaticDetails, system.StaticDetail{
			Name:             entry.Get("name").String(),
			DestinationID:    entry.Get("destination.id").String(),
			DestinationName:  entry.Get("destination.name").String(),
			DestinationShort: entry.Get("destination.short_name").String(),
			Lifetime:         entry.Get("properties.lifetime").String(),
			MaxJumpMass:      entry.Get("properties.max_jump_mass").Float(),
			MaxMass:          entry.Get("properties.max_mass").Float(),
			MassRegeneration: entry.Get("properties.mass_regeneration").Float(),
		})
		return true
	})

	return info, nil
}
