package geocode

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/timeout"
	"github.com/go-resty/resty/v2"

	"squeegee/pkg/logging"
)

// sweepTimeout bounds the whole nearby-roads sweep, not a single attempt.
const sweepTimeout = 6 * time.Second

var defaultOverpassEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
}

// Three search radii in metres, narrowest first. The sweep short-circuits on
// the first non-empty result, so the bound is 3 radii x 2 endpoints.
var defaultRadii = []int{150, 300, 600}

// Client queries OpenStreetMap services for nearby road names and reverse
// geocoding. All upstream calls inject auth/user-agent headers server-side
// so browser clients never talk to the upstreams directly.
type Client struct {
	http         *resty.Client
	nominatimURL string
	endpoints    []string
	radii        []int
	logger       logging.Logger
}

// Config for creating a geocode client
type Config struct {
	NominatimURL      string
	OverpassEndpoints []string
	UserAgent         string
	Logger            logging.Logger
}

// NewClient creates a geocode client with sensible OSM defaults
func NewClient(cfg Config) *Client {
	nominatim := cfg.NominatimURL
	if nominatim == "" {
		nominatim = "https://nominatim.openstreetmap.org"
	}
	endpoints := cfg.OverpassEndpoints
	if len(endpoints) == 0 {
		endpoints = defaultOverpassEndpoints
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "squeegee/1.0"
	}

	http := resty.New().
		SetTimeout(5 * time.Second).
		SetHeader("User-Agent", userAgent)

	return &Client{
		http:         http,
		nominatimURL: nominatim,
		endpoints:    endpoints,
		radii:        defaultRadii,
		logger:       cfg.Logger,
	}
}

// RoadsResult is a non-empty sweep outcome
type RoadsResult struct {
	Names  []string
	Source string
}

type overpassResponse struct {
	Elements []struct {
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// NearbyRoads sweeps increasing radii across the configured Overpass
// endpoints until one returns road names. The whole sweep aborts after six
// seconds regardless of how many attempts remain.
func (c *Client) NearbyRoads(ctx context.Context, lat, lng float64) (*RoadsResult, error) {
	executor := failsafe.With(timeout.New[*RoadsResult](sweepTimeout)).WithContext(ctx)

	return executor.GetWithExecution(func(exec failsafe.Execution[*RoadsResult]) (*RoadsResult, error) {
		return c.sweep(exec.Context(), lat, lng)
	})
}

func (c *Client) sweep(ctx context.Context, lat, lng float64) (*RoadsResult, error) {
	var lastErr error

	for _, radius := range c.radii {
		for _, endpoint := range c.endpoints {
			names, err := c.queryOverpass(ctx, endpoint, radius, lat, lng)
			if err != nil {
				lastErr = err
				c.logger.WithError(err).WithFields(logging.Fields{
					"endpoint": endpoint,
					"radius_m": radius,
				}).Debug("Overpass attempt failed")
				continue
			}
			if len(names) > 0 {
				return &RoadsResult{
					Names:  names,
					Source: fmt.Sprintf("%s r=%dm", hostOf(endpoint), radius),
				}, nil
			}
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("nearby roads sweep exhausted: %w", lastErr)
	}
	return &RoadsResult{Names: []string{}, Source: "none"}, nil
}

func (c *Client) queryOverpass(ctx context.Context, endpoint string, radius int, lat, lng float64) ([]string, error) {
	query := fmt.Sprintf(`[out:json][timeout:5];way(around:%d,%f,%f)[highway][name];out tags;`, radius, lat, lng)

	var result overpassResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody("data=" + url.QueryEscape(query)).
		SetResult(&result).
		Post(endpoint)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("overpass returned status %d", resp.StatusCode())
	}

	seen := make(map[string]struct{})
	var names []string
	for _, el := range result.Elements {
		name := strings.TrimSpace(el.Tags["name"])
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

// ReverseGeocode returns the raw upstream geocode JSON for a coordinate
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format": "jsonv2",
			"lat":    fmt.Sprintf("%f", lat),
			"lon":    fmt.Sprintf("%f", lng),
		}).
		Get(c.nominatimURL + "/reverse")
	if err != nil {
		return nil, fmt.Errorf("reverse geocode failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("reverse geocode returned status %d: %s", resp.StatusCode(), resp.Body())
	}

	return resp.Body(), nil
}

func hostOf(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}
