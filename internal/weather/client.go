// Package weather fetches current conditions from OpenWeatherMap, with a
// short-lived per-coordinate cache so one cycle over nearby beaches does
// not burn through the API allowance.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lox/coastwatch/internal/httputil"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Snapshot holds current conditions for one location. Pointer fields
// distinguish "not reported" from zero.
type Snapshot struct {
	TemperatureC    *float64
	FeelsLikeC      *float64
	HumidityPct     *float64
	WindSpeedKmh    *float64
	WindDirection   *string
	WindGustKmh     *float64
	Condition       *string
	Description     *string
	PrecipitationMm *float64
	VisibilityKm    *float64
	UVIndex         *float64
}

type cacheEntry struct {
	snapshot Snapshot
	at       time.Time
}

// Client fetches and caches weather snapshots. A missing API key is not
// an error: Current returns an empty snapshot so the pipeline records the
// observation without conditions.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	ttl     time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  httputil.NewClient(),
		ttl:     10 * time.Minute,
		cache:   make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// owmResponse covers the fields we use from the OWM current-weather API.
type owmResponse struct {
	Weather []struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
		Deg   *float64 `json:"deg"`
		Gust  *float64 `json:"gust"`
	} `json:"wind"`
	Rain struct {
		OneHour *float64 `json:"1h"`
	} `json:"rain"`
	Visibility *float64 `json:"visibility"`
}

// Current returns conditions at the given coordinates, serving from cache
// when a fresh enough snapshot exists.
func (c *Client) Current(ctx context.Context, lat, lon float64) (Snapshot, error) {
	if c.apiKey == "" {
		return Snapshot{}, nil
	}

	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && c.now().Sub(entry.at) < c.ttl {
		c.mu.Unlock()
		return entry.snapshot, nil
	}
	c.mu.Unlock()

	snapshot, err := c.fetch(ctx, lat, lon)
	if err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{snapshot: snapshot, at: c.now()}
	c.mu.Unlock()
	return snapshot, nil
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (Snapshot, error) {
	url := fmt.Sprintf("%s?lat=%f&lon=%f&appid=%s&units=metric", c.baseURL, lat, lon, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("weather: building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, fmt.Errorf("weather: api returned %d: %s", resp.StatusCode, body)
	}

	var raw owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Snapshot{}, fmt.Errorf("weather: decoding response: %w", err)
	}

	s := Snapshot{
		TemperatureC:    raw.Main.Temp,
		FeelsLikeC:      raw.Main.FeelsLike,
		HumidityPct:     raw.Main.Humidity,
		PrecipitationMm: raw.Rain.OneHour,
	}
	if raw.Wind.Speed != nil {
		kmh := *raw.Wind.Speed * 3.6
		s.WindSpeedKmh = &kmh
	}
	if raw.Wind.Gust != nil {
		kmh := *raw.Wind.Gust * 3.6
		s.WindGustKmh = &kmh
	}
	if raw.Wind.Deg != nil {
		dir := compassDirection(*raw.Wind.Deg)
		s.WindDirection = &dir
	}
	if raw.Visibility != nil {
		km := *raw.Visibility / 1000
		s.VisibilityKm = &km
	}
	if len(raw.Weather) > 0 {
		cond := conditionFromID(raw.Weather[0].ID)
		s.Condition = &cond
		desc := raw.Weather[0].Description
		s.Description = &desc
	}
	return s, nil
}

// conditionFromID maps OWM condition codes onto the small vocabulary the
// rest of the system uses.
func conditionFromID(id int) string {
	switch {
	case id == 800:
		return "clear"
	case id == 801 || id == 802:
		return "partly_cloudy"
	case id == 803 || id == 804:
		return "overcast"
	case id >= 200 && id < 300:
		return "storm"
	case id >= 300 && id < 400:
		return "rain"
	case id >= 500 && id < 600:
		return "rain"
	case id >= 600 && id < 700:
		return "snow"
	case id >= 700 && id < 800:
		return "fog"
	default:
		return "unknown"
	}
}

var compassPoints = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// compassDirection converts degrees to a 16-point compass name.
func compassDirection(deg float64) string {
	idx := int((deg+11.25)/22.5) % 16
	if idx < 0 {
		idx += 16
	}
	return compassPoints[idx]
}
