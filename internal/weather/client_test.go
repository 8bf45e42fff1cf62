package weather

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const owmFixture = `{
	"weather": [{"id": 801, "description": "few clouds"}],
	"main": {"temp": 21.4, "feels_like": 20.9, "humidity": 64},
	"wind": {"speed": 5.0, "deg": 290, "gust": 8.0},
	"visibility": 10000
}`

func TestCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("appid"); got != "test-key" {
			t.Errorf("appid = %q, want test-key", got)
		}
		if got := r.URL.Query().Get("units"); got != "metric" {
			t.Errorf("units = %q, want metric", got)
		}
		io.WriteString(w, owmFixture)
	}))
	defer srv.Close()

	c := NewClient("test-key")
	c.baseURL = srv.URL

	got, err := c.Current(context.Background(), 43.4832, -1.5586)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}

	if got.TemperatureC == nil || *got.TemperatureC != 21.4 {
		t.Errorf("TemperatureC = %v, want 21.4", got.TemperatureC)
	}
	if got.WindSpeedKmh == nil || *got.WindSpeedKmh != 18 {
		t.Errorf("WindSpeedKmh = %v, want 18 (5 m/s)", got.WindSpeedKmh)
	}
	if got.WindGustKmh == nil || *got.WindGustKmh != 28.8 {
		t.Errorf("WindGustKmh = %v, want 28.8 (8 m/s)", got.WindGustKmh)
	}
	if got.WindDirection == nil || *got.WindDirection != "WNW" {
		t.Errorf("WindDirection = %v, want WNW (290 deg)", got.WindDirection)
	}
	if got.Condition == nil || *got.Condition != "partly_cloudy" {
		t.Errorf("Condition = %v, want partly_cloudy", got.Condition)
	}
	if got.Description == nil || *got.Description != "few clouds" {
		t.Errorf("Description = %v, want few clouds", got.Description)
	}
	if got.VisibilityKm == nil || *got.VisibilityKm != 10 {
		t.Errorf("VisibilityKm = %v, want 10", got.VisibilityKm)
	}
	if got.PrecipitationMm != nil {
		t.Errorf("PrecipitationMm = %v, want nil (no rain block)", got.PrecipitationMm)
	}
}

func TestCurrent_CacheHit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, owmFixture)
	}))
	defer srv.Close()

	c := NewClient("test-key")
	c.baseURL = srv.URL
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := c.Current(context.Background(), 43.4832, -1.5586); err != nil {
			t.Fatalf("Current %d: %v", i+1, err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1 (cached)", got)
	}

	// Different coordinates miss the cache.
	if _, err := c.Current(context.Background(), 44.65, -1.25); err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}

	// TTL expiry refetches.
	now = now.Add(11 * time.Minute)
	if _, err := c.Current(context.Background(), 43.4832, -1.5586); err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3 after ttl expiry", got)
	}
}

func TestCurrent_NoAPIKey(t *testing.T) {
	c := NewClient("")
	got, err := c.Current(context.Background(), 43.4832, -1.5586)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got != (Snapshot{}) {
		t.Errorf("snapshot = %+v, want empty without an api key", got)
	}
}

func TestConditionFromID(t *testing.T) {
	tests := []struct {
		id   int
		want string
	}{
		{800, "clear"},
		{801, "partly_cloudy"},
		{802, "partly_cloudy"},
		{803, "overcast"},
		{804, "overcast"},
		{211, "storm"},
		{301, "rain"},
		{502, "rain"},
		{601, "snow"},
		{741, "fog"},
		{900, "unknown"},
	}
	for _, tt := range tests {
		if got := conditionFromID(tt.id); got != tt.want {
			t.Errorf("conditionFromID(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestCompassDirection(t *testing.T) {
	tests := []struct {
		deg  float64
		want string
	}{
		{0, "N"},
		{11, "N"},
		{12, "NNE"},
		{90, "E"},
		{180, "S"},
		{270, "W"},
		{290, "WNW"},
		{359, "N"},
	}
	for _, tt := range tests {
		if got := compassDirection(tt.deg); got != tt.want {
			t.Errorf("compassDirection(%v) = %q, want %q", tt.deg, got, tt.want)
		}
	}
}
