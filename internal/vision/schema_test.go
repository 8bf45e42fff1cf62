package vision

import (
	"errors"
	"strings"
	"testing"

	"github.com/lox/coastwatch/internal/detect"
	"github.com/lox/coastwatch/internal/imaging"
	"github.com/lox/coastwatch/internal/weather"
)

const validResponse = `{
	"crowd": {"count": 23, "level": "moderate", "distribution": "clustered near the lifeguard tower", "notes": "a few swimmers past the break"},
	"waves": {"size": "medium", "quality": "good", "type": "peeling lefts off the sandbar", "period": "medium", "notes": "clean faces, light texture"},
	"weather": {"condition": "partly_cloudy", "wind_estimate": "light", "wind_direction": "offshore", "visibility": "good", "notes": ""},
	"currents": {"rip_detected": true, "danger_level": "moderate", "indicators": ["darker channel near the jetty"], "notes": "channel pulling toward the rocks"},
	"overall": {"beach_score": 7.5, "surf_score": 6, "summary": "Pleasant afternoon with rideable waves.", "best_for": ["surfing", "walking"]}
}`

func TestParseAnalysis(t *testing.T) {
	got, err := parseAnalysis(validResponse)
	if err != nil {
		t.Fatalf("parseAnalysis: %v", err)
	}

	if got.Crowd.Count != 23 || got.Crowd.Level != "moderate" {
		t.Errorf("Crowd = %+v", got.Crowd)
	}
	if got.Waves.Size != "medium" || got.Waves.Quality != "good" {
		t.Errorf("Waves = %+v", got.Waves)
	}
	if got.Weather.WindDirection != "offshore" {
		t.Errorf("Weather = %+v", got.Weather)
	}
	if !got.Currents.RipDetected || got.Currents.DangerLevel != "moderate" {
		t.Errorf("Currents = %+v", got.Currents)
	}
	if len(got.Currents.Indicators) != 1 {
		t.Errorf("Indicators = %v", got.Currents.Indicators)
	}
	if got.Overall.BeachScore != 7.5 {
		t.Errorf("BeachScore = %v, want 7.5", got.Overall.BeachScore)
	}
	if got.Overall.SurfScore == nil || *got.Overall.SurfScore != 6 {
		t.Errorf("SurfScore = %v, want 6", got.Overall.SurfScore)
	}
	if got.Overall.Summary == "" {
		t.Error("Summary empty")
	}
}

func TestParseAnalysis_NullSurfScore(t *testing.T) {
	// Non-surf-spot beaches come back with an explicit null surf score;
	// that must stay distinguishable from a real score, not collapse to 0.
	got, err := parseAnalysis(`{"crowd": {}, "waves": {}, "weather": {}, "currents": {}, "overall": {"beach_score": 6, "surf_score": null}}`)
	if err != nil {
		t.Fatalf("parseAnalysis: %v", err)
	}
	if got.Overall.SurfScore != nil {
		t.Errorf("SurfScore = %v, want nil", *got.Overall.SurfScore)
	}
}

func TestParseAnalysis_FencedJSON(t *testing.T) {
	for _, fence := range []string{"```json\n" + validResponse + "\n```", "```\n" + validResponse + "\n```"} {
		if _, err := parseAnalysis(fence); err != nil {
			t.Errorf("parseAnalysis with fence: %v", err)
		}
	}
}

func TestParseAnalysis_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "I cannot analyze this image."},
		{"missing crowd block", `{"waves": {}, "weather": {}, "currents": {}, "overall": {"beach_score": 5}}`},
		{"missing overall block", `{"crowd": {}, "waves": {}, "weather": {}, "currents": {}}`},
		{"missing beach_score", `{"crowd": {}, "waves": {}, "weather": {}, "currents": {}, "overall": {}}`},
		{"beach_score out of range", `{"crowd": {}, "waves": {}, "weather": {}, "currents": {}, "overall": {"beach_score": 11}}`},
		{"surf_score out of range", `{"crowd": {}, "waves": {}, "weather": {}, "currents": {}, "overall": {"beach_score": 5, "surf_score": 0}}`},
		{"invalid danger level", `{"crowd": {}, "waves": {}, "weather": {}, "currents": {"danger_level": "catastrophic"}, "overall": {"beach_score": 5}}`},
		{"invalid crowd level", `{"crowd": {"level": "heaving"}, "waves": {}, "weather": {}, "currents": {}, "overall": {"beach_score": 5}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAnalysis(tt.content)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
		})
	}
}

func TestParseAnalysis_SparseButValid(t *testing.T) {
	// All blocks present, most fields absent: the schema requires the
	// blocks and a beach score, nothing more.
	got, err := parseAnalysis(`{"crowd": {}, "waves": {}, "weather": {}, "currents": {}, "overall": {"beach_score": 4}}`)
	if err != nil {
		t.Fatalf("parseAnalysis: %v", err)
	}
	if got.Overall.BeachScore != 4 {
		t.Errorf("BeachScore = %v, want 4", got.Overall.BeachScore)
	}
	if got.Crowd.Level != "" {
		t.Errorf("Crowd.Level = %q, want empty", got.Crowd.Level)
	}
	if got.Overall.SurfScore != nil {
		t.Errorf("SurfScore = %v, want nil when absent", *got.Overall.SurfScore)
	}
	if got.Currents.Indicators != nil {
		t.Errorf("Indicators = %v, want nil", got.Currents.Indicators)
	}
}

func TestBuildContext(t *testing.T) {
	temp := 21.5
	wind := 18.0
	dir := "WNW"
	cond := "partly_cloudy"

	got := buildContext("biarritz-grande-plage", ContextInputs{
		Local: &imaging.LocalResult{
			Waves:   imaging.WaveEstimate{Level: "medium", WhitecapRatio: 0.062, Confidence: 0.55},
			Quality: imaging.Quality{Score: 0.81},
		},
		Detection: &detect.Result{Count: 14, AvgConfidence: 0.77, Method: "yolov8n"},
		Weather: &weather.Snapshot{
			TemperatureC: &temp, WindSpeedKmh: &wind, WindDirection: &dir, Condition: &cond,
		},
	})

	for _, want := range []string{
		"Beach: biarritz-grande-plage",
		"medium",
		"14 people",
		"21.5 C",
		"18 km/h from WNW",
		"partly_cloudy",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q:\n%s", want, got)
		}
	}
}

func TestBuildContext_NoInputs(t *testing.T) {
	got := buildContext("lacanau-ocean", ContextInputs{})
	if !strings.Contains(got, "Beach: lacanau-ocean") {
		t.Errorf("context = %q", got)
	}
	if strings.Contains(got, "detector") || strings.Contains(got, "temperature") {
		t.Errorf("context mentions absent inputs:\n%s", got)
	}
}
