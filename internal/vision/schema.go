package vision

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Analysis is the validated result of one vision call.
type Analysis struct {
	Crowd    CrowdAssessment
	Waves    WaveAssessment
	Weather  WeatherAssessment
	Currents CurrentAssessment
	Overall  OverallAssessment
}

type CrowdAssessment struct {
	Count        int
	Level        string // empty|quiet|moderate|busy|packed
	Distribution string
	Notes        string
}

type WaveAssessment struct {
	Size    string
	Quality string
	Type    string
	Period  string
	Notes   string
}

type WeatherAssessment struct {
	Condition     string
	WindEstimate  string
	WindDirection string
	Visibility    string
	Notes         string
}

type CurrentAssessment struct {
	RipDetected bool
	DangerLevel string // safe|low|moderate|high|extreme
	Indicators  []string
	Notes       string
}

type OverallAssessment struct {
	BeachScore float64  // 1..10
	SurfScore  *float64 // 1..10, nil when the model declined to score surf
	Summary    string
	BestFor    []string
}

// ServiceError wraps a transport or API failure talking to the vision
// service. Distinct from ParseError so callers can tell "the call failed"
// from "the model answered garbage".
type ServiceError struct {
	BeachID string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("vision service error for %s: %v", e.BeachID, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ParseError means the model responded but the content did not match the
// expected schema.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("vision response parse error: %s", e.Reason)
}

// wireAnalysis mirrors the JSON contract in the system prompt. Every block
// is a pointer so a missing block is detectable rather than silently zero.
type wireAnalysis struct {
	Crowd *struct {
		Count        *int    `json:"count"`
		Level        *string `json:"level"`
		Distribution *string `json:"distribution"`
		Notes        *string `json:"notes"`
	} `json:"crowd"`
	Waves *struct {
		Size    *string `json:"size"`
		Quality *string `json:"quality"`
		Type    *string `json:"type"`
		Period  *string `json:"period"`
		Notes   *string `json:"notes"`
	} `json:"waves"`
	Weather *struct {
		Condition     *string `json:"condition"`
		WindEstimate  *string `json:"wind_estimate"`
		WindDirection *string `json:"wind_direction"`
		Visibility    *string `json:"visibility"`
		Notes         *string `json:"notes"`
	} `json:"weather"`
	Currents *struct {
		RipDetected *bool    `json:"rip_detected"`
		DangerLevel *string  `json:"danger_level"`
		Indicators  []string `json:"indicators"`
		Notes       *string  `json:"notes"`
	} `json:"currents"`
	Overall *struct {
		BeachScore *float64 `json:"beach_score"`
		SurfScore  *float64 `json:"surf_score"`
		Summary    *string  `json:"summary"`
		BestFor    []string `json:"best_for"`
	} `json:"overall"`
}

var crowdLevels = map[string]bool{
	"empty": true, "quiet": true, "moderate": true, "busy": true, "packed": true,
}

var dangerLevels = map[string]bool{
	"safe": true, "low": true, "moderate": true, "high": true, "extreme": true,
}

// parseAnalysis validates the model's reply against the schema. Markdown
// code fences around the JSON are tolerated; anything else is a ParseError.
func parseAnalysis(content string) (*Analysis, error) {
	content = stripFences(content)

	var wire wireAnalysis
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid json: %v", err)}
	}

	switch {
	case wire.Crowd == nil:
		return nil, &ParseError{Reason: "missing crowd block"}
	case wire.Waves == nil:
		return nil, &ParseError{Reason: "missing waves block"}
	case wire.Weather == nil:
		return nil, &ParseError{Reason: "missing weather block"}
	case wire.Currents == nil:
		return nil, &ParseError{Reason: "missing currents block"}
	case wire.Overall == nil:
		return nil, &ParseError{Reason: "missing overall block"}
	}

	a := &Analysis{}

	if wire.Crowd.Count != nil {
		a.Crowd.Count = *wire.Crowd.Count
	}
	if wire.Crowd.Level != nil {
		if !crowdLevels[*wire.Crowd.Level] {
			return nil, &ParseError{Reason: fmt.Sprintf("invalid crowd level %q", *wire.Crowd.Level)}
		}
		a.Crowd.Level = *wire.Crowd.Level
	}
	a.Crowd.Distribution = strOrEmpty(wire.Crowd.Distribution)
	a.Crowd.Notes = strOrEmpty(wire.Crowd.Notes)

	a.Waves.Size = strOrEmpty(wire.Waves.Size)
	a.Waves.Quality = strOrEmpty(wire.Waves.Quality)
	a.Waves.Type = strOrEmpty(wire.Waves.Type)
	a.Waves.Period = strOrEmpty(wire.Waves.Period)
	a.Waves.Notes = strOrEmpty(wire.Waves.Notes)

	a.Weather.Condition = strOrEmpty(wire.Weather.Condition)
	a.Weather.WindEstimate = strOrEmpty(wire.Weather.WindEstimate)
	a.Weather.WindDirection = strOrEmpty(wire.Weather.WindDirection)
	a.Weather.Visibility = strOrEmpty(wire.Weather.Visibility)
	a.Weather.Notes = strOrEmpty(wire.Weather.Notes)

	if wire.Currents.RipDetected != nil {
		a.Currents.RipDetected = *wire.Currents.RipDetected
	}
	if wire.Currents.DangerLevel != nil {
		if !dangerLevels[*wire.Currents.DangerLevel] {
			return nil, &ParseError{Reason: fmt.Sprintf("invalid danger level %q", *wire.Currents.DangerLevel)}
		}
		a.Currents.DangerLevel = *wire.Currents.DangerLevel
	}
	a.Currents.Indicators = wire.Currents.Indicators
	a.Currents.Notes = strOrEmpty(wire.Currents.Notes)

	if wire.Overall.BeachScore == nil {
		return nil, &ParseError{Reason: "missing overall.beach_score"}
	}
	if *wire.Overall.BeachScore < 1 || *wire.Overall.BeachScore > 10 {
		return nil, &ParseError{Reason: fmt.Sprintf("beach_score %.1f out of range", *wire.Overall.BeachScore)}
	}
	a.Overall.BeachScore = *wire.Overall.BeachScore
	if wire.Overall.SurfScore != nil {
		if *wire.Overall.SurfScore < 1 || *wire.Overall.SurfScore > 10 {
			return nil, &ParseError{Reason: fmt.Sprintf("surf_score %.1f out of range", *wire.Overall.SurfScore)}
		}
		a.Overall.SurfScore = wire.Overall.SurfScore
	}
	a.Overall.Summary = strOrEmpty(wire.Overall.Summary)
	a.Overall.BestFor = wire.Overall.BestFor

	return a, nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, which models add despite instructions not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
