// Package analysis merges the staged analyzers into one observation per
// frame. Local analysis always runs; person detection, weather and vision
// escalation are gated on what the cheaper stages found. A pipeline never
// fails a frame: whatever could not run is recorded on the observation.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lox/coastwatch/internal/capture"
	"github.com/lox/coastwatch/internal/detect"
	"github.com/lox/coastwatch/internal/imaging"
	"github.com/lox/coastwatch/internal/metrics"
	"github.com/lox/coastwatch/internal/models"
	"github.com/lox/coastwatch/internal/ratelimit"
	"github.com/lox/coastwatch/internal/vision"
	"github.com/lox/coastwatch/internal/weather"
)

// FrameAnalyzer runs the local pixel pass.
type FrameAnalyzer interface {
	Analyze(imageBytes []byte, beach models.Beach) imaging.LocalResult
}

// PersonDetector counts people in a frame.
type PersonDetector interface {
	Detect(ctx context.Context, imageBytes []byte) (*detect.Result, error)
}

// WeatherProvider reports current conditions at coordinates.
type WeatherProvider interface {
	Current(ctx context.Context, lat, lon float64) (weather.Snapshot, error)
}

// VisionAnalyzer escalates a frame to the vision model.
type VisionAnalyzer interface {
	AnalyzeFrame(ctx context.Context, beachID string, imageBytes []byte, inputs vision.ContextInputs) (*vision.Analysis, error)
	Model() string
}

// Pipeline runs the analysis stages over a captured frame. The detector,
// weather provider and vision analyzer are optional; a nil stage is
// skipped.
type Pipeline struct {
	frames   FrameAnalyzer
	detector PersonDetector
	weather  WeatherProvider
	vision   VisionAnalyzer
}

func NewPipeline(frames FrameAnalyzer, detector PersonDetector, weather WeatherProvider, vision VisionAnalyzer) *Pipeline {
	return &Pipeline{
		frames:   frames,
		detector: detector,
		weather:  weather,
		vision:   vision,
	}
}

// ProcessFrame runs every applicable stage and merges the results. Stage
// failures degrade the observation instead of failing it.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame *capture.Frame, beach models.Beach, useVision bool) models.Observation {
	start := time.Now()
	b := newObservationBuilder(frame)

	local := p.frames.Analyze(frame.ImageBytes, beach)
	b.setLocal(local)

	var detection *detect.Result
	if p.detector != nil && local.Camera.Status == imaging.CameraWorking {
		result, err := p.detector.Detect(ctx, frame.ImageBytes)
		if err != nil {
			log.Printf("pipeline: person detection failed for %s: %v", beach.ID, err)
		} else {
			detection = result
			b.setDetection(*result)
		}
	}

	var conditions *weather.Snapshot
	switch {
	case p.weather == nil:
		b.addError("weather skipped: no provider configured")
	case beach.Latitude == 0 && beach.Longitude == 0:
		b.addError("weather skipped: no coordinates for " + beach.ID)
	default:
		snapshot, err := p.weather.Current(ctx, beach.Latitude, beach.Longitude)
		if err != nil {
			log.Printf("pipeline: weather fetch failed for %s: %v", beach.ID, err)
		} else {
			conditions = &snapshot
			b.setWeather(snapshot)
		}
	}

	p.runVision(ctx, b, frame, beach, useVision, local, detection, conditions)

	b.setProcessingTime(time.Since(start))
	return b.build()
}

func (p *Pipeline) runVision(ctx context.Context, b *observationBuilder, frame *capture.Frame, beach models.Beach, useVision bool, local imaging.LocalResult, detection *detect.Result, conditions *weather.Snapshot) {
	if !useVision || p.vision == nil {
		b.addError("vision analysis disabled")
		return
	}
	if local.Camera.Status != imaging.CameraWorking {
		b.addError(fmt.Sprintf("vision skipped: camera %s (%s)", local.Camera.Status, local.Camera.Reason))
		return
	}
	if !local.Quality.Usable {
		b.addError("vision skipped: image unusable: " + strings.Join(local.Quality.Issues, ", "))
		return
	}

	analysis, err := p.vision.AnalyzeFrame(ctx, beach.ID, frame.ImageBytes, vision.ContextInputs{
		Local:     &local,
		Detection: detection,
		Weather:   conditions,
	})
	if err != nil {
		metrics.VisionCallsTotal.WithLabelValues(beach.ID, "error").Inc()
		if errors.Is(err, ratelimit.ErrDailyBudgetExhausted) {
			log.Printf("pipeline: vision budget exhausted, skipping %s", beach.ID)
		} else {
			log.Printf("pipeline: vision analysis failed for %s: %v", beach.ID, err)
		}
		b.addError(err.Error())
		return
	}

	metrics.VisionCallsTotal.WithLabelValues(beach.ID, "ok").Inc()
	b.setVision(analysis, p.vision.Model())
}
