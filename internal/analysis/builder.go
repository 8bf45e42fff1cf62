package analysis

import (
	"database/sql"
	"time"

	"github.com/lox/coastwatch/internal/capture"
	"github.com/lox/coastwatch/internal/detect"
	"github.com/lox/coastwatch/internal/imaging"
	"github.com/lox/coastwatch/internal/models"
	"github.com/lox/coastwatch/internal/vision"
	"github.com/lox/coastwatch/internal/weather"
)

// observationBuilder accumulates stage results into the wide observation
// row. Stages that did not run leave their columns NULL.
type observationBuilder struct {
	obs models.Observation
}

func newObservationBuilder(frame *capture.Frame) *observationBuilder {
	return &observationBuilder{
		obs: models.Observation{
			BeachID:    frame.BeachID,
			CapturedAt: frame.CapturedAt,
			SourceURL:  frame.SourceURL,
		},
	}
}

func (b *observationBuilder) setLocal(local imaging.LocalResult) {
	b.obs.CameraStatus = nullString(local.Camera.Status)
	b.obs.CameraStatusReason = nullString(local.Camera.Reason)
	b.obs.CVImageQuality = nullFloat(local.Quality.Score)

	if local.Camera.Status == imaging.CameraWorking {
		b.obs.CVWaveLevel = nullString(local.Waves.Level)
		b.obs.CVWhitecapRatio = nullFloat(local.Waves.WhitecapRatio)
		b.obs.CVEdgeDensity = nullFloat(local.Waves.EdgeDensity)
		b.obs.CVWaveConfidence = nullFloat(local.Waves.Confidence)
	}
}

func (b *observationBuilder) setDetection(result detect.Result) {
	b.obs.PersonCount = nullInt(int64(result.Count))
	b.obs.PersonConfidence = nullFloat(result.AvgConfidence)
	b.obs.DetectionMethod = nullString(result.Method)
}

func (b *observationBuilder) setWeather(snapshot weather.Snapshot) {
	b.obs.WeatherTemperatureC = nullFloatPtr(snapshot.TemperatureC)
	b.obs.WeatherFeelsLikeC = nullFloatPtr(snapshot.FeelsLikeC)
	if snapshot.HumidityPct != nil {
		b.obs.WeatherHumidityPct = nullInt(int64(*snapshot.HumidityPct))
	}
	b.obs.WeatherWindSpeedKmh = nullFloatPtr(snapshot.WindSpeedKmh)
	b.obs.WeatherWindDirection = nullStringPtr(snapshot.WindDirection)
	b.obs.WeatherWindGustKmh = nullFloatPtr(snapshot.WindGustKmh)
	b.obs.WeatherCondition = nullStringPtr(snapshot.Condition)
	b.obs.WeatherDescription = nullStringPtr(snapshot.Description)
	b.obs.WeatherPrecipMm = nullFloatPtr(snapshot.PrecipitationMm)
	b.obs.WeatherVisibilityKm = nullFloatPtr(snapshot.VisibilityKm)
	b.obs.WeatherUVIndex = nullFloatPtr(snapshot.UVIndex)
}

func (b *observationBuilder) setVision(analysis *vision.Analysis, model string) {
	b.obs.AICrowdLevel = nullString(analysis.Crowd.Level)
	b.obs.AICrowdCount = nullInt(int64(analysis.Crowd.Count))
	b.obs.AICrowdDistribution = nullString(analysis.Crowd.Distribution)
	b.obs.AICrowdNotes = nullString(analysis.Crowd.Notes)

	b.obs.AIWaveSize = nullString(analysis.Waves.Size)
	b.obs.AIWaveQuality = nullString(analysis.Waves.Quality)
	b.obs.AIWaveType = nullString(analysis.Waves.Type)
	b.obs.AIWavePeriod = nullString(analysis.Waves.Period)
	b.obs.AIWaveNotes = nullString(analysis.Waves.Notes)

	b.obs.AIWeatherCondition = nullString(analysis.Weather.Condition)
	b.obs.AIWindEstimate = nullString(analysis.Weather.WindEstimate)
	b.obs.AIWindDirection = nullString(analysis.Weather.WindDirection)
	b.obs.AIVisibility = nullString(analysis.Weather.Visibility)
	b.obs.AIWeatherNotes = nullString(analysis.Weather.Notes)

	b.obs.AICurrentDanger = nullString(analysis.Currents.DangerLevel)
	b.obs.AIRipDetected = sql.NullBool{Bool: analysis.Currents.RipDetected, Valid: true}
	b.obs.AICurrentIndicators = analysis.Currents.Indicators
	b.obs.AICurrentNotes = nullString(analysis.Currents.Notes)

	b.obs.AIBeachScore = nullFloat(analysis.Overall.BeachScore)
	b.obs.AISurfScore = nullFloatPtr(analysis.Overall.SurfScore)
	b.obs.AISummary = nullString(analysis.Overall.Summary)
	b.obs.AIBestFor = analysis.Overall.BestFor

	b.obs.AnalysisModel = nullString(model)
}

// addError records why a stage did not contribute. Reasons accumulate so
// a weather skip and a vision skip on the same frame both survive.
func (b *observationBuilder) addError(message string) {
	if b.obs.ErrorMessage.Valid {
		b.obs.ErrorMessage.String += "; " + message
		return
	}
	b.obs.ErrorMessage = nullString(message)
}

func (b *observationBuilder) setProcessingTime(elapsed time.Duration) {
	b.obs.ProcessingTimeMs = nullInt(elapsed.Milliseconds())
}

func (b *observationBuilder) build() models.Observation {
	return b.obs
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}

func nullFloatPtr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i int64) sql.NullInt64 {
	return sql.NullInt64{Int64: i, Valid: true}
}
