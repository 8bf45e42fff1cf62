package models

import (
	"database/sql"
	"time"
)

// Beach is a configured coastal location with a webcam. Loaded once at
// startup and treated as read-only afterwards.
type Beach struct {
	ID        string
	Name      string
	Region    string
	Latitude  float64
	Longitude float64

	// Webcam endpoints. SnapshotURL is tried first, then FallbackURLs in
	// order. Supported schemes: http(s), windy://<webcam-id>, ftp://.
	SnapshotURL  string
	FallbackURLs []string
	Headers      map[string]string

	Orientation string // compass direction the camera faces
	Timezone    string
	SurfSpot    bool
}

// Endpoints returns the snapshot URL followed by the fallbacks.
func (b Beach) Endpoints() []string {
	urls := make([]string, 0, 1+len(b.FallbackURLs))
	urls = append(urls, b.SnapshotURL)
	urls = append(urls, b.FallbackURLs...)
	return urls
}

// Observation is one merged capture-and-analyze result for a beach.
// BeachID, CapturedAt and SourceURL are always set; everything else is
// independently nullable because any stage may be skipped or fail.
type Observation struct {
	ID         int64
	BeachID    string
	CapturedAt time.Time
	SourceURL  string

	CameraStatus       sql.NullString
	CameraStatusReason sql.NullString

	PersonCount      sql.NullInt64
	PersonConfidence sql.NullFloat64
	DetectionMethod  sql.NullString

	CVWaveLevel      sql.NullString
	CVWhitecapRatio  sql.NullFloat64
	CVEdgeDensity    sql.NullFloat64
	CVWaveConfidence sql.NullFloat64
	CVImageQuality   sql.NullFloat64

	WeatherTemperatureC  sql.NullFloat64
	WeatherFeelsLikeC    sql.NullFloat64
	WeatherHumidityPct   sql.NullInt64
	WeatherWindSpeedKmh  sql.NullFloat64
	WeatherWindDirection sql.NullString
	WeatherWindGustKmh   sql.NullFloat64
	WeatherCondition     sql.NullString
	WeatherDescription   sql.NullString
	WeatherPrecipMm      sql.NullFloat64
	WeatherVisibilityKm  sql.NullFloat64
	WeatherUVIndex       sql.NullFloat64

	AICrowdLevel        sql.NullString
	AICrowdCount        sql.NullInt64
	AICrowdDistribution sql.NullString
	AICrowdNotes        sql.NullString
	AIWaveSize          sql.NullString
	AIWaveQuality       sql.NullString
	AIWaveType          sql.NullString
	AIWavePeriod        sql.NullString
	AIWaveNotes         sql.NullString
	AIWeatherCondition  sql.NullString
	AIWindEstimate      sql.NullString
	AIWindDirection     sql.NullString
	AIVisibility        sql.NullString
	AIWeatherNotes      sql.NullString
	AICurrentDanger     sql.NullString
	AIRipDetected       sql.NullBool
	AICurrentIndicators []string
	AICurrentNotes      sql.NullString
	AIBeachScore        sql.NullFloat64
	AISurfScore         sql.NullFloat64
	AISummary           sql.NullString
	AIBestFor           []string

	AnalysisModel    sql.NullString
	ProcessingTimeMs sql.NullInt64
	ErrorMessage     sql.NullString
	CreatedAt        time.Time
}
