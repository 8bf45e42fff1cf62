package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lox/coastwatch/internal/models"
)

// Store persists observations and the beach registry in SQLite.
// Observation rows are append-only; captured_at is stored as RFC 3339 UTC
// text so lexical ordering matches chronological ordering.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// defaultBeachScore is the neutral ranking score used for observations
// without an AI beach score, so unscored beaches sit mid-table instead of
// first or last.
const defaultBeachScore = 5.0

var obsColumnList = []string{
	"id", "beach_id", "captured_at", "source_url",
	"camera_status", "camera_status_reason",
	"person_count", "person_confidence", "detection_method",
	"cv_wave_level", "cv_whitecap_ratio", "cv_edge_density", "cv_wave_confidence", "cv_image_quality",
	"weather_temperature_c", "weather_feels_like_c", "weather_humidity_pct",
	"weather_wind_speed_kmh", "weather_wind_direction", "weather_wind_gust_kmh",
	"weather_condition", "weather_description", "weather_precipitation_mm",
	"weather_visibility_km", "weather_uv_index",
	"ai_crowd_level", "ai_crowd_count", "ai_crowd_distribution", "ai_crowd_notes",
	"ai_wave_size", "ai_wave_quality", "ai_wave_type", "ai_wave_period", "ai_wave_notes",
	"ai_weather_condition", "ai_wind_estimate", "ai_wind_direction", "ai_visibility", "ai_weather_notes",
	"ai_current_danger_level", "ai_current_rip_detected", "ai_current_indicators", "ai_current_notes",
	"ai_beach_score", "ai_surf_score", "ai_summary", "ai_best_for",
	"analysis_model", "processing_time_ms", "error_message", "created_at",
}

var obsColumns = strings.Join(obsColumnList, ", ")

// SyncBeaches upserts the beach registry from configuration. The registry
// is a denormalized copy for query joins, not a source of truth.
func (s *Store) SyncBeaches(beaches []models.Beach) error {
	for _, b := range beaches {
		_, err := s.db.Exec(`
			INSERT INTO beaches (id, name, region, latitude, longitude, orientation, surf_spot)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				region = excluded.region,
				latitude = excluded.latitude,
				longitude = excluded.longitude,
				orientation = excluded.orientation,
				surf_spot = excluded.surf_spot
		`, b.ID, b.Name, b.Region, b.Latitude, b.Longitude, b.Orientation, b.SurfSpot)
		if err != nil {
			return fmt.Errorf("upsert beach %s: %w", b.ID, err)
		}
	}
	return nil
}

func (s *Store) ListBeaches() ([]models.Beach, error) {
	rows, err := s.db.Query(`SELECT id, name, region, latitude, longitude, orientation, surf_spot FROM beaches ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var beaches []models.Beach
	for rows.Next() {
		var b models.Beach
		if err := rows.Scan(&b.ID, &b.Name, &b.Region, &b.Latitude, &b.Longitude, &b.Orientation, &b.SurfSpot); err != nil {
			return nil, err
		}
		beaches = append(beaches, b)
	}
	return beaches, rows.Err()
}

// InsertObservation appends one observation row and returns its id.
func (s *Store) InsertObservation(obs models.Observation) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO observations (
			beach_id, captured_at, source_url,
			camera_status, camera_status_reason,
			person_count, person_confidence, detection_method,
			cv_wave_level, cv_whitecap_ratio, cv_edge_density, cv_wave_confidence, cv_image_quality,
			weather_temperature_c, weather_feels_like_c, weather_humidity_pct,
			weather_wind_speed_kmh, weather_wind_direction, weather_wind_gust_kmh,
			weather_condition, weather_description, weather_precipitation_mm,
			weather_visibility_km, weather_uv_index,
			ai_crowd_level, ai_crowd_count, ai_crowd_distribution, ai_crowd_notes,
			ai_wave_size, ai_wave_quality, ai_wave_type, ai_wave_period, ai_wave_notes,
			ai_weather_condition, ai_wind_estimate, ai_wind_direction, ai_visibility, ai_weather_notes,
			ai_current_danger_level, ai_current_rip_detected, ai_current_indicators, ai_current_notes,
			ai_beach_score, ai_surf_score, ai_summary, ai_best_for,
			analysis_model, processing_time_ms, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		obs.BeachID, obs.CapturedAt.UTC().Format(time.RFC3339), obs.SourceURL,
		obs.CameraStatus, obs.CameraStatusReason,
		obs.PersonCount, obs.PersonConfidence, obs.DetectionMethod,
		obs.CVWaveLevel, obs.CVWhitecapRatio, obs.CVEdgeDensity, obs.CVWaveConfidence, obs.CVImageQuality,
		obs.WeatherTemperatureC, obs.WeatherFeelsLikeC, obs.WeatherHumidityPct,
		obs.WeatherWindSpeedKmh, obs.WeatherWindDirection, obs.WeatherWindGustKmh,
		obs.WeatherCondition, obs.WeatherDescription, obs.WeatherPrecipMm,
		obs.WeatherVisibilityKm, obs.WeatherUVIndex,
		obs.AICrowdLevel, obs.AICrowdCount, obs.AICrowdDistribution, obs.AICrowdNotes,
		obs.AIWaveSize, obs.AIWaveQuality, obs.AIWaveType, obs.AIWavePeriod, obs.AIWaveNotes,
		obs.AIWeatherCondition, obs.AIWindEstimate, obs.AIWindDirection, obs.AIVisibility, obs.AIWeatherNotes,
		obs.AICurrentDanger, obs.AIRipDetected, marshalStringList(obs.AICurrentIndicators), obs.AICurrentNotes,
		obs.AIBeachScore, obs.AISurfScore, obs.AISummary, marshalStringList(obs.AIBestFor),
		obs.AnalysisModel, obs.ProcessingTimeMs, obs.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("insert observation for %s: %w", obs.BeachID, err)
	}
	return res.LastInsertId()
}

// GetLatestObservation returns the most recent observation for a beach,
// or nil if none exists.
func (s *Store) GetLatestObservation(beachID string) (*models.Observation, error) {
	row := s.db.QueryRow(`
		SELECT `+obsColumns+`
		FROM observations
		WHERE beach_id = ?
		ORDER BY captured_at DESC
		LIMIT 1
	`, beachID)

	obs, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return obs, err
}

// GetHistory returns observations for a beach within the last hours,
// newest first, capped at limit rows.
func (s *Store) GetHistory(beachID string, hours, limit int) ([]models.Observation, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour).Format(time.RFC3339)
	rows, err := s.db.Query(`
		SELECT `+obsColumns+`
		FROM observations
		WHERE beach_id = ? AND captured_at > ?
		ORDER BY captured_at DESC
		LIMIT ?
	`, beachID, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectObservations(rows)
}

// GetBestRanked returns each beach's most recent observation within the
// age cutoff, ordered by beach score descending. Observations without a
// score rank with defaultBeachScore.
func (s *Store) GetBestRanked(maxAgeMinutes int) ([]models.Observation, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(maxAgeMinutes) * time.Minute).Format(time.RFC3339)
	cols := "o." + strings.Join(obsColumnList, ", o.")
	rows, err := s.db.Query(`
		SELECT `+cols+`
		FROM observations o
		INNER JOIN (
			SELECT beach_id, MAX(captured_at) AS latest
			FROM observations
			WHERE captured_at > ?
			GROUP BY beach_id
		) t ON o.beach_id = t.beach_id AND o.captured_at = t.latest
		ORDER BY COALESCE(o.ai_beach_score, ?) DESC
	`, cutoff, defaultBeachScore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectObservations(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*models.Observation, error) {
	var obs models.Observation
	var capturedAt, createdAt string
	var indicators, bestFor sql.NullString

	err := row.Scan(
		&obs.ID, &obs.BeachID, &capturedAt, &obs.SourceURL,
		&obs.CameraStatus, &obs.CameraStatusReason,
		&obs.PersonCount, &obs.PersonConfidence, &obs.DetectionMethod,
		&obs.CVWaveLevel, &obs.CVWhitecapRatio, &obs.CVEdgeDensity, &obs.CVWaveConfidence, &obs.CVImageQuality,
		&obs.WeatherTemperatureC, &obs.WeatherFeelsLikeC, &obs.WeatherHumidityPct,
		&obs.WeatherWindSpeedKmh, &obs.WeatherWindDirection, &obs.WeatherWindGustKmh,
		&obs.WeatherCondition, &obs.WeatherDescription, &obs.WeatherPrecipMm,
		&obs.WeatherVisibilityKm, &obs.WeatherUVIndex,
		&obs.AICrowdLevel, &obs.AICrowdCount, &obs.AICrowdDistribution, &obs.AICrowdNotes,
		&obs.AIWaveSize, &obs.AIWaveQuality, &obs.AIWaveType, &obs.AIWavePeriod, &obs.AIWaveNotes,
		&obs.AIWeatherCondition, &obs.AIWindEstimate, &obs.AIWindDirection, &obs.AIVisibility, &obs.AIWeatherNotes,
		&obs.AICurrentDanger, &obs.AIRipDetected, &indicators, &obs.AICurrentNotes,
		&obs.AIBeachScore, &obs.AISurfScore, &obs.AISummary, &bestFor,
		&obs.AnalysisModel, &obs.ProcessingTimeMs, &obs.ErrorMessage, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	obs.CapturedAt, err = time.Parse(time.RFC3339, capturedAt)
	if err != nil {
		return nil, fmt.Errorf("parse captured_at for observation %d: %w", obs.ID, err)
	}
	obs.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for observation %d: %w", obs.ID, err)
	}
	obs.AICurrentIndicators = unmarshalStringList(indicators)
	obs.AIBestFor = unmarshalStringList(bestFor)
	return &obs, nil
}

func collectObservations(rows *sql.Rows) ([]models.Observation, error) {
	var observations []models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, *obs)
	}
	return observations, rows.Err()
}

func marshalStringList(list []string) any {
	if len(list) == 0 {
		return nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	return string(b)
}

func unmarshalStringList(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil
	}
	return out
}
