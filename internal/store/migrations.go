package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS beaches (
    id          TEXT PRIMARY KEY,
    name        TEXT,
    region      TEXT,
    latitude    REAL,
    longitude   REAL,
    orientation TEXT,
    surf_spot   BOOLEAN DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS observations (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    beach_id        TEXT NOT NULL,
    captured_at     TEXT NOT NULL,
    source_url      TEXT NOT NULL,

    camera_status        TEXT,
    camera_status_reason TEXT,

    person_count        INTEGER,
    person_confidence   REAL,
    detection_method    TEXT,

    cv_wave_level       TEXT,
    cv_whitecap_ratio   REAL,
    cv_edge_density     REAL,
    cv_wave_confidence  REAL,
    cv_image_quality    REAL,

    weather_temperature_c    REAL,
    weather_feels_like_c     REAL,
    weather_humidity_pct     INTEGER,
    weather_wind_speed_kmh   REAL,
    weather_wind_direction   TEXT,
    weather_wind_gust_kmh    REAL,
    weather_condition        TEXT,
    weather_description      TEXT,
    weather_precipitation_mm REAL,
    weather_visibility_km    REAL,

    ai_crowd_level          TEXT,
    ai_crowd_count          INTEGER,
    ai_crowd_distribution   TEXT,
    ai_crowd_notes          TEXT,
    ai_wave_size            TEXT,
    ai_wave_quality         TEXT,
    ai_wave_type            TEXT,
    ai_wave_period          TEXT,
    ai_wave_notes           TEXT,
    ai_weather_condition    TEXT,
    ai_wind_estimate        TEXT,
    ai_wind_direction       TEXT,
    ai_visibility           TEXT,
    ai_weather_notes        TEXT,
    ai_current_danger_level TEXT,
    ai_current_rip_detected BOOLEAN,
    ai_current_indicators   TEXT,
    ai_current_notes        TEXT,
    ai_beach_score          REAL,
    ai_surf_score           REAL,
    ai_summary              TEXT,
    ai_best_for             TEXT,

    analysis_model      TEXT,
    processing_time_ms  INTEGER,
    error_message       TEXT,
    created_at          TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_obs_beach_time ON observations(beach_id, captured_at DESC);
`,
	},
	{
		Version:     2,
		Description: "Add UV index from weather provider",
		SQL: `
ALTER TABLE observations ADD COLUMN weather_uv_index REAL;
`,
	},
	{
		Version:     3,
		Description: "Index captured_at for age-bounded ranking queries",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_obs_captured ON observations(captured_at);
`,
	},
}

// Migrate applies all pending migrations in order, each in its own
// transaction, recording progress in schema_migrations.
func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d: %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
