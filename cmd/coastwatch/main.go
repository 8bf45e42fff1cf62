package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/coastwatch/internal/analysis"
	"github.com/lox/coastwatch/internal/capture"
	"github.com/lox/coastwatch/internal/detect"
	"github.com/lox/coastwatch/internal/imaging"
	"github.com/lox/coastwatch/internal/models"
	"github.com/lox/coastwatch/internal/ratelimit"
	"github.com/lox/coastwatch/internal/store"
	"github.com/lox/coastwatch/internal/vision"
	"github.com/lox/coastwatch/internal/weather"
)

var defaultBeaches = []models.Beach{
	{
		ID: "biarritz-grande-plage", Name: "Grande Plage", Region: "Biarritz",
		Latitude: 43.4843, Longitude: -1.5587,
		SnapshotURL:  "https://www.biarritz.fr/webcams/grande-plage/current.jpg",
		FallbackURLs: []string{"windy://1389276036"},
		Orientation:  "NW", Timezone: "Europe/Paris", SurfSpot: true,
	},
	{
		ID: "cote-des-basques", Name: "Côte des Basques", Region: "Biarritz",
		Latitude: 43.4779, Longitude: -1.5668,
		SnapshotURL: "windy://1508918133",
		Orientation: "W", Timezone: "Europe/Paris", SurfSpot: true,
	},
	{
		ID: "hossegor-la-graviere", Name: "La Gravière", Region: "Hossegor",
		Latitude: 43.6727, Longitude: -1.4432,
		SnapshotURL:  "https://cams.hossegor-surf.fr/la-graviere/latest.jpg",
		FallbackURLs: []string{"windy://1583475922"},
		Headers:      map[string]string{"Referer": "https://www.hossegor-surf.fr/"},
		Orientation:  "W", Timezone: "Europe/Paris", SurfSpot: true,
	},
	{
		ID: "lacanau-ocean", Name: "Lacanau Océan", Region: "Lacanau",
		Latitude: 45.0004, Longitude: -1.2031,
		SnapshotURL: "windy://1228154181",
		Orientation: "W", Timezone: "Europe/Paris", SurfSpot: true,
	},
	{
		ID: "arcachon-plage-centrale", Name: "Plage Centrale", Region: "Arcachon",
		Latitude: 44.6610, Longitude: -1.1651,
		SnapshotURL: "ftp://cam.arcachon-meteo.fr/webcam/plage-centrale.jpg",
		Orientation: "N", Timezone: "Europe/Paris", SurfSpot: false,
	},
}

type cli struct {
	DB string `help:"Path to the SQLite database." default:"data/coastwatch.db"`

	OpenAIKey   string `name:"openai-key" env:"OPENAI_API_KEY" help:"OpenAI API key for vision analysis."`
	WeatherKey  string `name:"weather-key" env:"OPENWEATHERMAP_API_KEY" help:"OpenWeatherMap API key."`
	WindyKey    string `name:"windy-key" env:"WINDY_API_KEY" help:"Windy webcams API key."`
	DetectorURL string `name:"detector-url" env:"COASTWATCH_DETECTOR_URL" help:"Person-detection sidecar base URL."`

	Capture captureCmd `cmd:"" help:"Capture and analyze webcam snapshots."`
	Status  statusCmd  `cmd:"" help:"Show the latest observation for every beach."`
	History historyCmd `cmd:"" help:"Show recent observations for one beach."`
	Best    bestCmd    `cmd:"" help:"Rank beaches by current conditions."`
	Beaches beachesCmd `cmd:"" help:"List configured beaches."`
}

type appContext struct {
	cli   *cli
	store *store.Store
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("coastwatch"),
		kong.Description("Coastal webcam monitoring: capture, analyze and rank beach conditions."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	db, err := sql.Open("sqlite", c.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if err := st.SyncBeaches(defaultBeaches); err != nil {
		log.Fatalf("sync beaches: %v", err)
	}

	ctx.FatalIfErrorf(ctx.Run(&appContext{cli: &c, store: st}))
}

type captureCmd struct {
	Once     bool     `help:"Run a single capture cycle and exit."`
	Beach    []string `help:"Limit the cycle to these beach IDs."`
	NoVision bool     `help:"Skip vision analysis."`

	Interval     time.Duration `default:"5m" help:"Cycle cadence in daemon mode."`
	Timeout      time.Duration `default:"15s" help:"Per-request snapshot fetch timeout."`
	MaxRetries   int           `default:"3" help:"Fetch attempts per endpoint."`
	RetryBackoff time.Duration `default:"5s" help:"Base delay between fetch retries."`
	Concurrency  int           `default:"4" help:"Beaches fetched in parallel."`

	Model       string  `help:"Vision model name."`
	RPM         int     `default:"30" help:"Vision requests per minute."`
	DailyBudget int     `default:"500" help:"Vision requests per UTC day."`
	Threshold   float64 `default:"0.5" help:"Person-detection confidence threshold."`

	MetricsAddr string `default:":9108" help:"Prometheus metrics listen address in daemon mode."`
}

func (cmd *captureCmd) Run(app *appContext) error {
	grabber := capture.NewGrabber(cmd.Timeout, cmd.MaxRetries, cmd.RetryBackoff, app.cli.WindyKey)

	var detector analysis.PersonDetector
	if app.cli.DetectorURL != "" {
		detector = detect.NewClient(app.cli.DetectorURL, cmd.Threshold)
	}

	var visionClient analysis.VisionAnalyzer
	useVision := !cmd.NoVision && app.cli.OpenAIKey != ""
	if useVision {
		limiter := ratelimit.New(cmd.RPM, cmd.DailyBudget)
		visionClient = vision.NewClient(app.cli.OpenAIKey, cmd.Model, limiter)
	} else if !cmd.NoVision {
		log.Println("capture: no OpenAI API key, vision analysis disabled")
	}

	pipeline := analysis.NewPipeline(
		imaging.NewAnalyzer(),
		detector,
		weather.NewClient(app.cli.WeatherKey),
		visionClient,
	)

	sched := capture.NewScheduler(defaultBeaches, grabber, pipeline, app.store, cmd.Concurrency, cmd.Interval)

	if cmd.Once {
		successful := sched.RunOnce(context.Background(), cmd.Beach, useVision)
		fmt.Printf("captured %d beaches: %s\n", len(successful), strings.Join(successful, ", "))
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("metrics listening on %s", cmd.MetricsAddr)
		if err := http.ListenAndServe(cmd.MetricsAddr, mux); err != nil {
			log.Printf("metrics server: %v", err)
		}
	}()

	sched.Run(ctx, useVision)
	return nil
}

type statusCmd struct{}

func (cmd *statusCmd) Run(app *appContext) error {
	beaches, err := app.store.ListBeaches()
	if err != nil {
		return err
	}

	for _, beach := range beaches {
		obs, err := app.store.GetLatestObservation(beach.ID)
		if err != nil {
			return err
		}
		if obs == nil {
			fmt.Printf("%-28s no observations\n", beach.ID)
			continue
		}
		fmt.Printf("%-28s %s  %s\n", beach.ID, obs.CapturedAt.Format("2006-01-02 15:04"), describeObservation(obs))
	}
	return nil
}

type historyCmd struct {
	BeachID string `arg:"" help:"Beach to show."`
	Hours   int    `default:"24" help:"Window in hours."`
	Limit   int    `default:"20" help:"Maximum rows."`
}

func (cmd *historyCmd) Run(app *appContext) error {
	observations, err := app.store.GetHistory(cmd.BeachID, cmd.Hours, cmd.Limit)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		fmt.Printf("no observations for %s in the last %dh\n", cmd.BeachID, cmd.Hours)
		return nil
	}

	for _, obs := range observations {
		fmt.Printf("%s  %s\n", obs.CapturedAt.Format("2006-01-02 15:04"), describeObservation(&obs))
	}
	return nil
}

type bestCmd struct {
	MaxAge int `default:"120" help:"Ignore observations older than this many minutes."`
}

func (cmd *bestCmd) Run(app *appContext) error {
	ranked, err := app.store.GetBestRanked(cmd.MaxAge)
	if err != nil {
		return err
	}
	if len(ranked) == 0 {
		fmt.Printf("no observations in the last %dm\n", cmd.MaxAge)
		return nil
	}

	for i, obs := range ranked {
		score := "unscored"
		if obs.AIBeachScore.Valid {
			score = fmt.Sprintf("%.1f/10", obs.AIBeachScore.Float64)
		}
		fmt.Printf("%d. %-28s %-9s %s\n", i+1, obs.BeachID, score, describeObservation(&obs))
	}
	return nil
}

type beachesCmd struct{}

func (cmd *beachesCmd) Run(app *appContext) error {
	beaches, err := app.store.ListBeaches()
	if err != nil {
		return err
	}
	for _, beach := range beaches {
		surf := ""
		if beach.SurfSpot {
			surf = "  [surf]"
		}
		fmt.Printf("%-28s %s, %s (%.4f, %.4f)%s\n", beach.ID, beach.Name, beach.Region, beach.Latitude, beach.Longitude, surf)
	}
	return nil
}

// describeObservation renders the most informative fields that are set.
func describeObservation(obs *models.Observation) string {
	var parts []string

	if obs.CameraStatus.Valid && obs.CameraStatus.String != "working" {
		parts = append(parts, "camera "+obs.CameraStatus.String)
	}
	if obs.AISummary.Valid {
		parts = append(parts, obs.AISummary.String)
	} else if obs.CVWaveLevel.Valid {
		parts = append(parts, obs.CVWaveLevel.String+" waves")
	}
	if obs.PersonCount.Valid {
		parts = append(parts, fmt.Sprintf("%d people", obs.PersonCount.Int64))
	}
	if obs.WeatherTemperatureC.Valid {
		parts = append(parts, fmt.Sprintf("%.1f°C", obs.WeatherTemperatureC.Float64))
	}
	if obs.AICurrentDanger.Valid && obs.AICurrentDanger.String != "safe" {
		parts = append(parts, "danger: "+obs.AICurrentDanger.String)
	}
	if len(parts) == 0 && obs.ErrorMessage.Valid {
		parts = append(parts, obs.ErrorMessage.String)
	}
	return strings.Join(parts, ", ")
}
