package capture

import (
	"context"
	"log"
	"time"

	"github.com/lox/coastwatch/internal/metrics"
	"github.com/lox/coastwatch/internal/models"
)

// FrameSource fetches snapshots for a set of beaches.
type FrameSource interface {
	GrabAll(ctx context.Context, beaches []models.Beach, concurrency int) []Result
}

// FramePipeline turns a captured frame into an observation. It never
// fails: analysis errors are recorded inside the observation.
type FramePipeline interface {
	ProcessFrame(ctx context.Context, frame *Frame, beach models.Beach, useVision bool) models.Observation
}

// ObservationStore persists observations.
type ObservationStore interface {
	InsertObservation(obs models.Observation) (int64, error)
}

// Scheduler runs capture cycles: fetch every beach, analyze each frame,
// persist the results.
type Scheduler struct {
	beaches     []models.Beach
	source      FrameSource
	pipeline    FramePipeline
	store       ObservationStore
	concurrency int
	interval    time.Duration
	now         func() time.Time
}

func NewScheduler(beaches []models.Beach, source FrameSource, pipeline FramePipeline, store ObservationStore, concurrency int, interval time.Duration) *Scheduler {
	return &Scheduler{
		beaches:     beaches,
		source:      source,
		pipeline:    pipeline,
		store:       store,
		concurrency: concurrency,
		interval:    interval,
		now:         time.Now,
	}
}

// RunOnce captures and analyzes one cycle over the given beaches (all
// configured beaches when beachIDs is empty) and returns the IDs whose
// observations were persisted. Fetch and save failures are logged and
// skipped; they never abort the rest of the cycle.
func (s *Scheduler) RunOnce(ctx context.Context, beachIDs []string, useVision bool) []string {
	beaches := s.selectBeaches(beachIDs)
	if len(beaches) == 0 {
		log.Printf("scheduler: no beaches matched %v", beachIDs)
		return nil
	}

	results := s.source.GrabAll(ctx, beaches, s.concurrency)

	var successful []string
	for i, result := range results {
		if result.Err != nil {
			log.Printf("scheduler: capture failed for %s: %v", result.BeachID, result.Err)
			continue
		}

		obs := s.pipeline.ProcessFrame(ctx, result.Frame, beaches[i], useVision)
		if _, err := s.store.InsertObservation(obs); err != nil {
			log.Printf("scheduler: saving observation for %s: %v", result.BeachID, err)
			continue
		}
		metrics.ObservationsSaved.WithLabelValues(result.BeachID).Inc()
		successful = append(successful, result.BeachID)
	}

	log.Printf("scheduler: cycle complete, %d/%d beaches observed", len(successful), len(beaches))
	return successful
}

// Run executes cycles at a fixed cadence until ctx is cancelled. A cycle
// already in flight finishes before the loop exits; cancellation is only
// observed between cycles.
func (s *Scheduler) Run(ctx context.Context, useVision bool) {
	log.Printf("scheduler: starting, %d beaches every %s", len(s.beaches), s.interval)

	for {
		if ctx.Err() != nil {
			log.Printf("scheduler: stopping: %v", ctx.Err())
			return
		}

		start := s.now()
		s.RunOnce(context.WithoutCancel(ctx), nil, useVision)

		sleep := s.interval - s.now().Sub(start)
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-ctx.Done():
			log.Printf("scheduler: stopping: %v", ctx.Err())
			return
		case <-time.After(sleep):
		}
	}
}

func (s *Scheduler) selectBeaches(beachIDs []string) []models.Beach {
	if len(beachIDs) == 0 {
		return s.beaches
	}

	wanted := make(map[string]bool, len(beachIDs))
	for _, id := range beachIDs {
		wanted[id] = true
	}

	var selected []models.Beach
	for _, beach := range s.beaches {
		if wanted[beach.ID] {
			selected = append(selected, beach)
		}
	}
	return selected
}
