// Package scheduler runs the recurring sweep that aggregates quizzes whose
// time window has closed. Multiple service instances may run it concurrently;
// they coordinate only through the database claim, never through in-process
// state.
package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"competition-service/internal/app"
)

// Scheduler owns its own ticker and stops when its context is canceled.
type Scheduler struct {
	store        app.Store
	aggregator   *app.Aggregator
	competitions *app.CompetitionService
	interval     time.Duration
	batchSize    int
	running      atomic.Bool
}

func New(store app.Store, aggregator *app.Aggregator, competitions *app.CompetitionService, interval time.Duration, batchSize int) *Scheduler {
	return &Scheduler{
		store:        store,
		aggregator:   aggregator,
		competitions: competitions,
		interval:     interval,
		batchSize:    batchSize,
	}
}

// Run blocks, sweeping once per interval until ctx is canceled. A sweep that
// outlives the interval suppresses the next tick instead of overlapping.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("scheduler: sweeping every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("scheduler: stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep processes one batch of due quizzes. It is single-flight per process:
// a call that finds another sweep in progress returns immediately.
func (s *Scheduler) Sweep(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)

	if closed, err := s.competitions.CloseEnded(ctx); err != nil {
		log.Printf("scheduler: closing ended competitions: %v", err)
	} else if closed > 0 {
		log.Printf("scheduler: closed %d ended competitions", closed)
	}

	due, err := s.store.DueQuizzes(ctx, s.batchSize)
	if err != nil {
		log.Printf("scheduler: scanning due quizzes: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	log.Printf("scheduler: %d due quizzes", len(due))

	for _, quizID := range due {
		// Each quiz aggregates in its own transaction; one failure never
		// aborts the rest of the batch.
		err := s.aggregator.ProcessQuiz(ctx, quizID)
		switch {
		case err == nil:
			log.Printf("scheduler: quiz %d aggregated", quizID)
		case app.IsClaimMiss(err):
			// Another worker won the claim, or nobody finished yet.
		default:
			log.Printf("scheduler: quiz %d failed, retrying next sweep: %v", quizID, err)
		}
	}
}
