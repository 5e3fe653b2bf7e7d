package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"competition-service/internal/domain"
)

// Invalidator drops cached ranking projections for a competition. A nil
// invalidator means no cache sits in front of the ranking source.
type Invalidator interface {
	Invalidate(ctx context.Context, competitionID int64)
}

// Aggregator converts a closed quiz's raw attempt scores into rank-derived
// competition points and keeps enrollment totals consistent with the set of
// computable quizzes.
type Aggregator struct {
	store       Store
	cap         int
	now         func() time.Time
	invalidator Invalidator
}

func NewAggregator(store Store, computableCap int) *Aggregator {
	return &Aggregator{store: store, cap: computableCap, now: time.Now}
}

// NewAggregatorWithClock is test-only for deterministic timestamps.
func NewAggregatorWithClock(store Store, computableCap int, now func() time.Time) *Aggregator {
	return &Aggregator{store: store, cap: computableCap, now: now}
}

// SetInvalidator makes the aggregator drop cached standings for a competition
// after each commit, so readers see new scores before the cache TTL lapses.
func (a *Aggregator) SetInvalidator(inv Invalidator) {
	a.invalidator = inv
}

// ProcessQuiz aggregates one quiz's results inside a single transaction.
// Returns domain.ErrQuizClaimed when a concurrent worker already owns the
// quiz; callers treat that as a no-op. Any other error rolls everything back
// and leaves the quiz active for the next scheduler pass.
func (a *Aggregator) ProcessQuiz(ctx context.Context, competitionQuizID int64) error {
	var competitionID int64
	err := a.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		quiz, err := tx.ClaimQuiz(ctx, competitionQuizID)
		if err != nil {
			return err
		}
		competitionID = quiz.CompetitionID

		attempts, err := tx.FinishedAttempts(ctx, quiz.ID)
		if err != nil {
			return err
		}
		if len(attempts) == 0 {
			// Nobody finished; leave the quiz active so a later pass
			// can pick up stragglers' quizzes uniformly.
			return domain.ErrQuizClaimed
		}

		// Stable keeps the retrieval order for equal scores; no tie-break
		// is defined beyond that.
		sort.SliceStable(attempts, func(i, j int) bool {
			return attempts[i].Score > attempts[j].Score
		})
		for rank, attempt := range attempts {
			attempt.ScoreCompetition = domain.PointsForRank(rank)
			attempt.UpdatedAt = a.now()
		}
		if err := tx.UpdateAttemptScores(ctx, attempts); err != nil {
			return err
		}

		if err := quiz.SetStatus(domain.QuizComputable); err != nil {
			return err
		}
		if err := tx.UpdateQuiz(ctx, quiz); err != nil {
			return err
		}

		if err := a.enforceCap(ctx, tx, quiz.CompetitionID); err != nil {
			return err
		}

		return a.recomputeTotals(ctx, tx, quiz.CompetitionID)
	})
	if err != nil {
		return err
	}
	if a.invalidator != nil {
		a.invalidator.Invalidate(ctx, competitionID)
	}
	return nil
}

// enforceCap demotes the oldest-ending computable quiz while the competition
// holds more computable quizzes than the configured cap.
func (a *Aggregator) enforceCap(ctx context.Context, tx Store, competitionID int64) error {
	computable, err := tx.ComputableQuizzes(ctx, competitionID)
	if err != nil {
		return err
	}
	for i := 0; len(computable)-i > a.cap; i++ {
		oldest := computable[i]
		if err := oldest.SetStatus(domain.QuizNonComputable); err != nil {
			return err
		}
		if err := tx.UpdateQuiz(ctx, oldest); err != nil {
			return err
		}
	}
	return nil
}

// recomputeTotals rebuilds every enrollment's total from scratch as the sum of
// score_competition over the competition's computable quizzes. Running after
// cap enforcement means demoted points drop out immediately instead of
// lingering until the next aggregation.
func (a *Aggregator) recomputeTotals(ctx context.Context, tx Store, competitionID int64) error {
	totals, err := tx.ComputableTotals(ctx, competitionID)
	if err != nil {
		return err
	}
	enrollments, err := tx.ListEnrollments(ctx, competitionID)
	if err != nil {
		return err
	}
	changed := make([]*domain.Enrollment, 0, len(enrollments))
	for _, e := range enrollments {
		total := totals[e.ParticipantID]
		if e.Score != total {
			e.Score = total
			e.UpdatedAt = a.now()
			changed = append(changed, e)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	return tx.UpdateEnrollmentScores(ctx, changed)
}

// IsClaimMiss reports whether err only means another worker won the claim.
func IsClaimMiss(err error) bool {
	return errors.Is(err, domain.ErrQuizClaimed)
}
