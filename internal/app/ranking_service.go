package app

import (
	"context"
	"time"
)

// Standing is one row of a competition scoreboard.
type Standing struct {
	ParticipantID int64 `json:"participant_id"`
	Score         int   `json:"score"`
}

// QuizResultRow is one attempt within a computable quiz's breakdown.
type QuizResultRow struct {
	ParticipantID    int64      `json:"participant_id"`
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	Score            int        `json:"score"`
	ScoreCompetition int        `json:"score_competition"`
}

// QuizResult is the per-quiz breakdown for one computable quiz.
type QuizResult struct {
	CompetitionQuizID int64           `json:"competition_quiz_id"`
	QuizID            int64           `json:"quiz_id"`
	EndTime           *time.Time      `json:"end_time"`
	Rows              []QuizResultRow `json:"rows"`
}

// StandingsSource produces read-only ranking projections. Implementations
// must reflect the latest committed aggregator output; read-committed
// isolation is enough.
type StandingsSource interface {
	// Standings returns a competition's enrollments ordered by total
	// score descending.
	Standings(ctx context.Context, competitionID int64) ([]Standing, error)
	// QuizBreakdown returns the computable quizzes of a competition, each
	// with attempts ordered by competition score descending.
	QuizBreakdown(ctx context.Context, competitionID int64) ([]QuizResult, error)
}

// RankingService is the read side of the scoring pipeline. It validates the
// competition exists and delegates to the projection source, which may be the
// Postgres reader directly or a cache in front of it.
type RankingService struct {
	store  Store
	source StandingsSource
}

func NewRankingService(store Store, source StandingsSource) *RankingService {
	return &RankingService{store: store, source: source}
}

func (s *RankingService) Standings(ctx context.Context, competitionID int64) ([]Standing, error) {
	if _, err := s.store.GetCompetition(ctx, competitionID); err != nil {
		return nil, err
	}
	return s.source.Standings(ctx, competitionID)
}

func (s *RankingService) QuizBreakdown(ctx context.Context, competitionID int64) ([]QuizResult, error) {
	if _, err := s.store.GetCompetition(ctx, competitionID); err != nil {
		return nil, err
	}
	return s.source.QuizBreakdown(ctx, competitionID)
}
