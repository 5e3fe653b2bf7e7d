package memory

import (
	"context"
	"sort"

	"competition-service/internal/app"
)

// Rankings is an in-memory app.StandingsSource reading straight from a Store.
type Rankings struct {
	store *Store
}

func NewRankings(store *Store) *Rankings {
	return &Rankings{store: store}
}

func (r *Rankings) Standings(ctx context.Context, competitionID int64) ([]app.Standing, error) {
	enrollments, err := r.store.ListEnrollments(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	standings := make([]app.Standing, 0, len(enrollments))
	for _, e := range enrollments {
		standings = append(standings, app.Standing{ParticipantID: e.ParticipantID, Score: e.Score})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Score > standings[j].Score
	})
	return standings, nil
}

func (r *Rankings) QuizBreakdown(ctx context.Context, competitionID int64) ([]app.QuizResult, error) {
	quizzes, err := r.store.ComputableQuizzes(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	results := make([]app.QuizResult, 0, len(quizzes))
	for _, quiz := range quizzes {
		attempts, err := r.store.ListQuizAttempts(ctx, quiz.ID)
		if err != nil {
			return nil, err
		}
		rows := make([]app.QuizResultRow, 0, len(attempts))
		for _, a := range attempts {
			rows = append(rows, app.QuizResultRow{
				ParticipantID:    a.ParticipantID,
				StartTime:        a.StartTime,
				EndTime:          a.EndTime,
				Score:            a.Score,
				ScoreCompetition: a.ScoreCompetition,
			})
		}
		results = append(results, app.QuizResult{
			CompetitionQuizID: quiz.ID,
			QuizID:            quiz.QuizID,
			EndTime:           quiz.EndTime,
			Rows:              rows,
		})
	}
	return results, nil
}

var (
	_ app.StandingsSource = (*Rankings)(nil)
	_ app.Store           = (*Store)(nil)
)
