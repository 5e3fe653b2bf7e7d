package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"competition-service/internal/app"
	"competition-service/internal/domain"
)

// RankingReader serves the read-only ranking projections with raw SQL over a
// pgx pool, separate from the transactional bun store. Read-committed
// isolation is enough here; readers see whatever the aggregator last
// committed.
type RankingReader struct {
	pool *pgxpool.Pool
}

func NewRankingReader(pool *pgxpool.Pool) *RankingReader {
	return &RankingReader{pool: pool}
}

var _ app.StandingsSource = (*RankingReader)(nil)

func (r *RankingReader) Standings(ctx context.Context, competitionID int64) ([]app.Standing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT participant_id, score
		FROM competition_participants
		WHERE competition_id = $1
		ORDER BY score DESC, id ASC`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("query standings: %w", err)
	}
	defer rows.Close()

	var standings []app.Standing
	for rows.Next() {
		var s app.Standing
		if err := rows.Scan(&s.ParticipantID, &s.Score); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		standings = append(standings, s)
	}
	return standings, rows.Err()
}

func (r *RankingReader) QuizBreakdown(ctx context.Context, competitionID int64) ([]app.QuizResult, error) {
	quizRows, err := r.pool.Query(ctx, `
		SELECT id, quiz_id, end_time
		FROM competition_quizzes
		WHERE competition_id = $1 AND status = $2
		ORDER BY end_time ASC, id ASC`, competitionID, string(domain.QuizComputable))
	if err != nil {
		return nil, fmt.Errorf("query computable quizzes: %w", err)
	}
	defer quizRows.Close()

	var results []app.QuizResult
	for quizRows.Next() {
		var qr app.QuizResult
		if err := quizRows.Scan(&qr.CompetitionQuizID, &qr.QuizID, &qr.EndTime); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		results = append(results, qr)
	}
	if err := quizRows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		attemptRows, err := r.pool.Query(ctx, `
			SELECT participant_id, start_time, end_time, score, score_competition
			FROM competition_quiz_participants
			WHERE competition_quiz_id = $1
			ORDER BY score_competition DESC, id ASC`, results[i].CompetitionQuizID)
		if err != nil {
			return nil, fmt.Errorf("query quiz attempts: %w", err)
		}
		for attemptRows.Next() {
			var row app.QuizResultRow
			if err := attemptRows.Scan(&row.ParticipantID, &row.StartTime, &row.EndTime, &row.Score, &row.ScoreCompetition); err != nil {
				attemptRows.Close()
				return nil, fmt.Errorf("scan attempt: %w", err)
			}
			results[i].Rows = append(results[i].Rows, row)
		}
		err = attemptRows.Err()
		attemptRows.Close()
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
