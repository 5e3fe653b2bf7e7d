// Package postgres persists the competition core with bun, plus a pgx-based
// read-only ranking projection.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"competition-service/internal/app"
	"competition-service/internal/domain"
)

// Store implements app.Store on top of bun. The zero Store is not usable;
// construct with NewStore.
type Store struct {
	db  bun.IDB
	now func() time.Time
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

var _ app.Store = (*Store)(nil)

// RunInTx opens one database transaction for the callback. Calls on an
// already-transactional store reuse the open transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Store) error) error {
	if _, ok := s.db.(bun.Tx); ok {
		return fn(ctx, s)
	}
	db, ok := s.db.(*bun.DB)
	if !ok {
		return fmt.Errorf("unexpected bun handle %T", s.db)
	}
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Store{db: tx, now: s.now})
	})
}

// isUniqueViolation matches Postgres error 23505 so constraint races surface
// as domain conflicts.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}

// Competitions.

func (s *Store) CreateCompetition(ctx context.Context, c *domain.Competition) error {
	row := competitionToRow(c)
	row.CreatedAt = s.now()
	row.UpdatedAt = row.CreatedAt
	if _, err := s.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert competition: %w", err)
	}
	c.ID = row.ID
	c.CreatedAt = row.CreatedAt
	c.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) UpdateCompetition(ctx context.Context, c *domain.Competition) error {
	row := competitionToRow(c)
	row.UpdatedAt = s.now()
	res, err := s.db.NewUpdate().Model(row).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update competition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("competition %d not found", c.ID)
	}
	c.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) GetCompetition(ctx context.Context, id int64) (*domain.Competition, error) {
	row := new(competitionRow)
	err := s.db.NewSelect().Model(row).Where("c.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("competition %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select competition: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListCompetitions(ctx context.Context) ([]*domain.Competition, error) {
	var rows []competitionRow
	if err := s.db.NewSelect().Model(&rows).Order("c.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list competitions: %w", err)
	}
	out := make([]*domain.Competition, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) CompetitionsPastEnd(ctx context.Context) ([]*domain.Competition, error) {
	var rows []competitionRow
	err := s.db.NewSelect().Model(&rows).
		Where("c.state IN (?)", bun.In([]string{string(domain.StateReady), string(domain.StateInProgress)})).
		Where("c.end_date IS NOT NULL AND c.end_date <= ?", s.now()).
		Order("c.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select ended competitions: %w", err)
	}
	out := make([]*domain.Competition, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// Quizzes.

func (s *Store) CreateQuiz(ctx context.Context, q *domain.CompetitionQuiz) error {
	row := quizToRow(q)
	row.CreatedAt = s.now()
	row.UpdatedAt = row.CreatedAt
	if _, err := s.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Conflictf("quiz %d already scheduled in competition %d", q.QuizID, q.CompetitionID)
		}
		return fmt.Errorf("insert quiz: %w", err)
	}
	q.ID = row.ID
	q.CreatedAt = row.CreatedAt
	q.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) UpdateQuiz(ctx context.Context, q *domain.CompetitionQuiz) error {
	row := quizToRow(q)
	row.UpdatedAt = s.now()
	res, err := s.db.NewUpdate().Model(row).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("quiz %d not found", q.ID)
	}
	q.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) DeleteQuiz(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*quizRow)(nil)).Where("cq.id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("quiz %d not found", id)
	}
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, id int64) (*domain.CompetitionQuiz, error) {
	row := new(quizRow)
	err := s.db.NewSelect().Model(row).Where("cq.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("quiz %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select quiz: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetQuizByExternalID(ctx context.Context, competitionID, quizID int64) (*domain.CompetitionQuiz, error) {
	row := new(quizRow)
	err := s.db.NewSelect().Model(row).
		Where("cq.competition_id = ?", competitionID).
		Where("cq.quiz_id = ?", quizID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("quiz %d not scheduled in competition %d", quizID, competitionID)
	}
	if err != nil {
		return nil, fmt.Errorf("select quiz by external id: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListQuizzes(ctx context.Context, competitionID int64) ([]*domain.CompetitionQuiz, error) {
	var rows []quizRow
	err := s.db.NewSelect().Model(&rows).
		Where("cq.competition_id = ?", competitionID).
		Order("cq.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	out := make([]*domain.CompetitionQuiz, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) ComputableQuizzes(ctx context.Context, competitionID int64) ([]*domain.CompetitionQuiz, error) {
	var rows []quizRow
	err := s.db.NewSelect().Model(&rows).
		Where("cq.competition_id = ?", competitionID).
		Where("cq.status = ?", string(domain.QuizComputable)).
		Order("cq.end_time ASC", "cq.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list computable quizzes: %w", err)
	}
	out := make([]*domain.CompetitionQuiz, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// DueQuizzes reads ids of active quizzes whose window closed, skipping rows a
// concurrent aggregation holds locked.
func (s *Store) DueQuizzes(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	q := s.db.NewSelect().Model((*quizRow)(nil)).Column("cq.id").
		Where("cq.status = ?", string(domain.QuizActive)).
		Where("cq.end_time IS NOT NULL AND cq.end_time <= ?", s.now()).
		Order("cq.end_time ASC").
		For("UPDATE SKIP LOCKED")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("scan due quizzes: %w", err)
	}
	return ids, nil
}

// ClaimQuiz takes the row lock that makes aggregation exactly-once. The
// status condition is baked into the locking select, so a quiz that advanced
// or is held by another worker comes back as a claim miss.
func (s *Store) ClaimQuiz(ctx context.Context, id int64) (*domain.CompetitionQuiz, error) {
	row := new(quizRow)
	err := s.db.NewSelect().Model(row).
		Where("cq.id = ?", id).
		Where("cq.status = ?", string(domain.QuizActive)).
		For("UPDATE SKIP LOCKED").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		exists, existsErr := s.db.NewSelect().Model((*quizRow)(nil)).Where("cq.id = ?", id).Exists(ctx)
		if existsErr != nil {
			return nil, fmt.Errorf("check quiz existence: %w", existsErr)
		}
		if !exists {
			return nil, domain.NotFoundf("quiz %d not found", id)
		}
		return nil, domain.ErrQuizClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("claim quiz: %w", err)
	}
	return row.toDomain(), nil
}

// Enrollments.

func (s *Store) CreateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	row := enrollmentToRow(e)
	row.CreatedAt = s.now()
	row.UpdatedAt = row.CreatedAt
	if _, err := s.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Conflictf("participant %d already enrolled in competition %d", e.ParticipantID, e.CompetitionID)
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	e.ID = row.ID
	e.CreatedAt = row.CreatedAt
	e.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) DeleteEnrollment(ctx context.Context, competitionID, participantID int64) error {
	res, err := s.db.NewDelete().Model((*enrollmentRow)(nil)).
		Where("cp.competition_id = ?", competitionID).
		Where("cp.participant_id = ?", participantID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("participant %d not enrolled in competition %d", participantID, competitionID)
	}
	return nil
}

func (s *Store) GetEnrollment(ctx context.Context, competitionID, participantID int64) (*domain.Enrollment, error) {
	row := new(enrollmentRow)
	err := s.db.NewSelect().Model(row).
		Where("cp.competition_id = ?", competitionID).
		Where("cp.participant_id = ?", participantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("participant %d not enrolled in competition %d", participantID, competitionID)
	}
	if err != nil {
		return nil, fmt.Errorf("select enrollment: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) CountEnrollments(ctx context.Context, competitionID int64) (int, error) {
	count, err := s.db.NewSelect().Model((*enrollmentRow)(nil)).
		Where("cp.competition_id = ?", competitionID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

func (s *Store) ListEnrollments(ctx context.Context, competitionID int64) ([]*domain.Enrollment, error) {
	var rows []enrollmentRow
	err := s.db.NewSelect().Model(&rows).
		Where("cp.competition_id = ?", competitionID).
		Order("cp.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	out := make([]*domain.Enrollment, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) UpdateEnrollmentScores(ctx context.Context, enrollments []*domain.Enrollment) error {
	if len(enrollments) == 0 {
		return nil
	}
	rows := make([]*enrollmentRow, len(enrollments))
	for i, e := range enrollments {
		rows[i] = enrollmentToRow(e)
	}
	_, err := s.db.NewUpdate().Model(&rows).
		Column("score", "updated_at").
		Bulk().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bulk update enrollment scores: %w", err)
	}
	return nil
}

// Attempts.

func (s *Store) CreateAttempt(ctx context.Context, a *domain.Attempt) error {
	row := attemptToRow(a)
	row.CreatedAt = s.now()
	row.UpdatedAt = row.CreatedAt
	if _, err := s.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Conflictf("participant %d already has an attempt for quiz %d", a.ParticipantID, a.CompetitionQuizID)
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	a.ID = row.ID
	a.CreatedAt = row.CreatedAt
	a.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) UpdateAttempt(ctx context.Context, a *domain.Attempt) error {
	row := attemptToRow(a)
	row.UpdatedAt = s.now()
	res, err := s.db.NewUpdate().Model(row).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("attempt %d not found", a.ID)
	}
	a.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, competitionQuizID, participantID int64) (*domain.Attempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).
		Where("a.competition_quiz_id = ?", competitionQuizID).
		Where("a.participant_id = ?", participantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("participant %d has no attempt for quiz %d", participantID, competitionQuizID)
	}
	if err != nil {
		return nil, fmt.Errorf("select attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) FinishedAttempts(ctx context.Context, competitionQuizID int64) ([]*domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("a.competition_quiz_id = ?", competitionQuizID).
		Where("a.end_time IS NOT NULL").
		Order("a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list finished attempts: %w", err)
	}
	out := make([]*domain.Attempt, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) UpdateAttemptScores(ctx context.Context, attempts []*domain.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}
	rows := make([]*attemptRow, len(attempts))
	for i, a := range attempts {
		rows[i] = attemptToRow(a)
	}
	_, err := s.db.NewUpdate().Model(&rows).
		Column("score_competition", "updated_at").
		Bulk().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bulk update attempt scores: %w", err)
	}
	return nil
}

func (s *Store) ListQuizAttempts(ctx context.Context, competitionQuizID int64) ([]*domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("a.competition_quiz_id = ?", competitionQuizID).
		Order("a.score_competition DESC", "a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}
	out := make([]*domain.Attempt, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) ComputableTotals(ctx context.Context, competitionID int64) (map[int64]int, error) {
	var rows []struct {
		ParticipantID int64 `bun:"participant_id"`
		Total         int   `bun:"total"`
	}
	err := s.db.NewSelect().
		TableExpr("competition_quiz_participants AS a").
		ColumnExpr("a.participant_id").
		ColumnExpr("SUM(a.score_competition) AS total").
		Join("JOIN competition_quizzes AS cq ON cq.id = a.competition_quiz_id").
		Where("cq.competition_id = ?", competitionID).
		Where("cq.status = ?", string(domain.QuizComputable)).
		GroupExpr("a.participant_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("sum computable totals: %w", err)
	}
	totals := make(map[int64]int, len(rows))
	for _, r := range rows {
		totals[r.ParticipantID] = r.Total
	}
	return totals, nil
}

// Answers.

func (s *Store) CreateAnswers(ctx context.Context, answers []*domain.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	rows := make([]*answerRow, len(answers))
	now := s.now()
	for i, a := range answers {
		rows[i] = answerToRow(a)
		rows[i].CreatedAt = now
	}
	if _, err := s.db.NewInsert().Model(&rows).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Conflictf("duplicate answer in submission")
		}
		return fmt.Errorf("insert answers: %w", err)
	}
	for i, a := range answers {
		a.ID = rows[i].ID
		a.CreatedAt = rows[i].CreatedAt
	}
	return nil
}

func (s *Store) AnswersByParticipant(ctx context.Context, competitionQuizID, participantID int64) ([]*domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("ans.competition_quiz_id = ?", competitionQuizID).
		Where("ans.participant_id = ?", participantID).
		Order("ans.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participant answers: %w", err)
	}
	out := make([]*domain.Answer, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) AnswersForQuiz(ctx context.Context, competitionQuizID int64, page, perPage int) ([]*domain.Answer, int, error) {
	var rows []answerRow
	total, err := s.db.NewSelect().Model(&rows).
		Where("ans.competition_quiz_id = ?", competitionQuizID).
		Order("ans.created_at ASC", "ans.id ASC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("page quiz answers: %w", err)
	}
	out := make([]*domain.Answer, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, total, nil
}
