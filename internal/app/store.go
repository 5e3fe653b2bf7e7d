package app

import (
	"context"

	"competition-service/internal/domain"
)

// Store abstracts persistence for the competition core. Implementations must
// map uniqueness violations to domain conflict errors so races on enrollment
// and attempt creation degrade into rejected duplicates.
type Store interface {
	// RunInTx executes fn against a transactional view of the store. Any
	// error rolls the whole unit back. Nested calls reuse the outer
	// transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Competitions.
	CreateCompetition(ctx context.Context, c *domain.Competition) error
	UpdateCompetition(ctx context.Context, c *domain.Competition) error
	GetCompetition(ctx context.Context, id int64) (*domain.Competition, error)
	ListCompetitions(ctx context.Context) ([]*domain.Competition, error)
	// CompetitionsPastEnd returns open competitions whose end date elapsed.
	CompetitionsPastEnd(ctx context.Context) ([]*domain.Competition, error)

	// Scheduled quizzes.
	CreateQuiz(ctx context.Context, q *domain.CompetitionQuiz) error
	UpdateQuiz(ctx context.Context, q *domain.CompetitionQuiz) error
	DeleteQuiz(ctx context.Context, id int64) error
	GetQuiz(ctx context.Context, id int64) (*domain.CompetitionQuiz, error)
	GetQuizByExternalID(ctx context.Context, competitionID, quizID int64) (*domain.CompetitionQuiz, error)
	ListQuizzes(ctx context.Context, competitionID int64) ([]*domain.CompetitionQuiz, error)
	// ComputableQuizzes returns a competition's computable quizzes ordered
	// by end time ascending (oldest-ending first).
	ComputableQuizzes(ctx context.Context, competitionID int64) ([]*domain.CompetitionQuiz, error)
	// DueQuizzes returns ids of active quizzes whose end time elapsed,
	// skipping rows locked by concurrent workers.
	DueQuizzes(ctx context.Context, limit int) ([]int64, error)
	// ClaimQuiz locks one quiz row for exclusive aggregation, conditioned
	// on it still being active. Returns domain.ErrQuizClaimed when another
	// worker holds the row or the status already advanced. Only valid
	// inside RunInTx.
	ClaimQuiz(ctx context.Context, id int64) (*domain.CompetitionQuiz, error)

	// Enrollments.
	CreateEnrollment(ctx context.Context, e *domain.Enrollment) error
	DeleteEnrollment(ctx context.Context, competitionID, participantID int64) error
	GetEnrollment(ctx context.Context, competitionID, participantID int64) (*domain.Enrollment, error)
	CountEnrollments(ctx context.Context, competitionID int64) (int, error)
	ListEnrollments(ctx context.Context, competitionID int64) ([]*domain.Enrollment, error)
	UpdateEnrollmentScores(ctx context.Context, enrollments []*domain.Enrollment) error

	// Attempts.
	CreateAttempt(ctx context.Context, a *domain.Attempt) error
	UpdateAttempt(ctx context.Context, a *domain.Attempt) error
	GetAttempt(ctx context.Context, competitionQuizID, participantID int64) (*domain.Attempt, error)
	// FinishedAttempts returns a quiz's finished attempts in insertion order.
	FinishedAttempts(ctx context.Context, competitionQuizID int64) ([]*domain.Attempt, error)
	UpdateAttemptScores(ctx context.Context, attempts []*domain.Attempt) error
	// ListQuizAttempts returns attempts for a quiz ordered by competition
	// score descending.
	ListQuizAttempts(ctx context.Context, competitionQuizID int64) ([]*domain.Attempt, error)
	// ComputableTotals sums score_competition per participant across the
	// competition's computable quizzes.
	ComputableTotals(ctx context.Context, competitionID int64) (map[int64]int, error)

	// Answers.
	CreateAnswers(ctx context.Context, answers []*domain.Answer) error
	AnswersByParticipant(ctx context.Context, competitionQuizID, participantID int64) ([]*domain.Answer, error)
	// AnswersForQuiz pages through a quiz's answers ordered by submission
	// time; the second return is the total row count.
	AnswersForQuiz(ctx context.Context, competitionQuizID int64, page, perPage int) ([]*domain.Answer, int, error)
}

// Grader resolves the answer key for a batch of submitted answers against the
// external quiz service. The returned map is keyed by question id.
type Grader interface {
	CorrectAnswers(ctx context.Context, quizID int64, submissions []domain.AnswerSubmission) (map[int64]int64, error)
}
