package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"competition-service/internal/domain"
)

// Row types mirror the relational schema; conversion helpers keep bun tags out
// of the domain package.

type competitionRow struct {
	bun.BaseModel `bun:"table:competitions,alias:c"`

	ID               int64      `bun:"id,pk,autoincrement"`
	Title            string     `bun:"title,notnull"`
	Description      string     `bun:"description"`
	State            string     `bun:"state,notnull"`
	CreatedBy        int64      `bun:"created_by,notnull"`
	ModifiedBy       int64      `bun:"modified_by"`
	StartDate        *time.Time `bun:"start_date"`
	EndDate          *time.Time `bun:"end_date"`
	ParticipantLimit int        `bun:"participant_limit,notnull"`
	CurrencyCost     int        `bun:"currency_cost,notnull"`
	TicketCost       int        `bun:"ticket_cost,notnull"`
	CreditCost       int        `bun:"credit_cost,notnull"`
	CreatedAt        time.Time  `bun:"created_at,notnull"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull"`
}

func (r *competitionRow) toDomain() *domain.Competition {
	return &domain.Competition{
		ID:               r.ID,
		Title:            r.Title,
		Description:      r.Description,
		State:            domain.CompetitionState(r.State),
		CreatedBy:        r.CreatedBy,
		ModifiedBy:       r.ModifiedBy,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		ParticipantLimit: r.ParticipantLimit,
		CurrencyCost:     r.CurrencyCost,
		TicketCost:       r.TicketCost,
		CreditCost:       r.CreditCost,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func competitionToRow(c *domain.Competition) *competitionRow {
	return &competitionRow{
		ID:               c.ID,
		Title:            c.Title,
		Description:      c.Description,
		State:            string(c.State),
		CreatedBy:        c.CreatedBy,
		ModifiedBy:       c.ModifiedBy,
		StartDate:        c.StartDate,
		EndDate:          c.EndDate,
		ParticipantLimit: c.ParticipantLimit,
		CurrencyCost:     c.CurrencyCost,
		TicketCost:       c.TicketCost,
		CreditCost:       c.CreditCost,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

type quizRow struct {
	bun.BaseModel `bun:"table:competition_quizzes,alias:cq"`

	ID            int64      `bun:"id,pk,autoincrement"`
	CompetitionID int64      `bun:"competition_id,notnull"`
	QuizID        int64      `bun:"quiz_id,notnull"`
	StartTime     *time.Time `bun:"start_time"`
	EndTime       *time.Time `bun:"end_time"`
	TimeLimit     int        `bun:"time_limit,notnull"`
	Status        string     `bun:"status,notnull"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull"`
}

func (r *quizRow) toDomain() *domain.CompetitionQuiz {
	return &domain.CompetitionQuiz{
		ID:            r.ID,
		CompetitionID: r.CompetitionID,
		QuizID:        r.QuizID,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		TimeLimit:     r.TimeLimit,
		Status:        domain.QuizStatus(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func quizToRow(q *domain.CompetitionQuiz) *quizRow {
	return &quizRow{
		ID:            q.ID,
		CompetitionID: q.CompetitionID,
		QuizID:        q.QuizID,
		StartTime:     q.StartTime,
		EndTime:       q.EndTime,
		TimeLimit:     q.TimeLimit,
		Status:        string(q.Status),
		CreatedAt:     q.CreatedAt,
		UpdatedAt:     q.UpdatedAt,
	}
}

type enrollmentRow struct {
	bun.BaseModel `bun:"table:competition_participants,alias:cp"`

	ID            int64     `bun:"id,pk,autoincrement"`
	CompetitionID int64     `bun:"competition_id,notnull"`
	ParticipantID int64     `bun:"participant_id,notnull"`
	Score         int       `bun:"score,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

func (r *enrollmentRow) toDomain() *domain.Enrollment {
	return &domain.Enrollment{
		ID:            r.ID,
		CompetitionID: r.CompetitionID,
		ParticipantID: r.ParticipantID,
		Score:         r.Score,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func enrollmentToRow(e *domain.Enrollment) *enrollmentRow {
	return &enrollmentRow{
		ID:            e.ID,
		CompetitionID: e.CompetitionID,
		ParticipantID: e.ParticipantID,
		Score:         e.Score,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

type attemptRow struct {
	bun.BaseModel `bun:"table:competition_quiz_participants,alias:a"`

	ID                int64      `bun:"id,pk,autoincrement"`
	CompetitionQuizID int64      `bun:"competition_quiz_id,notnull"`
	ParticipantID     int64      `bun:"participant_id,notnull"`
	StartTime         *time.Time `bun:"start_time"`
	EndTime           *time.Time `bun:"end_time"`
	Score             int        `bun:"score,notnull"`
	ScoreCompetition  int        `bun:"score_competition,notnull"`
	CreatedAt         time.Time  `bun:"created_at,notnull"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull"`
}

func (r *attemptRow) toDomain() *domain.Attempt {
	return &domain.Attempt{
		ID:                r.ID,
		CompetitionQuizID: r.CompetitionQuizID,
		ParticipantID:     r.ParticipantID,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		Score:             r.Score,
		ScoreCompetition:  r.ScoreCompetition,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func attemptToRow(a *domain.Attempt) *attemptRow {
	return &attemptRow{
		ID:                a.ID,
		CompetitionQuizID: a.CompetitionQuizID,
		ParticipantID:     a.ParticipantID,
		StartTime:         a.StartTime,
		EndTime:           a.EndTime,
		Score:             a.Score,
		ScoreCompetition:  a.ScoreCompetition,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:competition_quiz_answers,alias:ans"`

	ID                int64     `bun:"id,pk,autoincrement"`
	CompetitionQuizID int64     `bun:"competition_quiz_id,notnull"`
	ParticipantID     int64     `bun:"participant_id,notnull"`
	QuestionID        int64     `bun:"question_id,notnull"`
	AnswerID          int64     `bun:"answer_id,notnull"`
	IsCorrect         bool      `bun:"is_correct,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
}

func (r *answerRow) toDomain() *domain.Answer {
	return &domain.Answer{
		ID:                r.ID,
		CompetitionQuizID: r.CompetitionQuizID,
		ParticipantID:     r.ParticipantID,
		QuestionID:        r.QuestionID,
		AnswerID:          r.AnswerID,
		IsCorrect:         r.IsCorrect,
		CreatedAt:         r.CreatedAt,
	}
}

func answerToRow(a *domain.Answer) *answerRow {
	return &answerRow{
		ID:                a.ID,
		CompetitionQuizID: a.CompetitionQuizID,
		ParticipantID:     a.ParticipantID,
		QuestionID:        a.QuestionID,
		AnswerID:          a.AnswerID,
		IsCorrect:         a.IsCorrect,
		CreatedAt:         a.CreatedAt,
	}
}
