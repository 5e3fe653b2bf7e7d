package domain

import "time"

// QuizStatus tracks a quiz's place in the result pipeline.
type QuizStatus string

const (
	// QuizActive means the quiz has not been aggregated yet.
	QuizActive QuizStatus = "active"
	// QuizComputable means results were aggregated and count toward standings.
	QuizComputable QuizStatus = "computable"
	// QuizNonComputable means the quiz was demoted by cap enforcement. Terminal.
	QuizNonComputable QuizStatus = "non_computable"
)

var quizStatusTransitions = map[QuizStatus][]QuizStatus{
	QuizActive:        {QuizComputable},
	QuizComputable:    {QuizNonComputable},
	QuizNonComputable: {},
}

// Valid reports whether s is a known quiz status.
func (s QuizStatus) Valid() bool {
	_, ok := quizStatusTransitions[s]
	return ok
}

// CanTransition reports whether the status machine allows s -> to.
func (s QuizStatus) CanTransition(to QuizStatus) bool {
	for _, next := range quizStatusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CompetitionQuiz schedules one externally-defined quiz inside a competition's
// window. QuizID is opaque; the quiz content lives in another service.
type CompetitionQuiz struct {
	ID            int64
	CompetitionID int64
	QuizID        int64
	StartTime     *time.Time
	EndTime       *time.Time
	TimeLimit     int // seconds, 0 = unset
	Status        QuizStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SetStatus applies a status transition, rejecting anything outside the table.
func (q *CompetitionQuiz) SetStatus(to QuizStatus) error {
	if !to.Valid() {
		return Validationf("unknown quiz status %q", to)
	}
	if !q.Status.CanTransition(to) {
		return InvalidTransitionError("quiz", string(q.Status), string(to))
	}
	q.Status = to
	return nil
}

// Started reports whether the quiz's own window has opened.
func (q *CompetitionQuiz) Started(now time.Time) bool {
	return q.StartTime != nil && !now.Before(*q.StartTime)
}

// Due reports whether the quiz's window has closed and results are pending.
func (q *CompetitionQuiz) Due(now time.Time) bool {
	return q.Status == QuizActive && q.EndTime != nil && !now.Before(*q.EndTime)
}

// QuizPatch is a partial update for a scheduled quiz. Nil fields are left
// untouched, which keeps "absent" distinct from an explicit zero.
type QuizPatch struct {
	StartTime *time.Time
	EndTime   *time.Time
	TimeLimit *int
}

// Empty reports whether the patch changes nothing.
func (p QuizPatch) Empty() bool {
	return p.StartTime == nil && p.EndTime == nil && p.TimeLimit == nil
}

// ValidateQuizWindow enforces the date constraints shared by quiz add and
// modify: the quiz window must nest inside the competition's window and be
// internally consistent.
func ValidateQuizWindow(c *Competition, start, end *time.Time) error {
	if start != nil && c.StartDate != nil && start.Before(*c.StartDate) {
		return Validationf("quiz start cannot precede competition start")
	}
	if end != nil && c.EndDate != nil && end.After(*c.EndDate) {
		return Validationf("quiz end cannot exceed competition end")
	}
	if start != nil && end != nil && start.After(*end) {
		return Validationf("quiz start cannot be after quiz end")
	}
	return nil
}
