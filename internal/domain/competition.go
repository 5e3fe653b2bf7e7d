package domain

import "time"

// CompetitionState is the lifecycle state of a competition.
type CompetitionState string

const (
	StatePreparing  CompetitionState = "preparing"
	StateReady      CompetitionState = "ready"
	StateInProgress CompetitionState = "in_progress"
	StateClosed     CompetitionState = "closed"
	StateFinished   CompetitionState = "finished"
)

// competitionTransitions is the single source of truth for legal state changes.
var competitionTransitions = map[CompetitionState][]CompetitionState{
	StatePreparing:  {StateReady},
	StateReady:      {StateInProgress, StateClosed},
	StateInProgress: {StateClosed, StateFinished},
	StateClosed:     {StateFinished},
	StateFinished:   {},
}

// Valid reports whether s is a known competition state.
func (s CompetitionState) Valid() bool {
	_, ok := competitionTransitions[s]
	return ok
}

// CanTransition reports whether the state machine allows s -> to.
func (s CompetitionState) CanTransition(to CompetitionState) bool {
	for _, next := range competitionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// quizMutableStates are the competition states in which quizzes may be added
// or modified. Removal is stricter, see CanRemoveQuiz.
var quizMutableStates = map[CompetitionState]bool{
	StatePreparing:  true,
	StateReady:      true,
	StateInProgress: true,
}

// Competition is a time-boxed event composed of multiple quizzes with a shared
// participant pool and an aggregate scoreboard.
type Competition struct {
	ID               int64
	Title            string
	Description      string
	State            CompetitionState
	CreatedBy        int64
	ModifiedBy       int64
	StartDate        *time.Time
	EndDate          *time.Time
	ParticipantLimit int // 0 = unlimited
	CurrencyCost     int
	TicketCost       int
	CreditCost       int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate checks the competition's own invariants.
func (c *Competition) Validate() error {
	if c.Title == "" {
		return Validationf("competition title is required")
	}
	if c.ParticipantLimit < 0 {
		return Validationf("participant limit cannot be negative")
	}
	if c.CurrencyCost < 0 || c.TicketCost < 0 || c.CreditCost < 0 {
		return Validationf("costs cannot be negative")
	}
	if c.StartDate != nil && c.EndDate != nil && !c.StartDate.Before(*c.EndDate) {
		return Validationf("competition start date must be before end date")
	}
	return nil
}

// SetState applies a state transition, rejecting anything outside the table.
func (c *Competition) SetState(to CompetitionState) error {
	if !to.Valid() {
		return Validationf("unknown competition state %q", to)
	}
	if !c.State.CanTransition(to) {
		return InvalidTransitionError("competition", string(c.State), string(to))
	}
	c.State = to
	return nil
}

// ShouldAutoClose reports whether the competition's end date has elapsed while
// it is still open, so a scheduler pass can close it.
func (c *Competition) ShouldAutoClose(now time.Time) bool {
	if c.EndDate == nil {
		return false
	}
	return (c.State == StateReady || c.State == StateInProgress) && !now.Before(*c.EndDate)
}

// CanAddQuiz reports whether quizzes may be added in the current state.
func (c *Competition) CanAddQuiz() bool { return quizMutableStates[c.State] }

// CanModifyQuiz reports whether quiz windows may be changed in the current state.
func (c *Competition) CanModifyQuiz() bool { return quizMutableStates[c.State] }

// CanRemoveQuiz reports whether quizzes may be removed in the current state.
func (c *Competition) CanRemoveQuiz() bool {
	return c.State == StatePreparing || c.State == StateReady
}

// Enrollment links an external participant to a competition and carries the
// accumulated competition score.
type Enrollment struct {
	ID            int64
	CompetitionID int64
	ParticipantID int64
	Score         int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
