package app

import (
	"context"
	"log"
	"time"

	"competition-service/internal/domain"
)

// CompetitionInput carries the fields accepted when creating a competition.
type CompetitionInput struct {
	Title            string
	Description      string
	CreatedBy        int64
	StartDate        *time.Time
	EndDate          *time.Time
	ParticipantLimit int
	CurrencyCost     *int
	TicketCost       int
	CreditCost       int
	Quizzes          []QuizInput
}

// QuizInput schedules one external quiz inside a competition.
type QuizInput struct {
	QuizID    int64
	StartTime *time.Time
	EndTime   *time.Time
	TimeLimit int
}

// CompetitionUpdate is a partial update; nil fields are left untouched.
type CompetitionUpdate struct {
	Title            *string
	Description      *string
	ModifiedBy       *int64
	StartDate        *time.Time
	EndDate          *time.Time
	ParticipantLimit *int
	CurrencyCost     *int
	TicketCost       *int
	CreditCost       *int
	State            *domain.CompetitionState
}

// CompetitionService owns competition lifecycle and quiz scheduling rules.
type CompetitionService struct {
	store Store
	now   func() time.Time
}

func NewCompetitionService(store Store) *CompetitionService {
	return &CompetitionService{store: store, now: time.Now}
}

// NewCompetitionServiceWithClock is test-only for deterministic timestamps.
func NewCompetitionServiceWithClock(store Store, now func() time.Time) *CompetitionService {
	return &CompetitionService{store: store, now: now}
}

// Create validates and persists a new competition, optionally scheduling its
// first quizzes in the same transaction.
func (s *CompetitionService) Create(ctx context.Context, in CompetitionInput) (*domain.Competition, error) {
	if in.Title == "" {
		return nil, domain.Validationf("missing required field: title")
	}
	if in.CreatedBy == 0 {
		return nil, domain.Validationf("missing required field: created_by")
	}
	if in.StartDate == nil || in.EndDate == nil {
		return nil, domain.Validationf("missing required fields: start_date, end_date")
	}

	currency := 100
	if in.CurrencyCost != nil {
		currency = *in.CurrencyCost
	}
	comp := &domain.Competition{
		Title:            in.Title,
		Description:      in.Description,
		State:            domain.StatePreparing,
		CreatedBy:        in.CreatedBy,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		ParticipantLimit: in.ParticipantLimit,
		CurrencyCost:     currency,
		TicketCost:       in.TicketCost,
		CreditCost:       in.CreditCost,
	}
	if err := comp.Validate(); err != nil {
		return nil, err
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.CreateCompetition(ctx, comp); err != nil {
			return err
		}
		for _, qi := range in.Quizzes {
			if _, err := s.addQuizTx(ctx, tx, comp, qi); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comp, nil
}

// Get fetches one competition.
func (s *CompetitionService) Get(ctx context.Context, id int64) (*domain.Competition, error) {
	return s.store.GetCompetition(ctx, id)
}

// List fetches all competitions.
func (s *CompetitionService) List(ctx context.Context) ([]*domain.Competition, error) {
	return s.store.ListCompetitions(ctx)
}

// Update applies a partial update, routing state changes through the state
// machine.
func (s *CompetitionService) Update(ctx context.Context, id int64, upd CompetitionUpdate) (*domain.Competition, error) {
	var comp *domain.Competition
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		comp, err = tx.GetCompetition(ctx, id)
		if err != nil {
			return err
		}
		if upd.Title != nil {
			comp.Title = *upd.Title
		}
		if upd.Description != nil {
			comp.Description = *upd.Description
		}
		if upd.ModifiedBy != nil {
			comp.ModifiedBy = *upd.ModifiedBy
		}
		if upd.StartDate != nil {
			comp.StartDate = upd.StartDate
		}
		if upd.EndDate != nil {
			comp.EndDate = upd.EndDate
		}
		if upd.ParticipantLimit != nil {
			comp.ParticipantLimit = *upd.ParticipantLimit
		}
		if upd.CurrencyCost != nil {
			comp.CurrencyCost = *upd.CurrencyCost
		}
		if upd.TicketCost != nil {
			comp.TicketCost = *upd.TicketCost
		}
		if upd.CreditCost != nil {
			comp.CreditCost = *upd.CreditCost
		}
		if err := comp.Validate(); err != nil {
			return err
		}
		if upd.State != nil && *upd.State != comp.State {
			if err := comp.SetState(*upd.State); err != nil {
				return err
			}
		}
		return tx.UpdateCompetition(ctx, comp)
	})
	if err != nil {
		return nil, err
	}
	return comp, nil
}

// SetState transitions a competition's lifecycle state.
func (s *CompetitionService) SetState(ctx context.Context, id int64, to domain.CompetitionState) (*domain.Competition, error) {
	return s.Update(ctx, id, CompetitionUpdate{State: &to})
}

// AddQuiz schedules a quiz inside the competition window. Permitted only while
// the competition is preparing, ready, or in progress.
func (s *CompetitionService) AddQuiz(ctx context.Context, competitionID int64, in QuizInput) (*domain.CompetitionQuiz, error) {
	var quiz *domain.CompetitionQuiz
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		comp, err := tx.GetCompetition(ctx, competitionID)
		if err != nil {
			return err
		}
		quiz, err = s.addQuizTx(ctx, tx, comp, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

func (s *CompetitionService) addQuizTx(ctx context.Context, tx Store, comp *domain.Competition, in QuizInput) (*domain.CompetitionQuiz, error) {
	if !comp.CanAddQuiz() {
		return nil, domain.InvalidTransitionError("competition", string(comp.State), "add quiz")
	}
	if existing, err := tx.GetQuizByExternalID(ctx, comp.ID, in.QuizID); err == nil && existing != nil {
		return nil, domain.Conflictf("quiz %d is already scheduled in competition %d", in.QuizID, comp.ID)
	} else if err != nil && !domain.IsKind(err, domain.KindNotFound) {
		return nil, err
	}
	if err := domain.ValidateQuizWindow(comp, in.StartTime, in.EndTime); err != nil {
		return nil, err
	}
	if in.TimeLimit < 0 {
		return nil, domain.Validationf("time limit cannot be negative")
	}

	quiz := &domain.CompetitionQuiz{
		CompetitionID: comp.ID,
		QuizID:        in.QuizID,
		StartTime:     in.StartTime,
		EndTime:       in.EndTime,
		TimeLimit:     in.TimeLimit,
		Status:        domain.QuizActive,
	}
	if err := tx.CreateQuiz(ctx, quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

// UpdateQuiz patches a scheduled quiz's window or time limit. Forbidden once
// the quiz has started, and a new start time may not lie in the past.
func (s *CompetitionService) UpdateQuiz(ctx context.Context, competitionQuizID int64, patch domain.QuizPatch) (*domain.CompetitionQuiz, error) {
	var quiz *domain.CompetitionQuiz
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		quiz, err = tx.GetQuiz(ctx, competitionQuizID)
		if err != nil {
			return err
		}
		comp, err := tx.GetCompetition(ctx, quiz.CompetitionID)
		if err != nil {
			return err
		}
		if !comp.CanModifyQuiz() {
			return domain.InvalidTransitionError("competition", string(comp.State), "modify quiz")
		}
		now := s.now()
		if quiz.Started(now) {
			return domain.InvalidTransitionError("quiz", "started", "modify")
		}
		if patch.Empty() {
			return domain.Validationf("quiz update carries no fields")
		}

		start, end := quiz.StartTime, quiz.EndTime
		if patch.StartTime != nil {
			if !patch.StartTime.After(now) {
				return domain.Validationf("quiz start time cannot be set in the past")
			}
			start = patch.StartTime
		}
		if patch.EndTime != nil {
			end = patch.EndTime
		}
		if err := domain.ValidateQuizWindow(comp, start, end); err != nil {
			return err
		}
		if patch.TimeLimit != nil {
			if *patch.TimeLimit < 0 {
				return domain.Validationf("time limit cannot be negative")
			}
			quiz.TimeLimit = *patch.TimeLimit
		}
		quiz.StartTime = start
		quiz.EndTime = end
		return tx.UpdateQuiz(ctx, quiz)
	})
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

// RemoveQuiz unschedules a quiz. Permitted only before the competition is in
// progress and before the quiz itself has started.
func (s *CompetitionService) RemoveQuiz(ctx context.Context, competitionQuizID int64) error {
	return s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		quiz, err := tx.GetQuiz(ctx, competitionQuizID)
		if err != nil {
			return err
		}
		comp, err := tx.GetCompetition(ctx, quiz.CompetitionID)
		if err != nil {
			return err
		}
		if !comp.CanRemoveQuiz() {
			return domain.InvalidTransitionError("competition", string(comp.State), "remove quiz")
		}
		if quiz.Started(s.now()) {
			return domain.InvalidTransitionError("quiz", "started", "remove")
		}
		return tx.DeleteQuiz(ctx, quiz.ID)
	})
}

// Enroll registers a participant, enforcing the participant limit and the
// one-enrollment-per-participant rule.
func (s *CompetitionService) Enroll(ctx context.Context, competitionID, participantID int64) (*domain.Enrollment, error) {
	var enrollment *domain.Enrollment
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		comp, err := tx.GetCompetition(ctx, competitionID)
		if err != nil {
			return err
		}
		if comp.ParticipantLimit > 0 {
			count, err := tx.CountEnrollments(ctx, competitionID)
			if err != nil {
				return err
			}
			if count >= comp.ParticipantLimit {
				return domain.Conflictf("participant limit reached for competition %d", competitionID)
			}
		}
		if existing, err := tx.GetEnrollment(ctx, competitionID, participantID); err == nil && existing != nil {
			return domain.Conflictf("participant %d is already enrolled in competition %d", participantID, competitionID)
		} else if err != nil && !domain.IsKind(err, domain.KindNotFound) {
			return err
		}
		enrollment = &domain.Enrollment{CompetitionID: competitionID, ParticipantID: participantID}
		return tx.CreateEnrollment(ctx, enrollment)
	})
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

// Withdraw removes a participant's enrollment.
func (s *CompetitionService) Withdraw(ctx context.Context, competitionID, participantID int64) error {
	return s.store.DeleteEnrollment(ctx, competitionID, participantID)
}

// CloseEnded moves open competitions whose end date elapsed to closed. Errors
// on individual competitions are logged and do not stop the sweep.
func (s *CompetitionService) CloseEnded(ctx context.Context) (int, error) {
	ended, err := s.store.CompetitionsPastEnd(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, comp := range ended {
		if !comp.ShouldAutoClose(s.now()) {
			continue
		}
		err := s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
			if err := comp.SetState(domain.StateClosed); err != nil {
				return err
			}
			return tx.UpdateCompetition(ctx, comp)
		})
		if err != nil {
			log.Printf("close competition %d: %v", comp.ID, err)
			continue
		}
		closed++
	}
	return closed, nil
}
