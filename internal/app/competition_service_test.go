package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"competition-service/internal/app"
	"competition-service/internal/domain"
	"competition-service/internal/infra/memory"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func timePtr(t time.Time) *time.Time { return &t }

func newCompetitionService() (*app.CompetitionService, *memory.Store) {
	store := memory.NewStoreWithClock(fixedClock)
	return app.NewCompetitionServiceWithClock(store, fixedClock), store
}

func validInput() app.CompetitionInput {
	return app.CompetitionInput{
		Title:     "Spring Invitational",
		CreatedBy: 42,
		StartDate: timePtr(testNow.Add(time.Hour)),
		EndDate:   timePtr(testNow.Add(48 * time.Hour)),
	}
}

func TestCreateCompetitionDefaults(t *testing.T) {
	ctx := context.Background()
	service, _ := newCompetitionService()

	comp, err := service.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if comp.State != domain.StatePreparing {
		t.Fatalf("expected preparing, got %s", comp.State)
	}
	if comp.CurrencyCost != 100 {
		t.Fatalf("expected default currency cost 100, got %d", comp.CurrencyCost)
	}
	if comp.ID == 0 {
		t.Fatal("expected assigned id")
	}
}

func TestCreateCompetitionValidation(t *testing.T) {
	ctx := context.Background()
	service, _ := newCompetitionService()

	cases := []struct {
		name   string
		mutate func(*app.CompetitionInput)
	}{
		{"missing title", func(in *app.CompetitionInput) { in.Title = "" }},
		{"missing created_by", func(in *app.CompetitionInput) { in.CreatedBy = 0 }},
		{"missing dates", func(in *app.CompetitionInput) { in.StartDate = nil }},
		{"end before start", func(in *app.CompetitionInput) {
			in.EndDate = timePtr(testNow.Add(-time.Hour))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			if _, err := service.Create(ctx, in); !domain.IsKind(err, domain.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateCompetitionWithQuizzesAtomic(t *testing.T) {
	ctx := context.Background()
	service, store := newCompetitionService()

	in := validInput()
	in.Quizzes = []app.QuizInput{
		{QuizID: 501, StartTime: timePtr(testNow.Add(2 * time.Hour)), EndTime: timePtr(testNow.Add(3 * time.Hour)), TimeLimit: 600},
		// Duplicate quiz id must sink the whole create.
		{QuizID: 501, StartTime: timePtr(testNow.Add(4 * time.Hour)), EndTime: timePtr(testNow.Add(5 * time.Hour)), TimeLimit: 600},
	}
	if _, err := service.Create(ctx, in); !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	comps, err := store.ListCompetitions(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(comps) != 0 {
		t.Fatalf("expected rollback to leave no competitions, got %d", len(comps))
	}
}

func TestSetStateFollowsLifecycle(t *testing.T) {
	ctx := context.Background()
	service, _ := newCompetitionService()

	comp, err := service.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	comp, err = service.SetState(ctx, comp.ID, domain.StateReady)
	if err != nil {
		t.Fatalf("preparing->ready failed: %v", err)
	}
	comp, err = service.SetState(ctx, comp.ID, domain.StateInProgress)
	if err != nil {
		t.Fatalf("ready->in_progress failed: %v", err)
	}

	if _, err := service.SetState(ctx, comp.ID, domain.StatePreparing); !domain.IsKind(err, domain.KindInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	got, err := service.Get(ctx, comp.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.State != domain.StateInProgress {
		t.Fatalf("rejected transition must not change state, got %s", got.State)
	}
}

func TestAddQuizRules(t *testing.T) {
	ctx := context.Background()
	service, _ := newCompetitionService()

	comp, err := service.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	quizIn := app.QuizInput{
		QuizID:    501,
		StartTime: timePtr(testNow.Add(2 * time.Hour)),
		EndTime:   timePtr(testNow.Add(3 * time.Hour)),
		TimeLimit: 600,
	}
	if _, err := service.AddQuiz(ctx, comp.ID, quizIn); err != nil {
		t.Fatalf("add quiz failed: %v", err)
	}

	// Same external quiz twice is a conflict.
	if _, err := service.AddQuiz(ctx, comp.ID, quizIn); !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict on duplicate quiz, got %v", err)
	}

	// Window must sit inside the competition window.
	outside := quizIn
	outside.QuizID = 502
	outside.EndTime = timePtr(testNow.Add(100 * time.Hour))
	if _, err := service.AddQuiz(ctx, comp.ID, outside); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected validation error for window, got %v", err)
	}

	// Closed competitions reject scheduling.
	if _, err := service.SetState(ctx, comp.ID, domain.StateReady); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if _, err := service.SetState(ctx, comp.ID, domain.StateClosed); err != nil {
		t.Fatalf("set closed: %v", err)
	}
	late := quizIn
	late.QuizID = 503
	if _, err := service.AddQuiz(ctx, comp.ID, late); !domain.IsKind(err, domain.KindInvalidTransition) {
		t.Fatalf("expected invalid transition on closed competition, got %v", err)
	}
}

func TestUpdateQuizGuards(t *testing.T) {
	ctx := context.Background()
	service, _ := newCompetitionService()

	comp, err := service.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	quiz, err := service.AddQuiz(ctx, comp.ID, app.QuizInput{
		QuizID:    501,
		StartTime: timePtr(testNow.Add(2 * time.Hour)),
		EndTime:   timePtr(testNow.Add(3 * time.Hour)),
		TimeLimit: 600,
	})
	if err != nil {
		t.Fatalf("add quiz failed: %v", err)
	}

	if _, err := service.UpdateQuiz(ctx, quiz.ID, domain.QuizPatch{}); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected validation error for empty patch, got %v", err)
	}
	if _, err := service.UpdateQuiz(ctx, quiz.ID, domain.QuizPatch{
		StartTime: timePtr(testNow.Add(-time.Hour)),
	}); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected validation error for past start, got %v", err)
	}

	limit := 900
	updated, err := service.UpdateQuiz(ctx, quiz.ID, domain.QuizPatch{TimeLimit: &limit})
	if err != nil {
		t.Fatalf("update quiz failed: %v", err)
	}
	if updated.TimeLimit != 900 {
		t.Fatalf("expected time limit 900, got %d", updated.TimeLimit)
	}

}

func TestUpdateQuizRejectedOnceStarted(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStoreWithClock(fixedClock)
	service := app.NewCompetitionServiceWithClock(store, fixedClock)

	in := validInput()
	in.StartDate = timePtr(testNow.Add(-time.Hour))
	comp, err := service.Create(ctx, in)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	quiz, err := service.AddQuiz(ctx, comp.ID, app.QuizInput{
		QuizID:    502,
		StartTime: timePtr(testNow.Add(time.Minute)),
		EndTime:   timePtr(testNow.Add(3 * time.Hour)),
		TimeLimit: 600,
	})
	if err != nil {
		t.Fatalf("add quiz failed: %v", err)
	}

	// Same store, clock moved past the quiz start.
	later := app.NewCompetitionServiceWithClock(store, func() time.Time { return testNow.Add(2 * time.Minute) })
	limit := 900
	if _, err := later.UpdateQuiz(ctx, quiz.ID, domain.QuizPatch{TimeLimit: &limit}); !domain.IsKind(err, domain.KindInvalidTransition) {
		t.Fatalf("expected invalid transition for started quiz, got %v", err)
	}
	if err := later.RemoveQuiz(ctx, quiz.ID); !domain.IsKind(err, domain.KindInvalidTransition) {
		t.Fatalf("expected invalid transition removing started quiz, got %v", err)
	}
}

func TestEnrollmentLimitAndUniqueness(t *testing.T) {
	ctx := context.Background()
	service, _ := newCompetitionService()

	in := validInput()
	in.ParticipantLimit = 2
	comp, err := service.Create(ctx, in)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := service.Enroll(ctx, comp.ID, 7); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	if _, err := service.Enroll(ctx, comp.ID, 7); !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict on duplicate enrollment, got %v", err)
	}
	if _, err := service.Enroll(ctx, comp.ID, 8); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	if _, err := service.Enroll(ctx, comp.ID, 9); !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict at participant limit, got %v", err)
	}

	if err := service.Withdraw(ctx, comp.ID, 7); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if _, err := service.Enroll(ctx, comp.ID, 9); err != nil {
		t.Fatalf("enroll after withdraw failed: %v", err)
	}
}

func TestCloseEndedSweep(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStoreWithClock(fixedClock)
	service := app.NewCompetitionServiceWithClock(store, fixedClock)

	// Ended competition in progress: should close.
	ended := &domain.Competition{
		Title:     "Ended",
		State:     domain.StateInProgress,
		CreatedBy: 1,
		StartDate: timePtr(testNow.Add(-48 * time.Hour)),
		EndDate:   timePtr(testNow.Add(-time.Hour)),
	}
	if err := store.CreateCompetition(ctx, ended); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	// Still running: untouched.
	open := &domain.Competition{
		Title:     "Open",
		State:     domain.StateInProgress,
		CreatedBy: 1,
		StartDate: timePtr(testNow.Add(-time.Hour)),
		EndDate:   timePtr(testNow.Add(time.Hour)),
	}
	if err := store.CreateCompetition(ctx, open); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	closed, err := service.CloseEnded(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 closed, got %d", closed)
	}
	got, err := store.GetCompetition(ctx, ended.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.State != domain.StateClosed {
		t.Fatalf("expected closed, got %s", got.State)
	}
	gotOpen, err := store.GetCompetition(ctx, open.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if gotOpen.State != domain.StateInProgress {
		t.Fatalf("expected in_progress, got %s", gotOpen.State)
	}
}

// brokenCloseStore fails the close transaction for one competition id.
type brokenCloseStore struct {
	app.Store
	failID int64
}

func (b brokenCloseStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Store) error) error {
	return b.Store.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		return fn(ctx, brokenCloseTx{tx, b.failID})
	})
}

type brokenCloseTx struct {
	app.Store
	failID int64
}

func (b brokenCloseTx) UpdateCompetition(ctx context.Context, comp *domain.Competition) error {
	if comp.ID == b.failID {
		return errors.New("write failed")
	}
	return b.Store.UpdateCompetition(ctx, comp)
}

func TestCloseEndedContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStoreWithClock(fixedClock)

	seed := func(title string) *domain.Competition {
		comp := &domain.Competition{
			Title:     title,
			State:     domain.StateInProgress,
			CreatedBy: 1,
			StartDate: timePtr(testNow.Add(-48 * time.Hour)),
			EndDate:   timePtr(testNow.Add(-time.Hour)),
		}
		if err := store.CreateCompetition(ctx, comp); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		return comp
	}
	broken := seed("Broken")
	healthy := seed("Healthy")

	service := app.NewCompetitionServiceWithClock(brokenCloseStore{store, broken.ID}, fixedClock)
	closed, err := service.CloseEnded(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 closed despite failure, got %d", closed)
	}
	got, err := store.GetCompetition(ctx, healthy.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.State != domain.StateClosed {
		t.Fatalf("competition after the failing one must close, got %s", got.State)
	}
	got, err = store.GetCompetition(ctx, broken.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.State != domain.StateInProgress {
		t.Fatalf("failed competition must stay in_progress, got %s", got.State)
	}
}
