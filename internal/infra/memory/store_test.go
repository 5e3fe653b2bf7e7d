package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"competition-service/internal/app"
	"competition-service/internal/domain"
)

var frozen = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func frozenClock() time.Time { return frozen }

func seedCompetition(t *testing.T, s *Store) *domain.Competition {
	t.Helper()
	start := frozen.Add(-time.Hour)
	end := frozen.Add(time.Hour)
	comp := &domain.Competition{
		Title:     "Test",
		State:     domain.StateInProgress,
		CreatedBy: 1,
		StartDate: &start,
		EndDate:   &end,
	}
	if err := s.CreateCompetition(context.Background(), comp); err != nil {
		t.Fatalf("seed competition: %v", err)
	}
	return comp
}

func seedActiveQuiz(t *testing.T, s *Store, competitionID, quizID int64) *domain.CompetitionQuiz {
	t.Helper()
	start := frozen.Add(-time.Hour)
	end := frozen.Add(-time.Minute)
	quiz := &domain.CompetitionQuiz{
		CompetitionID: competitionID,
		QuizID:        quizID,
		StartTime:     &start,
		EndTime:       &end,
		TimeLimit:     600,
		Status:        domain.QuizActive,
	}
	if err := s.CreateQuiz(context.Background(), quiz); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	return quiz
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStoreWithClock(frozenClock)
	comp := seedCompetition(t, s)

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		if err := tx.CreateEnrollment(ctx, &domain.Enrollment{CompetitionID: comp.ID, ParticipantID: 7}); err != nil {
			return err
		}
		comp.Title = "renamed"
		if err := tx.UpdateCompetition(ctx, comp); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := s.GetEnrollment(ctx, comp.ID, 7); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected enrollment rolled back, got %v", err)
	}
	got, err := s.GetCompetition(ctx, comp.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Test" {
		t.Fatalf("expected title restored, got %q", got.Title)
	}
}

func TestRunInTxNestedReusesTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewStoreWithClock(frozenClock)
	comp := seedCompetition(t, s)

	err := s.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		return tx.RunInTx(ctx, func(ctx context.Context, inner app.Store) error {
			return inner.CreateEnrollment(ctx, &domain.Enrollment{CompetitionID: comp.ID, ParticipantID: 7})
		})
	})
	if err != nil {
		t.Fatalf("nested tx failed: %v", err)
	}
	if _, err := s.GetEnrollment(ctx, comp.ID, 7); err != nil {
		t.Fatalf("expected committed enrollment, got %v", err)
	}
}

func TestClaimQuizSemantics(t *testing.T) {
	ctx := context.Background()
	s := NewStoreWithClock(frozenClock)
	comp := seedCompetition(t, s)
	quiz := seedActiveQuiz(t, s, comp.ID, 501)

	err := s.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		if _, err := tx.ClaimQuiz(ctx, quiz.ID); err != nil {
			return err
		}
		// Second claim in the same transaction misses.
		if _, err := tx.ClaimQuiz(ctx, quiz.ID); !errors.Is(err, domain.ErrQuizClaimed) {
			t.Fatalf("expected claim miss, got %v", err)
		}
		// Claimed rows drop out of the due scan.
		due, err := tx.DueQuizzes(ctx, 10)
		if err != nil {
			return err
		}
		if len(due) != 0 {
			t.Fatalf("expected claimed quiz hidden from due scan, got %v", due)
		}
		quiz.Status = domain.QuizComputable
		return tx.UpdateQuiz(ctx, quiz)
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}

	// Post-commit the quiz is no longer active, so claims keep missing.
	if _, err := s.ClaimQuiz(ctx, quiz.ID); !errors.Is(err, domain.ErrQuizClaimed) {
		t.Fatalf("expected claim miss on computable quiz, got %v", err)
	}
	if _, err := s.ClaimQuiz(ctx, 9999); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not found for unknown quiz, got %v", err)
	}
}

func TestClaimReleasedOnRollback(t *testing.T) {
	ctx := context.Background()
	s := NewStoreWithClock(frozenClock)
	comp := seedCompetition(t, s)
	quiz := seedActiveQuiz(t, s, comp.ID, 501)

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		if _, err := tx.ClaimQuiz(ctx, quiz.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	// The quiz is claimable again after rollback.
	err = s.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		_, err := tx.ClaimQuiz(ctx, quiz.ID)
		return err
	})
	if err != nil {
		t.Fatalf("expected reclaim after rollback, got %v", err)
	}
}

func TestDueQuizzesOnlyPastEndActive(t *testing.T) {
	ctx := context.Background()
	s := NewStoreWithClock(frozenClock)
	comp := seedCompetition(t, s)

	due := seedActiveQuiz(t, s, comp.ID, 501)

	future := frozen.Add(time.Hour)
	open := &domain.CompetitionQuiz{
		CompetitionID: comp.ID,
		QuizID:        502,
		StartTime:     timeRef(frozen.Add(-time.Hour)),
		EndTime:       &future,
		TimeLimit:     600,
		Status:        domain.QuizActive,
	}
	if err := s.CreateQuiz(ctx, open); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	done := seedActiveQuiz(t, s, comp.ID, 503)
	done.Status = domain.QuizComputable
	if err := s.UpdateQuiz(ctx, done); err != nil {
		t.Fatalf("update quiz: %v", err)
	}

	ids, err := s.DueQuizzes(ctx, 10)
	if err != nil {
		t.Fatalf("due quizzes: %v", err)
	}
	if len(ids) != 1 || ids[0] != due.ID {
		t.Fatalf("expected only quiz %d due, got %v", due.ID, ids)
	}
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := NewStoreWithClock(frozenClock)
	comp := seedCompetition(t, s)
	quiz := seedActiveQuiz(t, s, comp.ID, 501)

	dup := &domain.CompetitionQuiz{CompetitionID: comp.ID, QuizID: 501, Status: domain.QuizActive}
	if err := s.CreateQuiz(ctx, dup); !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict for duplicate quiz, got %v", err)
	}

	if err := s.CreateEnrollment(ctx, &domain.Enrollment{CompetitionID: comp.ID, ParticipantID: 7}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if err := s.CreateEnrollment(ctx, &domain.Enrollment{CompetitionID: comp.ID, ParticipantID: 7}); !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict for duplicate enrollment, got %v", err)
	}

	start := frozen
	if err := s.CreateAttempt(ctx, &domain.Attempt{CompetitionQuizID: quiz.ID, ParticipantID: 7, StartTime: &start}); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if err := s.CreateAttempt(ctx, &domain.Attempt{CompetitionQuizID: quiz.ID, ParticipantID: 7, StartTime: &start}); !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict for duplicate attempt, got %v", err)
	}
}

func TestRankingsReadFromStore(t *testing.T) {
	ctx := context.Background()
	s := NewStoreWithClock(frozenClock)
	comp := seedCompetition(t, s)
	quiz := seedActiveQuiz(t, s, comp.ID, 501)
	quiz.Status = domain.QuizComputable
	if err := s.UpdateQuiz(ctx, quiz); err != nil {
		t.Fatalf("update quiz: %v", err)
	}

	for participantID, score := range map[int64]int{1: 4, 2: 12} {
		if err := s.CreateEnrollment(ctx, &domain.Enrollment{CompetitionID: comp.ID, ParticipantID: participantID, Score: score}); err != nil {
			t.Fatalf("enroll: %v", err)
		}
	}

	rankings := NewRankings(s)
	standings, err := rankings.Standings(ctx, comp.ID)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(standings) != 2 || standings[0].ParticipantID != 2 || standings[1].Score != 4 {
		t.Fatalf("unexpected standings: %+v", standings)
	}

	breakdown, err := rankings.QuizBreakdown(ctx, comp.ID)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if len(breakdown) != 1 || breakdown[0].QuizID != 501 {
		t.Fatalf("unexpected breakdown: %+v", breakdown)
	}
}

func timeRef(t time.Time) *time.Time { return &t }
