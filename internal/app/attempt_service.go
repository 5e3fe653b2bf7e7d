package app

import (
	"context"
	"time"

	"competition-service/internal/domain"
)

// StartResult carries what a client needs to begin answering: the attempt
// identifiers plus the external quiz id used to fetch questions.
type StartResult struct {
	AttemptID         int64     `json:"competition_quiz_participant_id"`
	CompetitionID     int64     `json:"competition_id"`
	CompetitionQuizID int64     `json:"competition_quiz_id"`
	ParticipantID     int64     `json:"participant_id"`
	QuizID            int64     `json:"quiz_id"`
	StartTime         time.Time `json:"start_time"`
}

// FinishResult summarizes a graded submission.
type FinishResult struct {
	AttemptID      int64            `json:"competition_quiz_participant_id"`
	ParticipantID  int64            `json:"participant_id"`
	CorrectCount   int              `json:"correct_count"`
	Score          int              `json:"score"`
	ElapsedSeconds int              `json:"elapsed_seconds"`
	TimeLimit      int              `json:"time_limit"`
	Answers        []*domain.Answer `json:"answers"`
}

// AttemptDetail is the full view of a finished attempt.
type AttemptDetail struct {
	AttemptID         int64            `json:"competition_quiz_participant_id"`
	CompetitionID     int64            `json:"competition_id"`
	CompetitionQuizID int64            `json:"competition_quiz_id"`
	ParticipantID     int64            `json:"participant_id"`
	QuizID            int64            `json:"quiz_id"`
	StartTime         *time.Time       `json:"start_time"`
	EndTime           *time.Time       `json:"end_time"`
	Score             int              `json:"score"`
	ScoreCompetition  int              `json:"score_competition"`
	Answers           []*domain.Answer `json:"answers"`
}

// AnswerPage is one page of a quiz's answers ordered by submission time.
type AnswerPage struct {
	Answers []*domain.Answer `json:"answers"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
	Total   int              `json:"total"`
}

// AttemptService governs a single participant's run through a scheduled quiz.
type AttemptService struct {
	store  Store
	grader Grader
	now    func() time.Time
}

func NewAttemptService(store Store, grader Grader) *AttemptService {
	return &AttemptService{store: store, grader: grader, now: time.Now}
}

// NewAttemptServiceWithClock is test-only for deterministic timestamps.
func NewAttemptServiceWithClock(store Store, grader Grader, now func() time.Time) *AttemptService {
	return &AttemptService{store: store, grader: grader, now: now}
}

// Start admits a participant into a quiz's time window and stamps the attempt
// with the server clock. Enrollment in the owning competition is required, and
// only one attempt per (quiz, participant) ever exists.
func (s *AttemptService) Start(ctx context.Context, competitionQuizID, participantID int64) (*StartResult, error) {
	var result *StartResult
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		quiz, err := tx.GetQuiz(ctx, competitionQuizID)
		if err != nil {
			return err
		}
		if _, err := tx.GetEnrollment(ctx, quiz.CompetitionID, participantID); err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				return domain.NotFoundf("participant %d is not enrolled in competition %d", participantID, quiz.CompetitionID)
			}
			return err
		}
		if existing, err := tx.GetAttempt(ctx, competitionQuizID, participantID); err == nil && existing != nil {
			return domain.Conflictf("participant %d already started quiz %d", participantID, competitionQuizID)
		} else if err != nil && !domain.IsKind(err, domain.KindNotFound) {
			return err
		}

		now := s.now()
		if quiz.StartTime == nil {
			return domain.Validationf("quiz %d has no start time configured", competitionQuizID)
		}
		if now.Before(*quiz.StartTime) {
			return domain.OutOfWindowf("quiz %d has not opened yet", competitionQuizID)
		}
		if quiz.EndTime != nil && now.After(*quiz.EndTime) {
			return domain.OutOfWindowf("quiz %d is already closed", competitionQuizID)
		}

		attempt := &domain.Attempt{
			CompetitionQuizID: competitionQuizID,
			ParticipantID:     participantID,
			StartTime:         &now,
		}
		if err := tx.CreateAttempt(ctx, attempt); err != nil {
			return err
		}
		result = &StartResult{
			AttemptID:         attempt.ID,
			CompetitionID:     quiz.CompetitionID,
			CompetitionQuizID: competitionQuizID,
			ParticipantID:     participantID,
			QuizID:            quiz.QuizID,
			StartTime:         now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Finish grades a submission against the external answer key and closes the
// attempt. The whole operation is all-or-nothing: a duplicate question, a
// missing grading entry, or an expired clock persists no answers at all.
func (s *AttemptService) Finish(ctx context.Context, competitionQuizID, participantID int64, submissions []domain.AnswerSubmission) (*FinishResult, error) {
	// Stamp the finish time before any validation or network round trip.
	now := s.now()

	if len(submissions) == 0 {
		return nil, domain.Validationf("submission carries no answers")
	}
	seen := make(map[int64]bool, len(submissions))
	for _, sub := range submissions {
		if seen[sub.QuestionID] {
			return nil, domain.Validationf("duplicate answer for question %d", sub.QuestionID)
		}
		seen[sub.QuestionID] = true
	}

	var result *FinishResult
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		quiz, err := tx.GetQuiz(ctx, competitionQuizID)
		if err != nil {
			return err
		}
		attempt, err := tx.GetAttempt(ctx, competitionQuizID, participantID)
		if err != nil {
			return err
		}
		if attempt.StartTime == nil {
			return domain.Conflictf("participant %d has not started quiz %d", participantID, competitionQuizID)
		}
		if attempt.Finished() {
			return domain.Conflictf("participant %d already finished quiz %d", participantID, competitionQuizID)
		}
		if quiz.TimeLimit <= 0 {
			return domain.Validationf("quiz %d has no time limit configured", competitionQuizID)
		}
		elapsed := attempt.Elapsed(now)
		if elapsed > quiz.TimeLimit {
			return domain.OutOfWindowf("time limit exceeded: %ds elapsed of %ds", elapsed, quiz.TimeLimit)
		}

		key, err := s.grader.CorrectAnswers(ctx, quiz.QuizID, submissions)
		if err != nil {
			return err
		}

		answers := make([]*domain.Answer, 0, len(submissions))
		correct := 0
		for _, sub := range submissions {
			correctID, ok := key[sub.QuestionID]
			if !ok {
				return domain.Validationf("question %d not recognized by grading service", sub.QuestionID)
			}
			isCorrect := sub.AnswerID == correctID
			if isCorrect {
				correct++
			}
			answers = append(answers, &domain.Answer{
				CompetitionQuizID: competitionQuizID,
				ParticipantID:     participantID,
				QuestionID:        sub.QuestionID,
				AnswerID:          sub.AnswerID,
				IsCorrect:         isCorrect,
			})
		}
		if err := tx.CreateAnswers(ctx, answers); err != nil {
			return err
		}

		attempt.EndTime = &now
		attempt.Score = domain.AttemptScore(correct, quiz.TimeLimit, elapsed)
		if err := tx.UpdateAttempt(ctx, attempt); err != nil {
			return err
		}

		result = &FinishResult{
			AttemptID:      attempt.ID,
			ParticipantID:  participantID,
			CorrectCount:   correct,
			Score:          attempt.Score,
			ElapsedSeconds: elapsed,
			TimeLimit:      quiz.TimeLimit,
			Answers:        answers,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Answers returns one participant's graded answers for a quiz.
func (s *AttemptService) Answers(ctx context.Context, competitionQuizID, participantID int64) ([]*domain.Answer, error) {
	if _, err := s.store.GetAttempt(ctx, competitionQuizID, participantID); err != nil {
		return nil, err
	}
	return s.store.AnswersByParticipant(ctx, competitionQuizID, participantID)
}

// QuizAnswers pages through every answer submitted to a quiz.
func (s *AttemptService) QuizAnswers(ctx context.Context, competitionQuizID int64, page, perPage int) (*AnswerPage, error) {
	if _, err := s.store.GetQuiz(ctx, competitionQuizID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	answers, total, err := s.store.AnswersForQuiz(ctx, competitionQuizID, page, perPage)
	if err != nil {
		return nil, err
	}
	return &AnswerPage{Answers: answers, Page: page, PerPage: perPage, Total: total}, nil
}

// Detail returns the full attempt view, available only once finished.
func (s *AttemptService) Detail(ctx context.Context, competitionQuizID, participantID int64) (*AttemptDetail, error) {
	attempt, err := s.store.GetAttempt(ctx, competitionQuizID, participantID)
	if err != nil {
		return nil, err
	}
	if !attempt.Finished() {
		return nil, domain.Conflictf("participant %d has not finished quiz %d yet", participantID, competitionQuizID)
	}
	quiz, err := s.store.GetQuiz(ctx, competitionQuizID)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.AnswersByParticipant(ctx, competitionQuizID, participantID)
	if err != nil {
		return nil, err
	}
	return &AttemptDetail{
		AttemptID:         attempt.ID,
		CompetitionID:     quiz.CompetitionID,
		CompetitionQuizID: competitionQuizID,
		ParticipantID:     participantID,
		QuizID:            quiz.QuizID,
		StartTime:         attempt.StartTime,
		EndTime:           attempt.EndTime,
		Score:             attempt.Score,
		ScoreCompetition:  attempt.ScoreCompetition,
		Answers:           answers,
	}, nil
}
