package domain

import "time"

// Attempt is one participant's single timed run through a scheduled quiz.
// ScoreCompetition is backfilled by the aggregator; Score is the raw
// accuracy-and-speed score computed at finish time.
type Attempt struct {
	ID                int64
	CompetitionQuizID int64
	ParticipantID     int64
	StartTime         *time.Time
	EndTime           *time.Time
	Score             int
	ScoreCompetition  int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Finished reports whether the attempt has been submitted.
func (a *Attempt) Finished() bool { return a.EndTime != nil }

// Elapsed returns the seconds between start and now.
func (a *Attempt) Elapsed(now time.Time) int {
	if a.StartTime == nil {
		return 0
	}
	return int(now.Sub(*a.StartTime) / time.Second)
}

// Answer records one graded submission for a single question. Correctness is
// decided against the external grading service's answer key.
type Answer struct {
	ID                int64
	CompetitionQuizID int64
	ParticipantID     int64
	QuestionID        int64
	AnswerID          int64
	IsCorrect         bool
	CreatedAt         time.Time
}

// AnswerSubmission is one (question, chosen answer) pair sent at finish time.
type AnswerSubmission struct {
	QuestionID int64 `json:"question_id"`
	AnswerID   int64 `json:"answer_id"`
}
