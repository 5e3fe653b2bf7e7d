package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"competition-service/internal/app"
	"competition-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. Transactions are
// serialized by txMu and snapshot all tables up front, so an error restores
// the pre-transaction state the way the relational store's rollback does.
// Individual operations lock mu per call and stay safe to interleave.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	now  func() time.Time

	seq          int64
	competitions map[int64]*domain.Competition
	quizzes      map[int64]*domain.CompetitionQuiz
	enrollments  map[int64]*domain.Enrollment
	attempts     map[int64]*domain.Attempt
	answers      map[int64]*domain.Answer
	// claimed marks quiz rows locked by the in-flight transaction.
	claimed map[int64]bool
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock is test-only for deterministic created/updated stamps.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:          now,
		seq:          0,
		competitions: make(map[int64]*domain.Competition),
		quizzes:      make(map[int64]*domain.CompetitionQuiz),
		enrollments:  make(map[int64]*domain.Enrollment),
		attempts:     make(map[int64]*domain.Attempt),
		answers:      make(map[int64]*domain.Answer),
		claimed:      make(map[int64]bool),
	}
}

// txStore is the view handed to RunInTx callbacks; nested RunInTx calls reuse
// the outer transaction instead of deadlocking on txMu.
type txStore struct{ *Store }

func (t txStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Store) error) error {
	return fn(ctx, t)
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	err := fn(ctx, txStore{s})

	s.mu.Lock()
	if err != nil {
		s.restoreLocked(snap)
	}
	s.claimed = make(map[int64]bool)
	s.mu.Unlock()
	return err
}

type snapshot struct {
	seq          int64
	competitions map[int64]*domain.Competition
	quizzes      map[int64]*domain.CompetitionQuiz
	enrollments  map[int64]*domain.Enrollment
	attempts     map[int64]*domain.Attempt
	answers      map[int64]*domain.Answer
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		seq:          s.seq,
		competitions: make(map[int64]*domain.Competition, len(s.competitions)),
		quizzes:      make(map[int64]*domain.CompetitionQuiz, len(s.quizzes)),
		enrollments:  make(map[int64]*domain.Enrollment, len(s.enrollments)),
		attempts:     make(map[int64]*domain.Attempt, len(s.attempts)),
		answers:      make(map[int64]*domain.Answer, len(s.answers)),
	}
	for id, c := range s.competitions {
		cp := *c
		snap.competitions[id] = &cp
	}
	for id, q := range s.quizzes {
		cp := *q
		snap.quizzes[id] = &cp
	}
	for id, e := range s.enrollments {
		cp := *e
		snap.enrollments[id] = &cp
	}
	for id, a := range s.attempts {
		cp := *a
		snap.attempts[id] = &cp
	}
	for id, a := range s.answers {
		cp := *a
		snap.answers[id] = &cp
	}
	return snap
}

func (s *Store) restoreLocked(snap snapshot) {
	s.seq = snap.seq
	s.competitions = snap.competitions
	s.quizzes = snap.quizzes
	s.enrollments = snap.enrollments
	s.attempts = snap.attempts
	s.answers = snap.answers
}

func (s *Store) nextIDLocked() int64 {
	s.seq++
	return s.seq
}

// Competitions.

func (s *Store) CreateCompetition(_ context.Context, c *domain.Competition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextIDLocked()
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.competitions[c.ID] = &cp
	return nil
}

func (s *Store) UpdateCompetition(_ context.Context, c *domain.Competition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.competitions[c.ID]; !ok {
		return domain.NotFoundf("competition %d not found", c.ID)
	}
	c.UpdatedAt = s.now()
	cp := *c
	s.competitions[c.ID] = &cp
	return nil
}

func (s *Store) GetCompetition(_ context.Context, id int64) (*domain.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.competitions[id]
	if !ok {
		return nil, domain.NotFoundf("competition %d not found", id)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListCompetitions(_ context.Context) ([]*domain.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Competition, 0, len(s.competitions))
	for _, c := range s.competitions {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CompetitionsPastEnd(_ context.Context) ([]*domain.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []*domain.Competition
	for _, c := range s.competitions {
		if c.ShouldAutoClose(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Quizzes.

func (s *Store) CreateQuiz(_ context.Context, q *domain.CompetitionQuiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.quizzes {
		if existing.CompetitionID == q.CompetitionID && existing.QuizID == q.QuizID {
			return domain.Conflictf("quiz %d already scheduled in competition %d", q.QuizID, q.CompetitionID)
		}
	}
	q.ID = s.nextIDLocked()
	q.CreatedAt = s.now()
	q.UpdatedAt = q.CreatedAt
	cp := *q
	s.quizzes[q.ID] = &cp
	return nil
}

func (s *Store) UpdateQuiz(_ context.Context, q *domain.CompetitionQuiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[q.ID]; !ok {
		return domain.NotFoundf("quiz %d not found", q.ID)
	}
	q.UpdatedAt = s.now()
	cp := *q
	s.quizzes[q.ID] = &cp
	return nil
}

func (s *Store) DeleteQuiz(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[id]; !ok {
		return domain.NotFoundf("quiz %d not found", id)
	}
	delete(s.quizzes, id)
	for aid, a := range s.answers {
		if a.CompetitionQuizID == id {
			delete(s.answers, aid)
		}
	}
	return nil
}

func (s *Store) GetQuiz(_ context.Context, id int64) (*domain.CompetitionQuiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, domain.NotFoundf("quiz %d not found", id)
	}
	cp := *q
	return &cp, nil
}

func (s *Store) GetQuizByExternalID(_ context.Context, competitionID, quizID int64) (*domain.CompetitionQuiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.quizzes {
		if q.CompetitionID == competitionID && q.QuizID == quizID {
			cp := *q
			return &cp, nil
		}
	}
	return nil, domain.NotFoundf("quiz %d not scheduled in competition %d", quizID, competitionID)
}

func (s *Store) ListQuizzes(_ context.Context, competitionID int64) ([]*domain.CompetitionQuiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.CompetitionQuiz
	for _, q := range s.quizzes {
		if q.CompetitionID == competitionID {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ComputableQuizzes(_ context.Context, competitionID int64) ([]*domain.CompetitionQuiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.CompetitionQuiz
	for _, q := range s.quizzes {
		if q.CompetitionID == competitionID && q.Status == domain.QuizComputable {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		qi, qj := out[i], out[j]
		switch {
		case qi.EndTime == nil:
			return true
		case qj.EndTime == nil:
			return false
		case !qi.EndTime.Equal(*qj.EndTime):
			return qi.EndTime.Before(*qj.EndTime)
		default:
			return qi.ID < qj.ID
		}
	})
	return out, nil
}

func (s *Store) DueQuizzes(_ context.Context, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var due []*domain.CompetitionQuiz
	for _, q := range s.quizzes {
		if q.Due(now) && !s.claimed[q.ID] {
			due = append(due, q)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	ids := make([]int64, 0, len(due))
	for _, q := range due {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, q.ID)
	}
	return ids, nil
}

func (s *Store) ClaimQuiz(_ context.Context, id int64) (*domain.CompetitionQuiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, domain.NotFoundf("quiz %d not found", id)
	}
	if q.Status != domain.QuizActive || s.claimed[id] {
		return nil, domain.ErrQuizClaimed
	}
	s.claimed[id] = true
	cp := *q
	return &cp, nil
}

// Enrollments.

func (s *Store) CreateEnrollment(_ context.Context, e *domain.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.enrollments {
		if existing.CompetitionID == e.CompetitionID && existing.ParticipantID == e.ParticipantID {
			return domain.Conflictf("participant %d already enrolled in competition %d", e.ParticipantID, e.CompetitionID)
		}
	}
	e.ID = s.nextIDLocked()
	e.CreatedAt = s.now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	s.enrollments[e.ID] = &cp
	return nil
}

func (s *Store) DeleteEnrollment(_ context.Context, competitionID, participantID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.enrollments {
		if e.CompetitionID == competitionID && e.ParticipantID == participantID {
			delete(s.enrollments, id)
			return nil
		}
	}
	return domain.NotFoundf("participant %d not enrolled in competition %d", participantID, competitionID)
}

func (s *Store) GetEnrollment(_ context.Context, competitionID, participantID int64) (*domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.enrollments {
		if e.CompetitionID == competitionID && e.ParticipantID == participantID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.NotFoundf("participant %d not enrolled in competition %d", participantID, competitionID)
}

func (s *Store) CountEnrollments(_ context.Context, competitionID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.enrollments {
		if e.CompetitionID == competitionID {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListEnrollments(_ context.Context, competitionID int64) ([]*domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Enrollment
	for _, e := range s.enrollments {
		if e.CompetitionID == competitionID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateEnrollmentScores(_ context.Context, enrollments []*domain.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range enrollments {
		existing, ok := s.enrollments[e.ID]
		if !ok {
			return domain.NotFoundf("enrollment %d not found", e.ID)
		}
		existing.Score = e.Score
		existing.UpdatedAt = e.UpdatedAt
	}
	return nil
}

// Attempts.

func (s *Store) CreateAttempt(_ context.Context, a *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.CompetitionQuizID == a.CompetitionQuizID && existing.ParticipantID == a.ParticipantID {
			return domain.Conflictf("participant %d already has an attempt for quiz %d", a.ParticipantID, a.CompetitionQuizID)
		}
	}
	a.ID = s.nextIDLocked()
	a.CreatedAt = s.now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

func (s *Store) UpdateAttempt(_ context.Context, a *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[a.ID]; !ok {
		return domain.NotFoundf("attempt %d not found", a.ID)
	}
	a.UpdatedAt = s.now()
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

func (s *Store) GetAttempt(_ context.Context, competitionQuizID, participantID int64) (*domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.CompetitionQuizID == competitionQuizID && a.ParticipantID == participantID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.NotFoundf("participant %d has no attempt for quiz %d", participantID, competitionQuizID)
}

func (s *Store) FinishedAttempts(_ context.Context, competitionQuizID int64) ([]*domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Attempt
	for _, a := range s.attempts {
		if a.CompetitionQuizID == competitionQuizID && a.EndTime != nil {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateAttemptScores(_ context.Context, attempts []*domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range attempts {
		existing, ok := s.attempts[a.ID]
		if !ok {
			return domain.NotFoundf("attempt %d not found", a.ID)
		}
		existing.ScoreCompetition = a.ScoreCompetition
		existing.UpdatedAt = a.UpdatedAt
	}
	return nil
}

func (s *Store) ListQuizAttempts(_ context.Context, competitionQuizID int64) ([]*domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Attempt
	for _, a := range s.attempts {
		if a.CompetitionQuizID == competitionQuizID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScoreCompetition != out[j].ScoreCompetition {
			return out[i].ScoreCompetition > out[j].ScoreCompetition
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ComputableTotals(_ context.Context, competitionID int64) (map[int64]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	computable := make(map[int64]bool)
	for _, q := range s.quizzes {
		if q.CompetitionID == competitionID && q.Status == domain.QuizComputable {
			computable[q.ID] = true
		}
	}
	totals := make(map[int64]int)
	for _, a := range s.attempts {
		if computable[a.CompetitionQuizID] {
			totals[a.ParticipantID] += a.ScoreCompetition
		}
	}
	return totals, nil
}

// Answers.

func (s *Store) CreateAnswers(_ context.Context, answers []*domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range answers {
		for _, existing := range s.answers {
			if existing.CompetitionQuizID == a.CompetitionQuizID &&
				existing.ParticipantID == a.ParticipantID &&
				existing.QuestionID == a.QuestionID {
				return domain.Conflictf("duplicate answer for question %d", a.QuestionID)
			}
		}
		a.ID = s.nextIDLocked()
		a.CreatedAt = s.now()
		cp := *a
		s.answers[a.ID] = &cp
	}
	return nil
}

func (s *Store) AnswersByParticipant(_ context.Context, competitionQuizID, participantID int64) ([]*domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Answer
	for _, a := range s.answers {
		if a.CompetitionQuizID == competitionQuizID && a.ParticipantID == participantID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AnswersForQuiz(_ context.Context, competitionQuizID int64, page, perPage int) ([]*domain.Answer, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*domain.Answer
	for _, a := range s.answers {
		if a.CompetitionQuizID == competitionQuizID {
			cp := *a
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	total := len(all)
	start := (page - 1) * perPage
	if start >= total {
		return nil, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}
