package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"competition-service/internal/app"
)

func TestStandingsCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingSource{standings: []app.Standing{
		{ParticipantID: 7, Score: 18},
		{ParticipantID: 3, Score: 10},
	}}
	cache := NewStandingsCache(newClient(mr), source, time.Minute)

	got, err := cache.Standings(context.Background(), 1)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(got) != 2 || got[0].ParticipantID != 7 || got[1].Score != 10 {
		t.Fatalf("unexpected standings: %+v", got)
	}
	if source.calls != 1 {
		t.Fatalf("expected source called once, got %d", source.calls)
	}

	// Second call should hit cache, source not incremented.
	if _, err := cache.Standings(context.Background(), 1); err != nil {
		t.Fatalf("standings from cache: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected cache hit, source calls=%d", source.calls)
	}

	// A different competition misses.
	if _, err := cache.Standings(context.Background(), 2); err != nil {
		t.Fatalf("standings for other competition: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expected miss for new competition, source calls=%d", source.calls)
	}
}

func TestStandingsCacheExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingSource{standings: []app.Standing{{ParticipantID: 1, Score: 5}}}
	cache := NewStandingsCache(newClient(mr), source, time.Minute)

	if _, err := cache.Standings(context.Background(), 1); err != nil {
		t.Fatalf("standings: %v", err)
	}
	// Past the TTL (plus jitter headroom) the entry is gone.
	mr.FastForward(2 * time.Minute)

	if _, err := cache.Standings(context.Background(), 1); err != nil {
		t.Fatalf("standings after expiry: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expected reload after expiry, source calls=%d", source.calls)
	}
}

func TestStandingsCacheInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingSource{standings: []app.Standing{{ParticipantID: 1, Score: 5}}}
	cache := NewStandingsCache(newClient(mr), source, time.Minute)

	if _, err := cache.Standings(context.Background(), 1); err != nil {
		t.Fatalf("standings: %v", err)
	}
	cache.Invalidate(context.Background(), 1)

	if _, err := cache.Standings(context.Background(), 1); err != nil {
		t.Fatalf("standings after invalidate: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expected reload after invalidate, source calls=%d", source.calls)
	}
}

func TestStandingsCacheQuizBreakdown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingSource{breakdown: []app.QuizResult{
		{CompetitionQuizID: 11, QuizID: 501, Rows: []app.QuizResultRow{
			{ParticipantID: 7, Score: 100, ScoreCompetition: 10},
		}},
	}}
	cache := NewStandingsCache(newClient(mr), source, time.Minute)

	got, err := cache.QuizBreakdown(context.Background(), 1)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if len(got) != 1 || got[0].QuizID != 501 || len(got[0].Rows) != 1 {
		t.Fatalf("unexpected breakdown: %+v", got)
	}

	if _, err := cache.QuizBreakdown(context.Background(), 1); err != nil {
		t.Fatalf("breakdown from cache: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected cache hit, source calls=%d", source.calls)
	}
}

type countingSource struct {
	standings []app.Standing
	breakdown []app.QuizResult
	calls     int
}

func (s *countingSource) Standings(ctx context.Context, competitionID int64) ([]app.Standing, error) {
	s.calls++
	return s.standings, nil
}

func (s *countingSource) QuizBreakdown(ctx context.Context, competitionID int64) ([]app.QuizResult, error) {
	s.calls++
	return s.breakdown, nil
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
