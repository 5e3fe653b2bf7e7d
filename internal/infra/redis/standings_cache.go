package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"competition-service/internal/app"
)

// StandingsCache caches ranking projections in Redis and falls back to the
// underlying source on a miss. Entries are JSON blobs keyed per competition:
//
//	SET competition:{id}:standings {json}
//	SET competition:{id}:breakdown {json}
//
// The aggregator calls Invalidate after each commit, so entries normally live
// until new scores land; the TTL is a backstop against missed invalidations.
type StandingsCache struct {
	client *redis.Client
	source app.StandingsSource
	ttl    time.Duration
	sf     singleflight.Group
}

func NewStandingsCache(client *redis.Client, source app.StandingsSource, ttl time.Duration) *StandingsCache {
	return &StandingsCache{
		client: client,
		source: source,
		ttl:    ttl,
	}
}

var _ app.StandingsSource = (*StandingsCache)(nil)

func (c *StandingsCache) Standings(ctx context.Context, competitionID int64) ([]app.Standing, error) {
	key := c.standingsKey(competitionID)

	var cached []app.Standing
	if ok := c.lookup(ctx, key, &cached); ok {
		return cached, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		var cached []app.Standing
		if ok := c.lookup(ctx, key, &cached); ok {
			return cached, nil
		}

		standings, err := c.source.Standings(ctx, competitionID)
		if err != nil {
			return nil, err
		}
		c.fill(ctx, key, standings)
		return standings, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]app.Standing), nil
}

func (c *StandingsCache) QuizBreakdown(ctx context.Context, competitionID int64) ([]app.QuizResult, error) {
	key := c.breakdownKey(competitionID)

	var cached []app.QuizResult
	if ok := c.lookup(ctx, key, &cached); ok {
		return cached, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		var cached []app.QuizResult
		if ok := c.lookup(ctx, key, &cached); ok {
			return cached, nil
		}

		breakdown, err := c.source.QuizBreakdown(ctx, competitionID)
		if err != nil {
			return nil, err
		}
		c.fill(ctx, key, breakdown)
		return breakdown, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]app.QuizResult), nil
}

// Invalidate drops both cached projections for a competition. Callers may use
// it after aggregation commits so readers pick up new scores before the TTL
// lapses.
func (c *StandingsCache) Invalidate(ctx context.Context, competitionID int64) {
	_ = c.client.Del(ctx, c.standingsKey(competitionID), c.breakdownKey(competitionID)).Err()
}

// lookup reports whether the key held a decodable value. Redis or decode
// errors count as a miss; the source is the authority.
func (c *StandingsCache) lookup(ctx context.Context, key string, dest interface{}) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (c *StandingsCache) fill(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
}

func (c *StandingsCache) standingsKey(competitionID int64) string {
	return "competition:" + strconv.FormatInt(competitionID, 10) + ":standings"
}

func (c *StandingsCache) breakdownKey(competitionID int64) string {
	return "competition:" + strconv.FormatInt(competitionID, 10) + ":breakdown"
}

func (c *StandingsCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
