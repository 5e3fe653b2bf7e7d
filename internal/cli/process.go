package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"competition-service/internal/app"
	"competition-service/internal/config"
	pgstore "competition-service/internal/infra/postgres"
	rediscache "competition-service/internal/infra/redis"
)

// NewProcessCmd aggregates one quiz by hand, useful when a quiz keeps failing
// in the scheduler and needs a supervised retry.
func NewProcessCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "process <competition-quiz-id>",
		Short: "Aggregate one closed quiz's results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quizID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid competition-quiz id %q", args[0])
			}
			return runProcess(cmd.Context(), *configPath, quizID)
		},
	}
}

func runProcess(ctx context.Context, configPath string, quizID int64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	aggregator := app.NewAggregator(pgstore.NewStore(db), cfg.ComputableCap())

	// A supervised retry must drop cached standings just like the scheduler.
	if cfg.Redis.Addr != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		aggregator.SetInvalidator(rediscache.NewStandingsCache(redisClient, pgstore.NewRankingReader(pool), cfg.StandingsTTL()))
	}

	err = aggregator.ProcessQuiz(ctx, quizID)
	switch {
	case err == nil:
		log.Printf("quiz %d aggregated", quizID)
		return nil
	case app.IsClaimMiss(err):
		log.Printf("quiz %d already processed or has no finished attempts", quizID)
		return nil
	default:
		return err
	}
}
