package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_competitions.sql
var createCompetitionsSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createCompetitionsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS competition_quiz_answers;
				DROP TABLE IF EXISTS competition_quiz_participants;
				DROP TABLE IF EXISTS competition_participants;
				DROP TABLE IF EXISTS competition_quizzes;
				DROP TABLE IF EXISTS competitions;
			`)
			return err
		},
	)
}
