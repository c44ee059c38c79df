package db

import (
	"database/sql"
	"embed"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded schema migrations. goose needs a
// database/sql handle, so it gets its own short-lived connection via the
// pgx stdlib driver.
func Migrate(databaseURL string) error {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return errors.Wrap(err, "opening migration connection")
	}
	defer conn.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}

	if err := goose.Up(conn, "migrations"); err != nil {
		return errors.Wrap(err, "applying migrations")
	}

	log.Printf("Migrations applied")
	return nil
}
