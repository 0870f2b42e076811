package tracking

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	"github.com/tabexp-labs/tabexp/pkg/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// migrate brings the run database schema up to date.
func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return errors.Wrap(err, "failed to set dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}
	return nil
}
