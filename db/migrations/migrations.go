package migrations

import (
	"database/sql"
	"embed"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var FS embed.FS

const migrationDir = "sql"

// Run выполняет все миграции из встроенной папки sql
func Run(db *sql.DB, log logrus.FieldLogger) error {
	goose.SetBaseFS(FS)
	goose.SetLogger(gooseLogger{log})

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}

	log.WithField("dir", migrationDir).Info("running migrations")
	if err := goose.Up(db, migrationDir); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

// gooseLogger адаптер logrus под goose.Logger
type gooseLogger struct {
	log logrus.FieldLogger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.log.Fatalf(format, v...) }
func (l gooseLogger) Printf(format string, v ...interface{}) { l.log.Infof(format, v...) }
