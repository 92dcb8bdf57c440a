// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/db"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Direction is "up" or "down".
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection validates a direction given on the command line.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Up, Down:
		return Direction(s), nil
	}
	return "", fmt.Errorf("direction must be up or down, got %q", s)
}

// Run applies migrations in the given direction using the provided DSN and
// logs the resulting schema version. Already being at the target is not an error.
func Run(dsn string, direction Direction, log logrus.FieldLogger) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	if _, err := ParseDirection(string(direction)); err != nil {
		return err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.WithField("direction", direction).Info("migrate: no change")
		return nil
	}
	if err != nil {
		return err
	}
	version, dirty, verr := m.Version()
	entry := log.WithField("direction", direction)
	if verr == nil {
		entry = entry.WithFields(logrus.Fields{"version": version, "dirty": dirty})
	}
	entry.Info("migrate: done")
	return nil
}
