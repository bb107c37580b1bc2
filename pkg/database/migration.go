package database

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

var upFile = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

// migrateLogger adapts ectologger to migrate.Logger
type migrateLogger struct {
	logger ectologger.Logger
}

func (l migrateLogger) Verbose() bool { return false }

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debugf(strings.TrimSuffix(format, "\n"), v...)
}

type MigrationConfig struct {
	MigrationFolderPath string
	// Version pins the target schema version; 0 means latest
	Version uint
	// Force marks the schema clean at this version before migrating
	Force int
	// AutoRollback forces a dirty schema back to the version it had before the run
	AutoRollback bool
}

// MigrationResult reports the schema version before and after a run
type MigrationResult struct {
	From     uint          `json:"from"`
	To       uint          `json:"to"`
	Changed  bool          `json:"changed"`
	Duration time.Duration `json:"duration"`
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// folder resolves the migration folder, relative paths against the working directory
func (ms *MigrationService) folder() (string, error) {
	path := ms.config.MigrationFolderPath
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		path = filepath.Join(wd, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrapf(err, "migration folder %s does not exist", path)
	}
	return path, nil
}

// Migrate brings the catalog schema up to the configured version
func (ms *MigrationService) Migrate(ctx context.Context, db DB, databaseName string) (*MigrationResult, error) {
	log := ms.logger.WithContext(ctx).WithField("database", databaseName)

	folder, err := ms.folder()
	if err != nil {
		return nil, err
	}

	driver, err := postgres.WithInstance(db.Raw().DB, &postgres.Config{DatabaseName: databaseName})
	if err != nil {
		log.WithError(err).Error("Failed to create migration driver")
		return nil, errors.Wrap(err, "failed to create migration driver")
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		log.WithError(err).Error("Failed to create migrate instance")
		return nil, errors.Wrap(err, "failed to create migrate instance")
	}
	m.Log = migrateLogger{logger: ms.logger}

	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			log.WithError(err).Errorf("Failed to force schema to version %d", ms.config.Force)
			return nil, err
		}
	}

	from, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, errors.Wrap(err, "failed to read schema version")
	}

	started := time.Now()
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}
	result := &MigrationResult{From: from, Duration: time.Since(started)}

	switch {
	case err == nil:
		result.Changed = true
	case errors.Is(err, migrate.ErrNoChange):
	case strings.Contains(err.Error(), "no migration found for version"):
		// the schema is ahead of this binary's migration files
		latest, lerr := latestVersion(folder)
		if lerr != nil {
			return nil, lerr
		}
		log.Warnf("Schema version %d has no migration file, forcing to %d", from, latest)
		if err := m.Force(latest); err != nil {
			return nil, err
		}
	default:
		return nil, ms.recover(ctx, m, err, from)
	}

	result.To, _, _ = m.Version()
	log.WithFields(map[string]any{
		"from":        result.From,
		"to":          result.To,
		"duration_ms": result.Duration.Milliseconds(),
	}).Info("Schema migrations applied")
	return result, nil
}

// recover logs a failed run and, when AutoRollback is set, marks a dirty
// schema clean at its previous version. The migration error is always returned.
func (ms *MigrationService) recover(ctx context.Context, m *migrate.Migrate, migrationErr error, previous uint) error {
	log := ms.logger.WithContext(ctx).WithError(migrationErr)

	version, dirty, err := m.Version()
	if err != nil {
		log.Error("Migration failed and the schema version is unreadable")
		return migrationErr
	}
	log.WithFields(map[string]any{"version": version, "dirty": dirty}).Error("Migration failed")

	if !dirty || !ms.config.AutoRollback {
		return migrationErr
	}
	if previous == 0 && version > 0 {
		previous = version - 1
	}
	log.Warnf("Forcing dirty schema from version %d back to %d", version, previous)
	if err := m.Force(int(previous)); err != nil {
		ms.logger.WithContext(ctx).WithError(err).Errorf("Failed to force schema to version %d", previous)
	}
	return migrationErr
}

func latestVersion(folder string) (int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}
	latest := 0
	for _, e := range entries {
		m := upFile.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, err
		}
		if v > latest {
			latest = v
		}
	}
	if latest == 0 {
		return 0, errors.Errorf("no migration files in %s", folder)
	}
	return latest, nil
}
