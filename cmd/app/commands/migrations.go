package commands

import (
	"fmt"
	"log/slog"

	"github.com/allisson/posoffline/internal/database"
)

// RunMigrations applies every pending schema migration to the SQLite file
// described by cfg and logs the resulting schema version.
func RunMigrations(logger *slog.Logger, cfg database.Config) error {
	logger.Info("running database migrations", slog.String("path", cfg.Path))

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	if err := database.Migrate(db); err != nil {
		return err
	}

	version, dirty, err := database.MigrationVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	logger.Info("migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}
