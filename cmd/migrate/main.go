package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/urfave/cli/v2"

	"github.com/francisco-leal/ModBot/internal/logger"
)

func main() {
	app := cli.App{
		Name:  "migrate",
		Usage: "apply the ModBot database schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database",
				Usage:    "PostgreSQL connection string",
				EnvVars:  []string{"MODBOT_DATABASE_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "migrations directory",
				Value: "migrations",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "apply every pending migration",
				Action: runUp,
			},
			{
				Name:   "down",
				Usage:  "roll back every migration",
				Action: runDown,
			},
			{
				Name:   "version",
				Usage:  "print the current schema version",
				Action: runVersion,
			},
			{
				Name:      "force",
				Usage:     "mark the schema as being at a version without running anything",
				ArgsUsage: "<version>",
				Action:    runForce,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal("Migration failed", "err", err)
	}
}

func open(cctx *cli.Context) (*migrate.Migrate, error) {
	path := cctx.String("path")
	logger.Info("Connecting to database", "migrations", path)

	m, err := migrate.New("file://"+path, cctx.String("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

func runUp(cctx *cli.Context) error {
	m, err := open(cctx)
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("Database is up to date")
	case err != nil:
		return fmt.Errorf("failed to run migrations: %w", err)
	default:
		logger.Info("Migrations applied")
	}
	return nil
}

func runDown(cctx *cli.Context) error {
	m, err := open(cctx)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	logger.Info("Rollback completed")
	return nil
}

func runVersion(cctx *cli.Context) error {
	m, err := open(cctx)
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("No migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	logger.Info("Current schema version", "version", version, "dirty", dirty)
	return nil
}

func runForce(cctx *cli.Context) error {
	version, err := strconv.Atoi(cctx.Args().First())
	if err != nil {
		return fmt.Errorf("force needs a numeric version: %w", err)
	}

	m, err := open(cctx)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Force(version); err != nil {
		return fmt.Errorf("failed to force version: %w", err)
	}
	logger.Info("Forced schema version", "version", version)
	return nil
}
