package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/groupclaw/internal/store/pg"
	"github.com/nextlevelbuilder/groupclaw/internal/store/sqlite"
	"github.com/nextlevelbuilder/groupclaw/internal/upgrade"
)

// openMigrator opens the configured database and returns a migrator over the
// schema embedded in the binary. The returned close func releases both.
func openMigrator() (*migrate.Migrate, func(), error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	var (
		db     *sql.DB
		newMig func(*sql.DB) (*migrate.Migrate, error)
	)
	if cfg.IsManagedMode() {
		db, err = pg.OpenDB(cfg.Database.PostgresDSN)
		newMig = pg.NewMigrator
	} else {
		db, err = sqlite.OpenDB(cfg.SQLitePath())
		newMig = sqlite.NewMigrator
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	m, err := newMig(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	// The migrator owns db once created; closing it closes the database.
	return m, func() { m.Close() }, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration management",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	cmd.AddCommand(migrateForceCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, done, err := openMigrator()
			if err != nil {
				return err
			}
			defer done()

			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate up: %w", err)
			}
			v, dirty, _ := m.Version()
			slog.Info("migration complete", "version", v, "dirty", dirty)
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, done, err := openMigrator()
			if err != nil {
				return err
			}
			defer done()

			if steps <= 0 {
				steps = 1
			}
			if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate down: %w", err)
			}
			v, dirty, _ := m.Version()
			slog.Info("rollback complete", "version", v, "dirty", dirty)
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, done, err := openMigrator()
			if err != nil {
				return err
			}
			defer done()

			st, err := upgrade.Check(m)
			if err != nil {
				return err
			}
			fmt.Printf("version: %d, dirty: %v, required: %d\n", st.CurrentVersion, st.Dirty, st.RequiredVersion)
			fmt.Print(upgrade.FormatError(st))
			return nil
		},
	}
}

func migrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force set migration version (no migration applied)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			m, done, err := openMigrator()
			if err != nil {
				return err
			}
			defer done()

			if err := m.Force(version); err != nil {
				return fmt.Errorf("force version: %w", err)
			}
			slog.Info("forced version", "version", version)
			return nil
		},
	}
}
