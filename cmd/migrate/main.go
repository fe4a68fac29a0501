package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/lab-query/internal/config"
	"github.com/seanankenbruck/lab-query/internal/database"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var migrationsPath string

	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the lab-query database schema and sample data.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd.Context(), migrationsPath)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&migrationsPath, "path", "./migrations", "directory holding the migration files")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runUp(cmd.Context(), migrationsPath)
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("steps must be an integer: %w", err)
					}
					steps = n
				}
				cfg, err := loadDatabaseConfig(cmd.Context())
				if err != nil {
					return err
				}
				if err := database.RollbackMigrations(migrationConfig(cfg, migrationsPath), steps); err != nil {
					return err
				}
				fmt.Printf("✓ Rolled back %d migration(s)\n", steps)
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadDatabaseConfig(cmd.Context())
				if err != nil {
					return err
				}
				version, dirty, err := database.MigrationVersion(migrationConfig(cfg, migrationsPath))
				if err != nil {
					return err
				}
				fmt.Printf("version=%d dirty=%t\n", version, dirty)
				return nil
			},
		},
		newSeedCmd(),
	)

	return rootCmd
}

func newSeedCmd() *cobra.Command {
	var (
		count int
		labs  int
		days  int
		force bool
		seed  int64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert random FoodReports rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadDatabaseConfig(ctx)
			if err != nil {
				return err
			}
			db, err := database.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := database.NewReportRepository(db)
			existing, err := repo.Count(ctx)
			if err != nil {
				return err
			}
			if existing > 0 && !force {
				fmt.Printf("FoodReports already holds %d rows; use --force to add more\n", existing)
				return nil
			}

			opts := database.DefaultSeedOptions()
			opts.Count = count
			opts.Labs = labs
			opts.Spread = time.Duration(days) * 24 * time.Hour
			if seed != 0 {
				opts.Rand = rand.New(rand.NewSource(seed))
			}

			n, err := database.Seed(ctx, repo, opts)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Inserted %d reports across %d labs\n", n, labs)
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 100, "number of reports to insert")
	cmd.Flags().IntVar(&labs, "labs", 10, "lab ids are drawn from 1..labs")
	cmd.Flags().IntVar(&days, "days", 90, "created_at is spread over this many days")
	cmd.Flags().BoolVar(&force, "force", false, "insert even when the table is not empty")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed for reproducible data (0 means time based)")

	return cmd
}

func runUp(ctx context.Context, migrationsPath string) error {
	cfg, err := loadDatabaseConfig(ctx)
	if err != nil {
		return err
	}

	fmt.Println("=== Running Database Migrations ===")
	fmt.Printf("Connecting to database: %s@%s:%s/%s\n", cfg.Username, cfg.Host, cfg.Port, cfg.Database)

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database connectivity failed: %w", err)
	}
	db.Close()
	fmt.Println("✓ Database connectivity verified")

	if err := database.RunMigrations(migrationConfig(cfg, migrationsPath)); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println("✓ Database migrations completed successfully!")
	return nil
}

func loadDatabaseConfig(ctx context.Context) (database.PostgresConfig, error) {
	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		return database.PostgresConfig{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return database.PostgresConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
	}, nil
}

func migrationConfig(cfg database.PostgresConfig, path string) database.MigrationConfig {
	return database.MigrationConfig{
		DatabaseURL:    cfg.URL(),
		MigrationsPath: path,
	}
}
