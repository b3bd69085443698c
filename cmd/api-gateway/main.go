package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "time/tzdata"

	_ "github.com/noah-isme/volunteer-scheduler-api/api/swagger"
	"github.com/noah-isme/volunteer-scheduler-api/internal/repository"
	"github.com/noah-isme/volunteer-scheduler-api/internal/seed"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/config"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/database"
	"github.com/noah-isme/volunteer-scheduler-api/pkg/logger"
)

// @title Volunteer Scheduler API
// @version 1.0.0
// @description Postings, recurring shifts, volunteer signups and schedule review.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime bundles what every subcommand needs.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	rt := &runtime{}
	root := &cobra.Command{
		Use:           "volunteer-scheduler",
		Short:         "Volunteer scheduling API server and maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logr, err := logger.New(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt.cfg, rt.logger = cfg, logr
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	root.AddCommand(newServeCmd(rt), newMigrateCmd(rt), newSeedCmd(rt))
	return root
}

func newServeCmd(rt *runtime) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), rt, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func newMigrateCmd(rt *runtime) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := database.NewPostgres(ctx, rt.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			migrator := database.NewMigrator(db, rt.logger)
			if dryRun {
				pending, err := migrator.Pending(ctx)
				if err != nil {
					return err
				}
				for _, name := range pending {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			applied, err := migrator.Up(ctx)
			if err != nil {
				return err
			}
			rt.logger.Info("migrations complete", zap.Int("applied", len(applied)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}

func newSeedCmd(rt *runtime) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load catalogue entries and the bootstrap admin from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = rt.cfg.Seed.File
			}
			fixture, err := seed.Load(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := database.NewPostgres(ctx, rt.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := seed.Apply(ctx, fixture, repository.NewCatalogRepository(db), repository.NewUserRepository(db), rt.logger)
			if err != nil {
				return err
			}
			rt.logger.Info("seed complete",
				zap.String("file", file),
				zap.Int("catalog_items", result.CatalogItems),
				zap.Bool("admin_created", result.AdminCreated),
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (defaults to SEED_FILE)")
	return cmd
}
