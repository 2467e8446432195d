package main

import (
	"fmt"
	"os"

	"barbershop-payments/internal/client"
	"barbershop-payments/internal/config"
	"barbershop-payments/internal/logger"
	"barbershop-payments/internal/repository"
	"barbershop-payments/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type opsEnv struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func newRootCmd() *cobra.Command {
	rt := &opsEnv{}

	root := &cobra.Command{
		Use:          "ops",
		Short:        "Maintenance tasks for the barbershop payments service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			db, err := client.InitDatabaseClient(cfg.Database)
			if err != nil {
				return err
			}
			rt.cfg, rt.log, rt.db = cfg, log, db
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.log != nil {
				_ = rt.log.Sync()
			}
		},
	}

	root.AddCommand(newMigrateCmd(rt), newExpirePendingCmd(rt))
	return root
}

func newMigrateCmd(rt *opsEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Migrate(rt.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			rt.log.Info("schema migrated", zap.String("driver", rt.cfg.Database.Driver))
			return nil
		},
	}
}

func newExpirePendingCmd(rt *opsEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "expire-pending",
		Short: "Cancel unpaid appointments older than QUEUE_HOLD_TTL and free their positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			queueService, err := service.NewQueueService(
				rt.db,
				repository.NewQueueRepository(rt.db),
				repository.NewAppointmentRepository(rt.db),
				rt.cfg.Queue,
				rt.log,
			)
			if err != nil {
				return err
			}

			n, err := queueService.ExpireStalePending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d pending appointment(s)\n", n)
			return nil
		},
	}
}
