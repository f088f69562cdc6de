package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ignatzorin/centaur-backend/internal/db"
	"github.com/ignatzorin/centaur-backend/internal/logger"
)

func migrateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Применить SQL миграции из MIGRATIONS_PATH",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			log := logger.For("migrations")
			if dryRun {
				pending, err := db.PendingMigrations(ctx, a.db, a.cfg.MigrationsPath)
				if err != nil {
					return err
				}
				log.WithFields(logrus.Fields{"pending": pending}).Info("миграции к применению")
				return nil
			}

			applied, err := db.RunMigrations(ctx, a.db, a.cfg.MigrationsPath)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"applied": applied}).Info("миграции выполнены")
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "показать миграции без применения")
	return cmd
}
