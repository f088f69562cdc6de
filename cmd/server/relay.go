package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func relayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outbox-relay",
		Short: "Публиковать события outbox отдельным процессом",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := requireNoPending(ctx, a); err != nil {
				return err
			}
			return a.newRelay().Run(ctx)
		},
	}
}
