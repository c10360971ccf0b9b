/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/papertrade/apiserver/internal/mq"
	"github.com/papertrade/apiserver/types"
	"github.com/spf13/cobra"
)

// eventsCmd prints trade events from the configured broker as JSON lines.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail settled trade events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer broker.Close()

		enc := json.NewEncoder(os.Stdout)
		err = mq.SubscribeTrades(ctx, broker, cfg.MQ.TradesChannel, func(_ context.Context, event types.TradeEvent) error {
			return enc.Encode(event)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
