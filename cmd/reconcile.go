/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/papertrade/apiserver/internal/services"
	"github.com/papertrade/apiserver/internal/store"
	"github.com/spf13/cobra"
)

var reconcileUserID int

// reconcileCmd replays ledgers and compares them with stored balances.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Replay ledgers and report balance mismatches",
	Long: `Replays every ledger entry from the user's initial cash and compares
the result with the stored cash balance and per-symbol share totals.
Exits non-zero when any user is inconsistent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conn, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		ledgerService := services.NewLedgerService(
			store.NewUserRepository(conn),
			store.NewLedgerRepository(conn, cfg.Database.Driver),
		)

		var results []services.Reconciliation
		if reconcileUserID > 0 {
			result, err := ledgerService.Reconcile(ctx, reconcileUserID)
			if err != nil {
				return err
			}
			results = append(results, result)
		} else {
			results, err = ledgerService.ReconcileAll(ctx)
			if err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		inconsistent := 0
		for _, result := range results {
			if err := enc.Encode(result); err != nil {
				return err
			}
			if !result.Consistent() {
				inconsistent++
			}
		}
		if inconsistent > 0 {
			return fmt.Errorf("%d of %d ledgers are inconsistent", inconsistent, len(results))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().IntVar(&reconcileUserID, "user", 0, "reconcile a single user id")
}
