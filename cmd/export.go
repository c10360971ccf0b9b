/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/papertrade/apiserver/internal/services"
	"github.com/papertrade/apiserver/internal/storage"
	"github.com/papertrade/apiserver/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportUserID int
	exportOut    string
)

// exportCmd writes a user's statement to a file or to object storage.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's transaction history as CSV",
	Long: `Exports a user's transaction history as CSV. With --out the statement
is written to that path ("-" for stdout); otherwise it is uploaded to the
configured STORAGE_BACKEND and the object key is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportUserID < 1 {
			return errors.New("--user is required")
		}

		ctx := cmd.Context()
		conn, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		if _, err := store.NewUserRepository(conn).GetByID(ctx, exportUserID); err != nil {
			return fmt.Errorf("user %d: %w", exportUserID, err)
		}
		ledger := store.NewLedgerRepository(conn, cfg.Database.Driver)

		if exportOut != "" {
			out := os.Stdout
			if exportOut != "-" {
				f, err := os.Create(exportOut)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			_, err := services.NewStatementService(ledger, nil).Write(ctx, exportUserID, out)
			return err
		}

		objects, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		if objects == nil {
			return services.ErrExportDisabled
		}
		key, err := services.NewStatementService(ledger, objects).Export(ctx, exportUserID)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().IntVar(&exportUserID, "user", 0, "user id to export")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", `write the CSV to this path ("-" for stdout) instead of object storage`)
}
