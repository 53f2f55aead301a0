package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillbooks/quill/internal/importer"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file.csv]",
		Short: "Import bank transactions from a CSV export",
		Long: `Read a bank CSV export and store its rows as transactions.
Rows already imported (same date, amount, account and reference) are
skipped; rows with unparseable dates or amounts are reported and ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().String("user", "", "user ID to import for (required)")
	cmd.Flags().String("account", "", "account ID the export belongs to (required)")
	cmd.Flags().String("iban", "", "account IBAN, used for stable dedup hashes")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	accountID, _ := cmd.Flags().GetString("account")
	accountIban, _ := cmd.Flags().GetString("iban")

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = f.Close() }()

	result, err := importer.New(store, slog.Default()).ImportCSV(ctx, userID, accountID, accountIban, f)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d transactions (%d duplicates skipped, %d invalid rows)\n",
		result.Imported, result.Skipped, result.Invalid)
	return nil
}
