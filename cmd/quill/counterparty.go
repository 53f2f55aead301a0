package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quillbooks/quill/internal/counterparty"
)

func counterpartyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counterparty",
		Short: "Resolve invoice direction for extracted files",
	}
	cmd.AddCommand(counterpartyRefreshCmd())
	return cmd
}

func counterpartyRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-resolve counterparty and direction for all extracted files",
		Long: `Run the counterparty resolver over the user's extraction-complete
files, typically after their identity data (VAT IDs, IBANs, company
name) changed. Files whose resolution is unchanged are not rewritten.`,
		RunE: runCounterpartyRefresh,
	}

	cmd.Flags().String("user", "", "user ID (required)")
	cmd.Flags().String("cursor", "", "resume cursor from a previous run")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runCounterpartyRefresh(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	cursor, _ := cmd.Flags().GetString("cursor")

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	result, err := counterparty.Reevaluate(ctx, store, userID, cursor, slog.Default())
	if err != nil {
		return err
	}

	fmt.Printf("Processed %d files: %d updated, %d failed\n",
		result.Processed, result.Updated, result.Failed)
	if result.ResumeCursor != "" {
		fmt.Printf("More remain; resume with --cursor %s\n", result.ResumeCursor)
	}
	return nil
}
