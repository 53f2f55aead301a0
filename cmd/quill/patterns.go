package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Manage learned matching patterns",
	}
	cmd.AddCommand(patternsApplyCmd())
	return cmd
}

func patternsApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reapply learned patterns across the full transaction history",
		Long: `Re-run partner matching over every transaction of the user,
oldest first, with no recency cutoff. Each run is bounded; pass the
printed resume cursor to continue a large backlog.`,
		RunE: runPatternsApply,
	}

	cmd.Flags().String("user", "", "user ID to reapply for (required)")
	cmd.Flags().String("cursor", "", "resume cursor from a previous run")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runPatternsApply(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	cursor, _ := cmd.Flags().GetString("cursor")

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	result, err := newEngine(store).ReapplyPatterns(ctx, userID, cursor)
	if err != nil {
		return err
	}

	fmt.Printf("Processed %d transactions: %d matched, %d suggested, %d failed\n",
		result.Processed, result.Matched, result.Suggested, result.Failed)
	if result.ResumeCursor != "" {
		fmt.Printf("More remain; resume with --cursor %s\n", result.ResumeCursor)
	}
	return nil
}
