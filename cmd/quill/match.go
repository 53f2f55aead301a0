package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const matchPageSize = 200

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Run partner and category matching over a user's transactions",
		Long: `Evaluate every transaction of the user against all candidate
partners and no-receipt categories. Confident matches are applied
automatically; everything else gets a ranked suggestion list. Manually
matched transactions are never touched.`,
		RunE: runMatch,
	}

	cmd.Flags().String("user", "", "user ID to match for (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runMatch(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng := newEngine(store)
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Matching transactions"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
	)

	var matched, suggested int
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			fmt.Printf("\nInterrupted; resume is safe, matching is idempotent\n")
			break
		}

		page, err := store.GetTransactionsPage(ctx, userID, cursor, matchPageSize)
		if err != nil {
			return err
		}
		for i := range page.Transactions {
			txn := &page.Transactions[i]
			_ = bar.Add(1)

			result, err := eng.MatchPartner(ctx, txn)
			if err != nil {
				return err
			}
			if result.Applied != nil {
				matched++
				// Reload so category matching sees the new partner link.
				txn, err = store.GetTransactionByID(ctx, txn.ID)
				if err != nil {
					return err
				}
			} else if len(result.Suggestions) > 0 {
				suggested++
			}

			if _, err := eng.MatchCategory(ctx, txn); err != nil {
				return err
			}
		}

		cursor = page.NextCursor
		if cursor == "" {
			break
		}
	}

	_ = bar.Finish()
	fmt.Printf("\nAuto-matched %d transactions, %d with suggestions\n", matched, suggested)
	return nil
}
