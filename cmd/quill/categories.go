package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage no-receipt categories",
	}
	cmd.AddCommand(categoriesInitCmd())
	cmd.AddCommand(categoriesListCmd())
	cmd.AddCommand(categoriesMatchCmd())
	return cmd
}

func categoriesInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the built-in no-receipt categories for a user",
		RunE:  runCategoriesInit,
	}
	cmd.Flags().String("user", "", "user ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runCategoriesInit(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.EnsureDefaultCategories(ctx, userID); err != nil {
		return err
	}
	fmt.Println("Default categories are in place")
	return nil
}

func categoriesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's no-receipt categories",
		RunE:  runCategoriesList,
	}
	cmd.Flags().String("user", "", "user ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func categoriesMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Run category matching over a user's incomplete transactions",
		Long: `Evaluate every incomplete transaction against the user's no-receipt
categories. Does not touch partner assignments; use this after editing
categories or their learned patterns.`,
		RunE: runCategoriesMatch,
	}
	cmd.Flags().String("user", "", "user ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runCategoriesMatch(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng := newEngine(store)
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Matching categories"),
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
			_ = bar.Add(1)

			result, err := eng.MatchCategory(ctx, &page.Transactions[i])
			if err != nil {
				return err
			}
			if result.AppliedCategoryID != "" {
				matched++
			} else if len(result.Suggestions) > 0 {
				suggested++
			}
		}

		cursor = page.NextCursor
		if cursor == "" {
			break
		}
	}

	_ = bar.Finish()
	fmt.Printf("\nAuto-categorized %d transactions, %d with suggestions\n", matched, suggested)
	return nil
}

func runCategoriesList(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	categories, err := store.GetCategoriesForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, c := range categories {
		fmt.Printf("%-20s %-20s patterns=%d linked-partners=%d\n",
			c.TemplateSlug, c.Name, len(c.LearnedPatterns), len(c.MatchedPartnerIDs))
	}
	return nil
}
