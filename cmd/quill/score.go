package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillbooks/quill/internal/common"
	"github.com/quillbooks/quill/internal/model"
)

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score [transaction-id] [file-id...]",
		Short: "Score candidate files against a transaction",
		Long: `Print ranked attachment scores for the given files, with the
reasons each signal contributed. Purely informational; nothing is
written.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runScore,
	}
	return cmd
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	txn, err := store.GetTransactionByID(ctx, args[0])
	if err != nil {
		return err
	}

	var partner *model.Partner
	if txn.HasPartner() {
		partner, err = store.GetPartnerByID(ctx, txn.PartnerID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
	}

	files := make([]model.File, 0, len(args)-1)
	for _, id := range args[1:] {
		file, err := store.GetFileByID(ctx, id)
		if err != nil {
			return err
		}
		files = append(files, *file)
	}

	for _, scored := range newEngine(store).ScoreAttachments(files, txn, partner) {
		label := scored.Label
		if label == "" {
			label = "-"
		}
		fmt.Printf("%-36s %3d %-7s %v\n", scored.Key, scored.Score, label, scored.Reasons)
	}
	return nil
}
