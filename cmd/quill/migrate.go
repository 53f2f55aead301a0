package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillbooks/quill/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.
Safe to run repeatedly; already-applied migrations are skipped.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	// initStorage migrates as part of opening the database.
	store, err := initStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	fmt.Printf("Database schema is at version %d\n", storage.ExpectedSchemaVersion)
	return nil
}
