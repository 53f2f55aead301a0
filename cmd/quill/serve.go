package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quillbooks/quill/internal/common"
	"github.com/quillbooks/quill/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP matching API",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr := viper.GetString("server.addr")
	if addr == "" {
		return fmt.Errorf("server.addr: %w", common.ErrMissingConfig)
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	srv := server.New(newEngine(store), store, slog.Default())

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down HTTP server")
		_ = srv.Shutdown()
	}()

	return srv.Listen(addr)
}
