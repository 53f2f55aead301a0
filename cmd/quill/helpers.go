package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/quillbooks/quill/internal/common"
	"github.com/quillbooks/quill/internal/currency"
	"github.com/quillbooks/quill/internal/engine"
	"github.com/quillbooks/quill/internal/score"
	"github.com/quillbooks/quill/internal/storage"
)

// initStorage opens the database and brings the schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".local", "share", "quill", "quill.db")
	}
	dbPath = expandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("could not open the database at %s", dbPath), err)
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// newEngine wires the matching engine from configuration: thresholds come
// from matching.*, currency rates from currency.rates.
func newEngine(store *storage.SQLiteStorage) *engine.Engine {
	return engine.New(store, loadRates(), loadThresholds(), nil)
}

func loadThresholds() score.Thresholds {
	th := score.DefaultThresholds()
	if v := viper.GetInt("matching.auto_apply"); v > 0 {
		th.AutoApply = v
	}
	if v := viper.GetInt("matching.strong"); v > 0 {
		th.Strong = v
	}
	if v := viper.GetInt("matching.likely"); v > 0 {
		th.Likely = v
	}
	if v := viper.GetInt("matching.date_window_days"); v > 0 {
		th.DateWindowDays = v
	}
	return th
}

func loadRates() *currency.Table {
	raw := viper.GetStringMap("currency.rates")
	if len(raw) == 0 {
		return currency.DefaultTable()
	}

	rates := make(map[string]map[string]float64, len(raw))
	for month := range raw {
		monthRates := viper.GetStringMap("currency.rates." + month)
		parsed := make(map[string]float64, len(monthRates))
		for code := range monthRates {
			parsed[strings.ToUpper(code)] = viper.GetFloat64("currency.rates." + month + "." + code)
		}
		rates[month] = parsed
	}
	return currency.NewTable(rates)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}
