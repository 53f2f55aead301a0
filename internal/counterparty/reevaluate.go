package counterparty

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quillbooks/quill/internal/service"
)

// Re-evaluation bounds. One run touches at most MaxFilesPerRun files; the
// returned cursor resumes the scan where it stopped.
const (
	PageSize       = 100
	MaxFilesPerRun = 500
)

// Result reports one re-evaluation run.
type Result struct {
	ResumeCursor string
	Processed    int
	Updated      int
	Failed       int
}

// Reevaluate re-runs the resolver over the user's extraction-complete
// files, in stable cursor pages, writing direction and counterparty fields
// only when they actually changed. Triggered whenever the user's identity
// data changes. A single bad file is logged and skipped, never aborts the
// scan.
func Reevaluate(ctx context.Context, store service.Storage, userID, cursor string, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	user, err := store.GetUserData(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user data: %w", err)
	}

	result := &Result{}
	for {
		if err := ctx.Err(); err != nil {
			result.ResumeCursor = cursor
			return result, nil
		}

		page, err := store.GetExtractedFilesPage(ctx, userID, cursor, PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load files page: %w", err)
		}

		for i := range page.Files {
			file := &page.Files[i]
			result.Processed++

			res := Resolve(file.ExtractedIssuer, file.ExtractedRecipient, user)
			update := service.CounterpartyUpdate{
				Direction:          res.Direction,
				MatchedUserAccount: res.MatchedUserAccount,
				CounterpartyName:   res.Counterparty.Name,
			}
			changed, err := store.UpdateFileCounterparty(ctx, file.ID, update)
			if err != nil {
				result.Failed++
				logger.Warn("counterparty update failed", "file", file.ID, "error", err)
				continue
			}
			if changed {
				result.Updated++
			}
		}

		cursor = page.NextCursor
		if cursor == "" {
			return result, nil
		}
		if result.Processed >= MaxFilesPerRun {
			result.ResumeCursor = cursor
			return result, nil
		}
	}
}
