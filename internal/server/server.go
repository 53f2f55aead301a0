// Package server exposes the matching engine over HTTP for the web app and
// background workers.
package server

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/quillbooks/quill/internal/common"
	"github.com/quillbooks/quill/internal/engine"
	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/service"
)

// Server wraps the fiber app and its dependencies.
type Server struct {
	app    *fiber.App
	engine *engine.Engine
	store  service.Storage
	logger *slog.Logger
}

// New creates the HTTP server and registers all routes.
func New(eng *engine.Engine, store service.Storage, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "quill",
			DisableStartupMessage: true,
		}),
		engine: eng,
		store:  store,
		logger: logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.handleHealth)
	v1 := s.app.Group("/v1")
	v1.Post("/score-files", s.handleScoreFiles)
	v1.Post("/patterns/apply", s.handleApplyPatterns)
	v1.Post("/counterparty/refresh", s.handleRefreshCounterparty)
}

// Listen blocks serving HTTP until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("HTTP server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

type scoreFilesRequest struct {
	TransactionID string   `json:"transactionId"`
	FileIDs       []string `json:"fileIds"`
}

// handleScoreFiles scores candidate files against one transaction and
// returns them ranked. Unknown file IDs are skipped, not errors.
func (s *Server) handleScoreFiles(c *fiber.Ctx) error {
	var req scoreFilesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.TransactionID == "" {
		return badRequest(c, "transactionId is required")
	}

	ctx := c.UserContext()
	txn, err := s.store.GetTransactionByID(ctx, req.TransactionID)
	if err != nil {
		return s.storageError(c, err)
	}

	var partner *model.Partner
	if txn.HasPartner() {
		partner, err = s.store.GetPartnerByID(ctx, txn.PartnerID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return s.storageError(c, err)
		}
	}

	files := make([]model.File, 0, len(req.FileIDs))
	for _, id := range req.FileIDs {
		file, err := s.store.GetFileByID(ctx, id)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return s.storageError(c, err)
		}
		files = append(files, *file)
	}

	scored := s.engine.ScoreAttachments(files, txn, partner)
	return c.JSON(fiber.Map{"results": scored})
}

type applyPatternsRequest struct {
	UserID string `json:"userId"`
	Cursor string `json:"cursor"`
}

// handleApplyPatterns runs one bounded bulk reapplication pass and returns
// its counters plus the resume cursor.
func (s *Server) handleApplyPatterns(c *fiber.Ctx) error {
	var req applyPatternsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "userId is required")
	}

	result, err := s.engine.ReapplyPatterns(c.UserContext(), req.UserID, req.Cursor)
	if err != nil {
		return s.storageError(c, err)
	}
	return c.JSON(fiber.Map{
		"processed":    result.Processed,
		"matched":      result.Matched,
		"suggested":    result.Suggested,
		"failed":       result.Failed,
		"resumeCursor": result.ResumeCursor,
	})
}

type refreshCounterpartyRequest struct {
	UserID string `json:"userId"`
}

// handleRefreshCounterparty re-resolves invoice direction for the user's
// extracted files, e.g. after an identity change.
func (s *Server) handleRefreshCounterparty(c *fiber.Ctx) error {
	var req refreshCounterpartyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "userId is required")
	}

	effects := []engine.Effect{{Kind: engine.EffectReevaluateCounterparty, UserID: req.UserID}}
	if err := s.engine.ApplyEffects(c.UserContext(), effects); err != nil {
		return s.storageError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func (s *Server) storageError(c *fiber.Ctx, err error) error {
	if errors.Is(err, common.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	s.logger.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
