package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/archive"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/matcher"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/storage/sqlite"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/logger"
)

type QAHandler struct {
	matcher *matcher.Matcher
	archive *archive.Archive
	store   *sqlite.Client
}

func NewQAHandler(m *matcher.Matcher, a *archive.Archive, store *sqlite.Client) *QAHandler {
	return &QAHandler{
		matcher: m,
		archive: a,
		store:   store,
	}
}

func (h *QAHandler) HandleSearch(c *fiber.Ctx) error {
	var req struct {
		Question  string  `json:"question"`
		Channel   string  `json:"channel"`
		Threshold float64 `json:"threshold"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}
	if req.Channel == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Channel is required",
		})
	}

	if req.Threshold < 0 || req.Threshold > 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "threshold must be within [0, 1]",
		})
	}

	result := h.matcher.Search(c.Context(), req.Question, req.Channel, req.Threshold)

	return c.JSON(result)
}

func (h *QAHandler) GetHistory(c *fiber.Ctx) error {
	channel := c.Query("channel")
	if channel == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "channel is required",
		})
	}

	limit := h.archive.MaxHistory()
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		if parsed < limit {
			limit = parsed
		}
	}

	entries := h.archive.QAHistory(c.Context(), channel, limit)

	return c.JSON(fiber.Map{
		"channel": channel,
		"count":   len(entries),
		"entries": entries,
	})
}

func (h *QAHandler) GetStats(c *fiber.Ctx) error {
	channel := c.Query("channel")
	if channel == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "channel is required",
		})
	}

	return c.JSON(h.archive.Stats(c.Context(), channel))
}

func (h *QAHandler) GetAnswers(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Answer history is not enabled",
		})
	}

	channel := c.Query("channel")
	if channel == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "channel is required",
		})
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	records, err := h.store.ListRecentAnswers(channel, limit)
	if err != nil {
		logger.Error("Failed to list answer history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list answer history",
		})
	}

	return c.JSON(fiber.Map{
		"channel": channel,
		"count":   len(records),
		"answers": records,
	})
}

func (h *QAHandler) Invalidate(c *fiber.Ctx) error {
	channel := c.Params("channel")
	if channel == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "channel is required",
		})
	}

	h.archive.Invalidate(c.Context(), channel)

	return c.JSON(fiber.Map{
		"channel":     channel,
		"invalidated": true,
	})
}
