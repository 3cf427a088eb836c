package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/matcher"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/logger"
)

// WebSocketHandler serves interactive Q&A over a browser websocket, mirroring
// what the bot does in channels.
type WebSocketHandler struct {
	matcher *matcher.Matcher
}

func NewWebSocketHandler(m *matcher.Matcher) *WebSocketHandler {
	return &WebSocketHandler{matcher: m}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type     string `json:"type"`
			Question string `json:"question"`
			Channel  string `json:"channel"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "search" {
			continue
		}
		if msg.Question == "" || msg.Channel == "" {
			h.sendError(c, "question and channel are required")
			continue
		}

		h.send(c, map[string]interface{}{
			"type": "status",
			"text": "검색 중이에요 🔍",
		})

		result := h.matcher.Search(context.Background(), msg.Question, msg.Channel, 0)

		h.send(c, map[string]interface{}{
			"type":             "answer",
			"found":            result.Found,
			"answer":           result.Answer,
			"matched_question": result.MatchedQuestion,
			"similarity":       result.Similarity,
		})
	}
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg map[string]interface{}) {
	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("WebSocket write failed", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	h.send(c, map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
