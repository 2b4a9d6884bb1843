package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dstaley/gatebot/pkg/domain"
	"github.com/dstaley/gatebot/pkg/orchestrator"
)

// fallbackReply is sent when the agent produced no text at all.
const fallbackReply = "I received your message but couldn't generate a response."

// webhookResponse is the JSON body returned to the webhook caller. Internal
// failure detail stays in the logs; Error carries only a generic category.
type webhookResponse struct {
	OK       bool   `json:"ok"`
	Handled  bool   `json:"handled"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Error("Invalid webhook body", "error", err)
		s.jsonResponse(w, http.StatusBadRequest, webhookResponse{Error: "invalid JSON"})
		return
	}

	// Edited messages re-enter the conversation like new ones.
	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil || msg.From == nil || msg.Chat == nil {
		s.jsonResponse(w, http.StatusOK, webhookResponse{OK: true, Handled: false})
		return
	}

	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := msg.Chat.ID
	if len(s.allowed) > 0 && !s.allowed[userID] {
		slog.Warn("User not in allowed list", "user", userID)
		s.jsonResponse(w, http.StatusOK, webhookResponse{OK: true, Handled: false, Error: "user not allowed"})
		return
	}

	out, err := s.gateway.HandleMessage(r.Context(), orchestrator.Inbound{
		Channel:        "telegram",
		ConversationID: strconv.FormatInt(chatID, 10),
		UserID:         userID,
		Text:           msg.Text,
		Metadata: map[string]any{
			"telegram_message_id": msg.MessageID,
			"chat_type":           msg.Chat.Type,
		},
	})

	var perr *domain.PersistenceError
	switch {
	case errors.As(err, &perr):
		// The agent's work exists but was not saved. Deliver the reply
		// anyway and report the failure so the platform can retry the cycle.
		slog.Error("Cycle persistence failed", "key", perr.Key, "error", perr)
		if out != nil && out.Reply != "" {
			s.send(chatID, out.Reply)
		}
		s.jsonResponse(w, http.StatusOK, webhookResponse{Handled: true, Error: "persistence failure"})

	case errors.Is(err, domain.ErrSessionBusy):
		s.jsonResponse(w, http.StatusConflict, webhookResponse{Error: "session busy"})

	case errors.Is(err, domain.ErrInvalidIdentifier):
		s.jsonResponse(w, http.StatusBadRequest, webhookResponse{Error: "invalid identifier"})

	case errors.Is(err, domain.ErrStorageUnavailable):
		slog.Error("Cycle aborted, storage unavailable", "error", err)
		s.jsonResponse(w, http.StatusServiceUnavailable, webhookResponse{Error: "storage unavailable"})

	case err != nil:
		slog.Error("Cycle failed", "error", err)
		s.jsonResponse(w, http.StatusOK, webhookResponse{Handled: true, Error: "internal error"})

	default:
		reply := out.Reply
		if reply == "" {
			slog.Warn("No response generated", "key", out.Key)
			reply = fallbackReply
		}
		s.send(chatID, reply)
		s.jsonResponse(w, http.StatusOK, webhookResponse{OK: true, Handled: true, Response: reply})
	}
}

// send delivers a reply over the Bot API. Delivery failures are logged, not
// surfaced: the cycle is already persisted and Telegram retries the webhook
// on non-2xx, which would re-run it.
func (s *Server) send(chatID int64, text string) {
	if _, err := s.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Error("Failed to send Telegram reply", "chat", chatID, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.gateway.CheckHealth(r.Context())
	status := http.StatusOK
	state := "healthy"
	if !h.Healthy() {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	s.jsonResponse(w, status, map[string]any{
		"status": state,
		"checks": h,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"service": "gatebot",
		"status":  "running",
		"endpoints": map[string]string{
			"webhook": "/api/webhook/telegram",
			"health":  "/api/health",
		},
	})
}
