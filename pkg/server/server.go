// Package server is the HTTP front door: it parses Telegram webhook updates,
// enforces the allow-list, runs the orchestrator cycle, and sends replies.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dstaley/gatebot/pkg/orchestrator"
)

// Gateway runs execution cycles on behalf of the front door.
type Gateway interface {
	HandleMessage(ctx context.Context, in orchestrator.Inbound) (*orchestrator.Outcome, error)
	CheckHealth(ctx context.Context) orchestrator.Health
}

// Sender delivers outbound messages. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Server serves the webhook and health endpoints.
type Server struct {
	gateway Gateway
	sender  Sender
	allowed map[string]bool
	srv     *http.Server
}

// New creates a Server. An empty allowedUsers list admits everyone; the
// config layer rejects that before we get here.
func New(gateway Gateway, sender Sender, allowedUsers []string) *Server {
	allowed := make(map[string]bool, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = true
	}
	return &Server{
		gateway: gateway,
		sender:  sender,
		allowed: allowed,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("Starting webhook server", "addr", addr)
	return s.srv.ListenAndServe()
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/webhook/telegram", s.handleTelegramWebhook)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return mux
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
