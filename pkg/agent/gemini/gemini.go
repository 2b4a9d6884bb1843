// Package gemini implements agent.Runner on the Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/dstaley/gatebot/pkg/agent"
	"github.com/dstaley/gatebot/pkg/domain"
)

const systemInstructions = `You are a personal assistant reachable over chat.
Be concise. Your working files persist between conversations; when the user
refers to earlier notes or drafts, they are listed below if any exist.`

// Runner implements agent.Runner using the Gemini chat API with the session's
// replayed history as conversation context.
type Runner struct {
	client *genai.Client
	model  string
}

// Verify interface compliance.
var _ agent.Runner = (*Runner)(nil)

// New creates a Runner for the given model.
func New(ctx context.Context, apiKey, model string) (*Runner, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Runner{client: client, model: model}, nil
}

// Close releases the underlying client.
func (r *Runner) Close() error { return r.client.Close() }

// Run sends the prompt with the replayed history and returns the model's
// reply. It records a single model_call action.
func (r *Runner) Run(ctx context.Context, req agent.Request) (agent.Result, error) {
	slog.Debug("Gemini run", "key", req.Key, "model", r.model, "historyLen", len(req.History))

	gm := r.client.GenerativeModel(r.model)
	gm.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(buildInstructions(req.WorkspaceDir))},
	}

	cs := gm.StartChat()
	cs.History = historyToContents(req.History)

	resp, err := cs.SendMessage(ctx, genai.Text(req.Prompt))
	if err != nil {
		return agent.Result{}, fmt.Errorf("gemini generate: %w", err)
	}

	reply := responseText(resp)
	return agent.Result{
		Reply: reply,
		Actions: []domain.ActionRecord{{
			ID:        uuid.NewString(),
			Type:      domain.ActionModelCall,
			Timestamp: time.Now().UTC(),
			Data: map[string]any{
				"model":        r.model,
				"prompt_chars": len(req.Prompt),
				"reply_chars":  len(reply),
			},
		}},
	}, nil
}

func buildInstructions(workspaceDir string) string {
	var b strings.Builder
	b.WriteString(systemInstructions)

	var files []string
	filepath.WalkDir(workspaceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if rel, relErr := filepath.Rel(workspaceDir, p); relErr == nil {
				files = append(files, filepath.ToSlash(rel))
			}
		}
		return nil
	})
	if len(files) > 0 {
		b.WriteString("\n\nWorking files:\n")
		for _, f := range files {
			b.WriteString("- " + f + "\n")
		}
	}
	return b.String()
}

func historyToContents(history []domain.ChatMessage) []*genai.Content {
	var contents []*genai.Content
	for _, m := range history {
		var role string
		switch m.Role {
		case domain.RoleUser:
			role = "user"
		case domain.RoleAssistant:
			role = "model"
		default:
			continue
		}
		if m.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}
