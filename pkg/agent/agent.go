// Package agent defines the execution collaborator the orchestrator hands
// control to between pull and push.
package agent

import (
	"context"

	"github.com/dstaley/gatebot/pkg/domain"
	"github.com/dstaley/gatebot/pkg/session"
)

// Request carries the state loaded for one execution cycle.
type Request struct {
	// Key identifies the session being executed.
	Key session.Key

	// Prompt is the inbound user message.
	Prompt string

	// Record is the session's metadata record.
	Record *domain.SessionRecord

	// History is the bounded replay window of prior messages, oldest first.
	// It does not include Prompt.
	History []domain.ChatMessage

	// WorkspaceDir is the local scratch directory, populated from remote
	// storage before the run and pushed back after it.
	WorkspaceDir string
}

// Result is what one execution produced.
type Result struct {
	// Reply is the text to send back to the user. May be empty.
	Reply string

	// Actions are records of side effects taken during the run.
	Actions []domain.ActionRecord
}

// Runner executes one unit of agent work. Implementations may mutate files
// under Request.WorkspaceDir; everything there when the run returns is
// persisted. A Runner returning an error does not prevent persistence of
// whatever partial state exists.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}
