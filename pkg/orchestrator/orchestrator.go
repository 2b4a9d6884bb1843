// Package orchestrator sequences one execution cycle per inbound message:
// pull session state and workspace files, hand control to the agent, push
// everything back. It owns the consistency contract between the ephemeral
// instance and the object store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dstaley/gatebot/pkg/agent"
	"github.com/dstaley/gatebot/pkg/blob"
	"github.com/dstaley/gatebot/pkg/domain"
	"github.com/dstaley/gatebot/pkg/session"
	"github.com/dstaley/gatebot/pkg/workspace"
)

// Options tune an Orchestrator. Zero values get sensible defaults.
type Options struct {
	// WorkspaceRoot is the local directory under which per-session scratch
	// directories are created. Defaults to os.TempDir()/gatebot.
	WorkspaceRoot string

	// HistoryLimit bounds the chat replay window. Defaults to
	// session.DefaultHistoryLimit.
	HistoryLimit int

	// LeaseTTL is how long a cycle may hold a session before a competing
	// cycle is allowed to break the lease. Defaults to 5 minutes.
	LeaseTTL time.Duration

	// PushTimeout bounds the push stage, which runs detached from the
	// request context so cancellation cannot abandon partial work.
	// Defaults to 30 seconds.
	PushTimeout time.Duration
}

// Orchestrator runs execution cycles. It does not arbitrate concurrent cycles
// beyond the per-key lease: within one cycle it is the sole writer for the key.
type Orchestrator struct {
	blobs    blob.Store
	sessions *session.Store
	files    *workspace.Synchronizer
	runner   agent.Runner
	opts     Options
	owner    string
}

// New creates an Orchestrator.
func New(blobs blob.Store, sessions *session.Store, files *workspace.Synchronizer, runner agent.Runner, opts Options) *Orchestrator {
	if opts.WorkspaceRoot == "" {
		opts.WorkspaceRoot = filepath.Join(os.TempDir(), "gatebot")
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = session.DefaultHistoryLimit
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 5 * time.Minute
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = 30 * time.Second
	}
	return &Orchestrator{
		blobs:    blobs,
		sessions: sessions,
		files:    files,
		runner:   runner,
		opts:     opts,
		owner:    uuid.NewString(),
	}
}

// Inbound is one unit of work from the front door.
type Inbound struct {
	// Channel names the messaging channel (e.g. "telegram").
	Channel string
	// ConversationID identifies the conversation within the channel.
	ConversationID string
	// UserID identifies the sender.
	UserID string
	// Text is the message content.
	Text string
	// Metadata is attached to the persisted user message.
	Metadata map[string]any
}

// Outcome is what a completed (or partially completed) cycle produced.
type Outcome struct {
	Key         session.Key
	Reply       string
	PulledFiles int
	PushedFiles int
}

// HandleMessage runs one execution cycle to completion.
//
// A fatal error while pulling aborts before the agent runs: the agent is
// never executed against unknown state when the store is unreachable, as
// opposed to merely empty, which is valid. An agent error or cancellation
// does not skip the push stage; partial progress is persisted. A push-stage
// failure is returned as a *domain.PersistenceError alongside a non-nil
// Outcome carrying the agent's reply, so the caller can still deliver it
// while reporting that the work was not saved.
func (o *Orchestrator) HandleMessage(ctx context.Context, in Inbound) (*Outcome, error) {
	key, err := session.Resolve(in.Channel, in.ConversationID)
	if err != nil {
		return nil, err
	}

	if err := o.acquireLease(ctx, key); err != nil {
		return nil, err
	}
	defer o.releaseLease(key)

	root := filepath.Join(o.opts.WorkspaceRoot, key.Safe())
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", root, err)
	}

	// Pulling. Metadata and files have no ordering constraint between them,
	// but both must complete before the agent runs.
	var (
		rec    *domain.SessionRecord
		hist   []domain.ChatMessage
		pulled int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if rec, err = o.sessions.LoadSession(gctx, key); err != nil {
			return err
		}
		hist, err = o.sessions.LoadChatHistory(gctx, key, o.opts.HistoryLimit)
		return err
	})
	g.Go(func() error {
		n, err := o.files.Pull(gctx, key, root)
		pulled = n
		var partial *domain.PartialSyncError
		if errors.As(err, &partial) {
			// Degraded but usable: the cycle proceeds with what landed.
			slog.Warn("Partial workspace pull", "key", key, "pulled", partial.Transferred, "failed", partial.Failed)
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Error("Pull stage failed", "key", key, "error", err)
		return nil, err
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.UserID = in.UserID

	userMsg := domain.ChatMessage{
		ID:        uuid.NewString(),
		Role:      domain.RoleUser,
		Content:   in.Text,
		Timestamp: now,
		Metadata:  in.Metadata,
	}

	// Executing. The agent's own failure does not skip the push stage: by
	// this point there may be partial output worth keeping.
	result, runErr := o.runner.Run(ctx, agent.Request{
		Key:          key,
		Prompt:       in.Text,
		Record:       rec,
		History:      hist,
		WorkspaceDir: root,
	})
	if runErr != nil {
		slog.Error("Agent execution failed", "key", key, "error", runErr)
	}

	// Pushing. Detached from the request context so a cancelled or timed-out
	// execution cannot abandon the cycle's state.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PushTimeout)
	defer cancel()

	pushed, persistErr := o.persist(pushCtx, key, root, rec, userMsg, result)

	out := &Outcome{
		Key:         key,
		Reply:       result.Reply,
		PulledFiles: pulled,
		PushedFiles: pushed,
	}

	if persistErr != nil {
		slog.Error("Push stage failed", "key", key, "error", persistErr)
		return out, &domain.PersistenceError{Key: key.String(), Err: persistErr}
	}
	if runErr != nil {
		return out, fmt.Errorf("agent execution: %w", runErr)
	}
	return out, nil
}

// persist writes the cycle's state back: chat messages, the session record,
// action records, and workspace files. Every failure is collected rather than
// short-circuiting, so one bad step does not block the others.
func (o *Orchestrator) persist(ctx context.Context, key session.Key, root string, rec *domain.SessionRecord, userMsg domain.ChatMessage, result agent.Result) (int, error) {
	msgs := []domain.ChatMessage{userMsg}
	if result.Reply != "" {
		msgs = append(msgs, domain.ChatMessage{
			ID:        uuid.NewString(),
			Role:      domain.RoleAssistant,
			Content:   result.Reply,
			Timestamp: time.Now().UTC(),
		})
	}

	var errs []error
	if err := o.sessions.AppendChatMessages(ctx, key, msgs); err != nil {
		errs = append(errs, err)
	}
	if err := o.sessions.SaveSession(ctx, key, rec); err != nil {
		errs = append(errs, err)
	}

	actions := result.Actions
	if n := countFiles(root); n > 0 {
		actions = append(actions, domain.ActionRecord{
			ID:        uuid.NewString(),
			Type:      domain.ActionFileOperation,
			Timestamp: time.Now().UTC(),
			Data: map[string]any{
				"files_count": n,
				"workspace":   root,
			},
		})
	}
	if err := o.sessions.AppendActions(ctx, key, actions); err != nil {
		errs = append(errs, err)
	}

	pushed, err := o.pushWithRetry(ctx, key, root)
	if err != nil {
		errs = append(errs, err)
	}

	return pushed, errors.Join(errs...)
}

// pushWithRetry pushes the workspace, retrying once after a short backoff.
// One retry bounds the cycle; platform-level retries re-attempt the rest.
func (o *Orchestrator) pushWithRetry(ctx context.Context, key session.Key, root string) (int, error) {
	pushed, err := o.files.Push(ctx, key, root)
	if err == nil {
		return pushed, nil
	}
	slog.Warn("Workspace push failed, retrying", "key", key, "error", err)

	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
		return pushed, err
	}

	retried, retryErr := o.files.Push(ctx, key, root)
	if retryErr == nil {
		return retried, nil
	}
	return retried, retryErr
}

func countFiles(root string) int {
	n := 0
	filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err == nil && d.Type().IsRegular() {
			n++
		}
		return nil
	})
	return n
}
