package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dstaley/gatebot/pkg/blob"
	"github.com/dstaley/gatebot/pkg/domain"
)

// DefaultHistoryLimit bounds how many past messages are replayed into context
// on each cycle, capping cold-start memory and agent context size.
const DefaultHistoryLimit = 50

// Store loads and saves session records and their append-only logs.
//
// Appends are not arbitrated between concurrent writers on the same key; the
// orchestrator guarantees at most one writer per key during an execution
// cycle via its lease.
type Store struct {
	blobs blob.Store
}

// NewStore creates a Store backed by the given object store.
func NewStore(blobs blob.Store) *Store {
	return &Store{blobs: blobs}
}

// LoadSession returns the session's metadata record. A session that has never
// been written is an empty record, not an error; only transport failures are
// surfaced, wrapped as domain.ErrStorageUnavailable.
func (s *Store) LoadSession(ctx context.Context, key Key) (*domain.SessionRecord, error) {
	data, err := s.blobs.Get(ctx, key.RecordPath())
	if errors.Is(err, blob.ErrNotFound) {
		return &domain.SessionRecord{
			SessionKey: key.String(),
			Metadata:   map[string]any{},
		}, nil
	}
	if err != nil {
		return nil, unavailable("load session "+key.String(), err)
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	return &rec, nil
}

// SaveSession overwrites the session's metadata record as a whole document.
// Last writer wins; there is no merge.
func (s *Store) SaveSession(ctx context.Context, key Key, rec *domain.SessionRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}
	if err := s.blobs.Put(ctx, key.RecordPath(), data); err != nil {
		return unavailable("save session "+key.String(), err)
	}
	return nil
}

// AppendChatMessages appends messages to the session's chat log in the given
// order. The log is never reordered or rewritten, only extended.
func (s *Store) AppendChatMessages(ctx context.Context, key Key, msgs []domain.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	lines := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode chat message %s: %w", m.ID, err)
		}
		lines = append(lines, data)
	}
	return s.appendLines(ctx, key.ChatHistoryPath(), lines)
}

// LoadChatHistory returns the most recent limit messages in chronological
// order. If fewer exist, all are returned; a missing log is an empty history.
// limit values <= 0 fall back to DefaultHistoryLimit.
func (s *Store) LoadChatHistory(ctx context.Context, key Key, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	lines, err := s.readLines(ctx, key.ChatHistoryPath())
	if err != nil {
		return nil, err
	}

	var msgs []domain.ChatMessage
	for _, line := range lines {
		var m domain.ChatMessage
		if err := json.Unmarshal(line, &m); err != nil {
			slog.Warn("Skipping malformed chat history line", "key", key, "error", err)
			continue
		}
		msgs = append(msgs, m)
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// AppendActions appends records to the session's action log.
func (s *Store) AppendActions(ctx context.Context, key Key, records []domain.ActionRecord) error {
	if len(records) == 0 {
		return nil
	}
	lines := make([][]byte, 0, len(records))
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode action %s: %w", r.ID, err)
		}
		lines = append(lines, data)
	}
	return s.appendLines(ctx, key.ActionsPath(), lines)
}

// LoadActions returns the most recent limit action records in chronological
// order, with the same bounded-read contract as LoadChatHistory.
func (s *Store) LoadActions(ctx context.Context, key Key, limit int) ([]domain.ActionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	lines, err := s.readLines(ctx, key.ActionsPath())
	if err != nil {
		return nil, err
	}

	var records []domain.ActionRecord
	for _, line := range lines {
		var r domain.ActionRecord
		if err := json.Unmarshal(line, &r); err != nil {
			slog.Warn("Skipping malformed action line", "key", key, "error", err)
			continue
		}
		records = append(records, r)
	}
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// appendLines extends a JSONL object by rewriting it with the new lines at the
// end. The object store has no append primitive, so this is a read-modify-
// write of the whole object, safe under the one-writer-per-key guarantee.
func (s *Store) appendLines(ctx context.Context, path string, lines [][]byte) error {
	existing, err := s.blobs.Get(ctx, path)
	if err != nil && !errors.Is(err, blob.ErrNotFound) {
		return unavailable("read "+path, err)
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if err := s.blobs.Put(ctx, path, buf.Bytes()); err != nil {
		return unavailable("append "+path, err)
	}
	return nil
}

func (s *Store) readLines(ctx context.Context, path string) ([][]byte, error) {
	data, err := s.blobs.Get(ctx, path)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("read "+path, err)
	}

	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}
