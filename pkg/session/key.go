// Package session manages per-conversation state in the object store: a
// metadata record, an append-only chat history, and an append-only action log.
package session

import (
	"fmt"
	"strings"

	"github.com/dstaley/gatebot/pkg/domain"
)

// Key is the stable partition identifier for one logical conversation,
// rendered as "channel:conversation" (e.g. "telegram:123456789"). All storage
// for a conversation lives under the key's base path.
type Key string

// Resolve derives the session key for an inbound conversation identifier.
// The mapping is deterministic: whitespace is trimmed and the channel is
// lowercased, so protocol-equivalent spellings of the same identifier yield
// the same key. A missing component is a structural error and returns
// domain.ErrInvalidIdentifier; there is no default key.
func Resolve(channel, conversationID string) (Key, error) {
	channel = strings.ToLower(strings.TrimSpace(channel))
	conversationID = strings.TrimSpace(conversationID)
	if channel == "" {
		return "", fmt.Errorf("%w: missing channel", domain.ErrInvalidIdentifier)
	}
	if conversationID == "" {
		return "", fmt.Errorf("%w: missing conversation id", domain.ErrInvalidIdentifier)
	}
	return Key(channel + ":" + conversationID), nil
}

func (k Key) String() string { return string(k) }

// Safe returns the key with path-hostile characters replaced, suitable for use
// as a storage path segment or directory name.
func (k Key) Safe() string {
	return strings.ReplaceAll(string(k), ":", "_")
}

// BasePath returns the object-store prefix holding all of this session's
// state: sessions/{key}.
func (k Key) BasePath() string {
	return "sessions/" + k.Safe()
}

// RecordPath returns the path of the session's metadata document.
func (k Key) RecordPath() string { return k.BasePath() + "/session.json" }

// ChatHistoryPath returns the path of the session's chat log.
func (k Key) ChatHistoryPath() string { return k.BasePath() + "/chat_history.jsonl" }

// ActionsPath returns the path of the session's agent action log.
func (k Key) ActionsPath() string { return k.BasePath() + "/agent_actions.jsonl" }

// FilesPrefix returns the prefix under which workspace files are stored.
func (k Key) FilesPrefix() string { return k.BasePath() + "/files/" }

// LeasePath returns the path of the session's lease object.
func (k Key) LeasePath() string { return k.BasePath() + "/.lease" }
