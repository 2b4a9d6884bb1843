package session

import (
	"errors"
	"testing"

	"github.com/dstaley/gatebot/pkg/domain"
)

func TestResolve(t *testing.T) {
	key, err := Resolve("telegram", "123456789")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if key.String() != "telegram:123456789" {
		t.Errorf("key = %q, want %q", key, "telegram:123456789")
	}
}

func TestResolveNormalizes(t *testing.T) {
	a, err := Resolve("Telegram", "123")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := Resolve("  telegram ", " 123\n")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a != b {
		t.Errorf("equivalent identifiers resolved differently: %q vs %q", a, b)
	}
}

func TestResolveInvalid(t *testing.T) {
	for _, tc := range []struct{ channel, id string }{
		{"", "123"},
		{"telegram", ""},
		{"  ", "123"},
		{"telegram", "   "},
	} {
		if _, err := Resolve(tc.channel, tc.id); !errors.Is(err, domain.ErrInvalidIdentifier) {
			t.Errorf("Resolve(%q, %q) = %v, want ErrInvalidIdentifier", tc.channel, tc.id, err)
		}
	}
}

func TestKeyPaths(t *testing.T) {
	key := Key("telegram:123")
	if got, want := key.BasePath(), "sessions/telegram_123"; got != want {
		t.Errorf("BasePath = %q, want %q", got, want)
	}
	if got, want := key.RecordPath(), "sessions/telegram_123/session.json"; got != want {
		t.Errorf("RecordPath = %q, want %q", got, want)
	}
	if got, want := key.ChatHistoryPath(), "sessions/telegram_123/chat_history.jsonl"; got != want {
		t.Errorf("ChatHistoryPath = %q, want %q", got, want)
	}
	if got, want := key.ActionsPath(), "sessions/telegram_123/agent_actions.jsonl"; got != want {
		t.Errorf("ActionsPath = %q, want %q", got, want)
	}
	if got, want := key.FilesPrefix(), "sessions/telegram_123/files/"; got != want {
		t.Errorf("FilesPrefix = %q, want %q", got, want)
	}
}
