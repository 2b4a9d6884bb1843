package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dstaley/gatebot/pkg/blob"
	"github.com/dstaley/gatebot/pkg/domain"
	"github.com/dstaley/gatebot/pkg/session"
)

const testKey = session.Key("telegram:123")

func writeLocal(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readLocal(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestPushPullRoundTrip(t *testing.T) {
	mem := blob.NewMem()
	s := NewSynchronizer(mem)
	ctx := context.Background()

	src := t.TempDir()
	writeLocal(t, src, "a.txt", "hello")
	writeLocal(t, src, "nested/dir/b.txt", "world")

	pushed, err := s.Push(ctx, testKey, src)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if pushed != 2 {
		t.Errorf("pushed = %d, want 2", pushed)
	}

	// A fresh ephemeral root, as after a cold start.
	dst := t.TempDir()
	pulled, err := s.Pull(ctx, testKey, dst)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if pulled != 2 {
		t.Errorf("pulled = %d, want 2", pulled)
	}
	if got := readLocal(t, dst, "a.txt"); got != "hello" {
		t.Errorf("a.txt = %q, want %q", got, "hello")
	}
	if got := readLocal(t, dst, "nested/dir/b.txt"); got != "world" {
		t.Errorf("nested/dir/b.txt = %q, want %q", got, "world")
	}
}

func TestPullIdempotent(t *testing.T) {
	mem := blob.NewMem()
	s := NewSynchronizer(mem)
	ctx := context.Background()

	src := t.TempDir()
	writeLocal(t, src, "a.txt", "hello")
	if _, err := s.Push(ctx, testKey, src); err != nil {
		t.Fatalf("Push: %v", err)
	}

	dst := t.TempDir()
	if _, err := s.Pull(ctx, testKey, dst); err != nil {
		t.Fatalf("first Pull: %v", err)
	}
	if _, err := s.Pull(ctx, testKey, dst); err != nil {
		t.Fatalf("second Pull: %v", err)
	}
	if got := readLocal(t, dst, "a.txt"); got != "hello" {
		t.Errorf("a.txt = %q, want %q", got, "hello")
	}
}

func TestPullLeavesLocalExtras(t *testing.T) {
	mem := blob.NewMem()
	s := NewSynchronizer(mem)
	ctx := context.Background()

	src := t.TempDir()
	writeLocal(t, src, "remote.txt", "from storage")
	if _, err := s.Push(ctx, testKey, src); err != nil {
		t.Fatalf("Push: %v", err)
	}

	dst := t.TempDir()
	writeLocal(t, dst, "local-only.txt", "scratch")
	if _, err := s.Pull(ctx, testKey, dst); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if got := readLocal(t, dst, "local-only.txt"); got != "scratch" {
		t.Errorf("local-only.txt = %q, pull must not touch local extras", got)
	}
	if got := readLocal(t, dst, "remote.txt"); got != "from storage" {
		t.Errorf("remote.txt = %q", got)
	}
}

func TestPushDoesNotPropagateDeletes(t *testing.T) {
	mem := blob.NewMem()
	s := NewSynchronizer(mem)
	ctx := context.Background()

	src := t.TempDir()
	writeLocal(t, src, "keep.txt", "v1")
	writeLocal(t, src, "gone.txt", "v1")
	if _, err := s.Push(ctx, testKey, src); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if err := os.Remove(filepath.Join(src, "gone.txt")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Push(ctx, testKey, src); err != nil {
		t.Fatalf("second Push: %v", err)
	}

	if _, err := mem.Get(ctx, testKey.FilesPrefix()+"gone.txt"); err != nil {
		t.Errorf("gone.txt removed remotely: %v; deletions must not propagate", err)
	}
}

func TestPushPartialFailure(t *testing.T) {
	mem := blob.NewMem()
	s := NewSynchronizer(mem)
	ctx := context.Background()

	src := t.TempDir()
	writeLocal(t, src, "a.txt", "ok")
	writeLocal(t, src, "b.txt", "doomed")
	mem.Fail[testKey.FilesPrefix()+"b.txt"] = fmt.Errorf("quota exceeded")

	pushed, err := s.Push(ctx, testKey, src)
	var partial *domain.PartialSyncError
	if !errors.As(err, &partial) {
		t.Fatalf("err = %v, want PartialSyncError", err)
	}
	if partial.Op != "push" {
		t.Errorf("Op = %q, want push", partial.Op)
	}
	if len(partial.Failed) != 1 || partial.Failed[0] != "b.txt" {
		t.Errorf("Failed = %v, want [b.txt]", partial.Failed)
	}
	if pushed != 1 {
		t.Errorf("pushed = %d, want 1", pushed)
	}

	// a.txt still landed.
	if _, err := mem.Get(ctx, testKey.FilesPrefix()+"a.txt"); err != nil {
		t.Errorf("a.txt not pushed: %v", err)
	}
}

func TestPullPartialFailure(t *testing.T) {
	mem := blob.NewMem()
	s := NewSynchronizer(mem)
	ctx := context.Background()

	src := t.TempDir()
	writeLocal(t, src, "a.txt", "ok")
	writeLocal(t, src, "b.txt", "doomed")
	if _, err := s.Push(ctx, testKey, src); err != nil {
		t.Fatalf("Push: %v", err)
	}
	mem.Fail[testKey.FilesPrefix()+"b.txt"] = fmt.Errorf("read timeout")

	dst := t.TempDir()
	pulled, err := s.Pull(ctx, testKey, dst)
	var partial *domain.PartialSyncError
	if !errors.As(err, &partial) {
		t.Fatalf("err = %v, want PartialSyncError", err)
	}
	if partial.Op != "pull" {
		t.Errorf("Op = %q, want pull", partial.Op)
	}
	if len(partial.Failed) != 1 || partial.Failed[0] != "b.txt" {
		t.Errorf("Failed = %v, want [b.txt]", partial.Failed)
	}
	if pulled != 1 {
		t.Errorf("pulled = %d, want 1", pulled)
	}
	// Best effort: the healthy file landed anyway.
	if got := readLocal(t, dst, "a.txt"); got != "ok" {
		t.Errorf("a.txt = %q", got)
	}
}

func TestPullEmptyNamespace(t *testing.T) {
	s := NewSynchronizer(blob.NewMem())

	pulled, err := s.Pull(context.Background(), testKey, t.TempDir())
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if pulled != 0 {
		t.Errorf("pulled = %d, want 0", pulled)
	}
}

func TestPullStorageDown(t *testing.T) {
	mem := blob.NewMem()
	mem.Down = fmt.Errorf("connection refused")
	s := NewSynchronizer(mem)

	_, err := s.Pull(context.Background(), testKey, t.TempDir())
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestPushMissingRoot(t *testing.T) {
	s := NewSynchronizer(blob.NewMem())

	pushed, err := s.Push(context.Background(), testKey, filepath.Join(t.TempDir(), "never-created"))
	if err != nil {
		t.Fatalf("Push on missing root: %v", err)
	}
	if pushed != 0 {
		t.Errorf("pushed = %d, want 0", pushed)
	}
}
