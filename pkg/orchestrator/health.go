package orchestrator

import (
	"context"
	"os"

	"github.com/dstaley/gatebot/pkg/session"
)

// Health reports whether each storage-facing component is functional.
type Health struct {
	StorageReachable bool `json:"storage_reachable"`
	SessionStore     bool `json:"session_store"`
	Workspace        bool `json:"workspace"`
}

// Healthy reports whether every check passed.
func (h Health) Healthy() bool {
	return h.StorageReachable && h.SessionStore && h.Workspace
}

// probeKey is a reserved session key that never corresponds to a real
// conversation; health probes read under it without touching user state.
const probeKey = session.Key("health:probe")

// CheckHealth probes the object store, the session store, and the workspace
// synchronizer with cheap read-only operations.
func (o *Orchestrator) CheckHealth(ctx context.Context) Health {
	var h Health

	if _, err := o.blobs.List(ctx, probeKey.BasePath()+"/"); err == nil {
		h.StorageReachable = true
	}
	if _, err := o.sessions.LoadSession(ctx, probeKey); err == nil {
		h.SessionStore = true
	}
	if dir, err := os.MkdirTemp("", "gatebot-health-"); err == nil {
		defer os.RemoveAll(dir)
		if _, err := o.files.Pull(ctx, probeKey, dir); err == nil {
			h.Workspace = true
		}
	}
	return h
}
