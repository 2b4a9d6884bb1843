package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dstaley/gatebot/pkg/blob"
	"github.com/dstaley/gatebot/pkg/domain"
	"github.com/dstaley/gatebot/pkg/session"
)

// leaseRecord is the conditional-create object that serializes cycles per key.
type leaseRecord struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// acquireLease claims exclusive write access to the session for one cycle.
// A live lease held by another cycle yields domain.ErrSessionBusy. A lease
// past its TTL is presumed orphaned by a dead instance and is broken.
func (o *Orchestrator) acquireLease(ctx context.Context, key session.Key) error {
	rec := leaseRecord{
		Owner:      o.owner,
		AcquiredAt: time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(o.opts.LeaseTTL),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode lease: %w", err)
	}

	path := key.LeasePath()
	err = o.blobs.PutIfAbsent(ctx, path, data)
	if err == nil {
		return nil
	}
	if !errors.Is(err, blob.ErrPreconditionFailed) {
		return fmt.Errorf("acquire lease %s: %w: %w", key, domain.ErrStorageUnavailable, err)
	}

	// Someone holds it. Break it only if we can read it and it has expired;
	// an unreadable lease must be presumed live.
	existing, getErr := o.blobs.Get(ctx, path)
	if errors.Is(getErr, blob.ErrNotFound) {
		// Released between our create attempt and the read.
		if err := o.blobs.PutIfAbsent(ctx, path, data); err != nil {
			if errors.Is(err, blob.ErrPreconditionFailed) {
				return fmt.Errorf("session %s: %w", key, domain.ErrSessionBusy)
			}
			return fmt.Errorf("acquire lease %s: %w: %w", key, domain.ErrStorageUnavailable, err)
		}
		return nil
	}
	if getErr != nil {
		return fmt.Errorf("read lease %s: %w: %w", key, domain.ErrStorageUnavailable, getErr)
	}
	var held leaseRecord
	if json.Unmarshal(existing, &held) == nil && time.Now().Before(held.ExpiresAt) {
		return fmt.Errorf("session %s held by %s: %w", key, held.Owner, domain.ErrSessionBusy)
	}

	slog.Warn("Breaking stale session lease", "key", key)
	if delErr := o.blobs.Delete(ctx, path); delErr != nil && !errors.Is(delErr, blob.ErrNotFound) {
		return fmt.Errorf("break lease %s: %w: %w", key, domain.ErrStorageUnavailable, delErr)
	}
	if err := o.blobs.PutIfAbsent(ctx, path, data); err != nil {
		if errors.Is(err, blob.ErrPreconditionFailed) {
			// Lost the race to another breaker.
			return fmt.Errorf("session %s: %w", key, domain.ErrSessionBusy)
		}
		return fmt.Errorf("acquire lease %s: %w: %w", key, domain.ErrStorageUnavailable, err)
	}
	return nil
}

// releaseLease removes the lease object, but only if this instance still owns
// it: a cycle that outlives the TTL has its lease broken and re-acquired, and
// the new holder's lease is not ours to remove. Runs detached from the request
// context: a cancelled cycle must still release its session.
func (o *Orchestrator) releaseLease(key session.Key) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	path := key.LeasePath()

	data, err := o.blobs.Get(ctx, path)
	if errors.Is(err, blob.ErrNotFound) {
		return
	}
	if err != nil {
		slog.Error("Failed to read session lease on release", "key", key, "error", err)
		return
	}
	var held leaseRecord
	if json.Unmarshal(data, &held) == nil && held.Owner != o.owner {
		slog.Warn("Session lease re-acquired by another instance, leaving it", "key", key, "owner", held.Owner)
		return
	}
	if err := o.blobs.Delete(ctx, path); err != nil && !errors.Is(err, blob.ErrNotFound) {
		slog.Error("Failed to release session lease", "key", key, "error", err)
	}
}
