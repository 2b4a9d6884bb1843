// Package workspace mirrors a local scratch directory against the remote file
// tree rooted at a session key. The local root is assumed to exist only for
// the duration of one execution cycle.
package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dstaley/gatebot/pkg/blob"
	"github.com/dstaley/gatebot/pkg/domain"
	"github.com/dstaley/gatebot/pkg/session"
)

const defaultParallelism = 8

// Synchronizer copies workspace files between the object store and a local
// directory. Files within one batch are independent keys, so transfers run in
// parallel up to Parallelism.
type Synchronizer struct {
	blobs blob.Store

	// Parallelism bounds concurrent transfers within one pull or push batch.
	Parallelism int
}

// NewSynchronizer creates a Synchronizer backed by the given object store.
func NewSynchronizer(blobs blob.Store) *Synchronizer {
	return &Synchronizer{blobs: blobs, Parallelism: defaultParallelism}
}

// Pull materializes every remote object under the session's file namespace as
// a local file under localRoot, overwriting prior content. Local files with no
// remote counterpart are left untouched; pull never deletes locally.
//
// A failure to list the namespace is fatal and wraps
// domain.ErrStorageUnavailable. Per-file failures are not: the remaining files
// still transfer and the aggregate is reported as a *domain.PartialSyncError.
// The returned count is the number of files that landed.
func (s *Synchronizer) Pull(ctx context.Context, key session.Key, localRoot string) (int, error) {
	prefix := key.FilesPrefix()
	paths, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w: %w", prefix, domain.ErrStorageUnavailable, err)
	}
	if len(paths) == 0 {
		return 0, nil
	}

	var (
		mu     sync.Mutex
		pulled int
		failed []string
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism())
	for _, remote := range paths {
		rel := strings.TrimPrefix(remote, prefix)
		if rel == "" || !fs.ValidPath(path.Clean(rel)) {
			continue
		}
		g.Go(func() error {
			err := s.pullFile(ctx, remote, filepath.Join(localRoot, filepath.FromSlash(rel)))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, rel)
			} else {
				pulled++
			}
			return nil
		})
	}
	g.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		return pulled, &domain.PartialSyncError{Op: "pull", Failed: failed, Transferred: pulled}
	}
	return pulled, nil
}

func (s *Synchronizer) pullFile(ctx context.Context, remote, local string) error {
	data, err := s.blobs.Get(ctx, remote)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	return os.WriteFile(local, data, 0o644)
}

// Push uploads every regular file under localRoot to the session's file
// namespace, overwriting prior remote content. Files deleted locally during
// the execution window are not deleted remotely; deletions do not propagate.
//
// A missing localRoot means there is nothing to push. Any per-file failure is
// reported as a *domain.PartialSyncError: a partial push followed by instance
// destruction is the primary data-loss risk, so the caller must treat it as a
// failed persistence step.
func (s *Synchronizer) Push(ctx context.Context, key session.Key, localRoot string) (int, error) {
	var files []string
	err := filepath.WalkDir(localRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", localRoot, err)
	}
	if len(files) == 0 {
		return 0, nil
	}

	prefix := key.FilesPrefix()
	var (
		mu     sync.Mutex
		pushed int
		failed []string
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism())
	for _, local := range files {
		rel, relErr := filepath.Rel(localRoot, local)
		if relErr != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		g.Go(func() error {
			err := s.pushFile(ctx, local, prefix+rel)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, rel)
			} else {
				pushed++
			}
			return nil
		})
	}
	g.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		return pushed, &domain.PartialSyncError{Op: "push", Failed: failed, Transferred: pushed}
	}
	return pushed, nil
}

func (s *Synchronizer) pushFile(ctx context.Context, local, remote string) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	return s.blobs.Put(ctx, remote, data)
}

func (s *Synchronizer) parallelism() int {
	if s.Parallelism > 0 {
		return s.Parallelism
	}
	return defaultParallelism
}
