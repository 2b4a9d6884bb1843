package blob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Mem is an in-memory Store used in tests.
type Mem struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// Down, when set, is returned by every operation. Simulates the store
	// being unreachable.
	Down error

	// Fail maps a path to an error returned by any operation touching that
	// path. Simulates per-object failures within a batch.
	Fail map[string]error
}

// Verify interface compliance.
var _ Store = (*Mem)(nil)

// NewMem returns an empty in-memory store.
func NewMem() *Mem {
	return &Mem{
		objects: make(map[string][]byte),
		Fail:    make(map[string]error),
	}
}

// Len returns the number of stored objects.
func (m *Mem) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *Mem) check(path string) error {
	if m.Down != nil {
		return m.Down
	}
	if err, ok := m.Fail[path]; ok {
		return err
	}
	return nil
}

func (m *Mem) Get(ctx context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(path); err != nil {
		return nil, err
	}
	data, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Mem) Put(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(path); err != nil {
		return err
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[path] = stored
	return nil
}

func (m *Mem) PutIfAbsent(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(path); err != nil {
		return err
	}
	if _, ok := m.objects[path]; ok {
		return fmt.Errorf("%w: %s", ErrPreconditionFailed, path)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[path] = stored
	return nil
}

func (m *Mem) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Down != nil {
		return nil, m.Down
	}
	var paths []string
	for p := range m.objects {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *Mem) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(path); err != nil {
		return err
	}
	if _, ok := m.objects[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	delete(m.objects, path)
	return nil
}
