package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"model-repository-service/internal/core/domain"
)

const lockRetryInterval = 20 * time.Millisecond

// lockTable serializes mutations per endpoint. A buffered channel per name
// guards goroutines of this process; a flock(2) on <root>/.locks/<name>.lock
// guards other processes sharing the repository.
type lockTable struct {
	dir string

	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newLockTable(dir string) *lockTable {
	return &lockTable{dir: dir, slots: make(map[string]chan struct{})}
}

func (t *lockTable) slot(name string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		t.slots[name] = ch
	}
	return ch
}

func (t *lockTable) acquire(ctx context.Context, name string) (func(), error) {
	ch := t.slot(name)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEndpointLocked, name, ctx.Err())
	}

	f, err := t.lockFile(ctx, name)
	if err != nil {
		<-ch
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = unlockFile(f)
			f.Close()
			<-ch
		})
	}, nil
}

func (t *lockTable) lockFile(ctx context.Context, name string) (*os.File, error) {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, domain.IOError("create lock directory", err)
	}
	f, err := os.OpenFile(filepath.Join(t.dir, name+".lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, domain.IOError("open lock file", err)
	}

	for {
		err := tryLockFile(f)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, errWouldBlock) {
			f.Close()
			return nil, domain.IOError("lock endpoint", err)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrEndpointLocked, name, ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
}
