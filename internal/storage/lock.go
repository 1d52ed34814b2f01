package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 25 * time.Millisecond

// pathLocks serialises access to a backing file within the process.
// Keyed by absolute path; entries are never removed.
var pathLocks sync.Map // map[string]*sync.Mutex

func pathMutex(path string) *sync.Mutex {
	mu, _ := pathLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// acquire takes the in-process mutex for path and then an advisory lock on
// path+".lock" so other processes sharing the workbook are serialised too.
// The returned release func must be called on every exit path.
func acquire(ctx context.Context, path string) (release func(), err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir: %w", err)
	}

	mu := pathMutex(path)
	mu.Lock()

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("storage: lock %s: %w", path, err)
	}
	if !locked {
		mu.Unlock()
		return nil, fmt.Errorf("storage: lock %s: not acquired", path)
	}

	return func() {
		_ = fl.Unlock()
		mu.Unlock()
	}, nil
}
