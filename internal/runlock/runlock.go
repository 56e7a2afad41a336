// Package runlock keeps two runs from rewriting the same database at once
package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another run holds the lock
var ErrLocked = errors.New("another run holds the database lock")

// DefaultRetryInterval is how often a held lock is polled
const DefaultRetryInterval = 100 * time.Millisecond

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileLock defines the interface for file locking operations
type FileLock interface {
	// TryLockContext attempts to acquire an exclusive lock with retries
	TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)

	// Unlock releases the lock
	Unlock() error
}

// FileLockFactory creates FileLock instances
type FileLockFactory interface {
	// New creates a new FileLock for the given path
	New(path string) FileLock
}

// FlockFactory is the default factory implementation using flock
type FlockFactory struct{}

// New implements FileLockFactory.New
func (FlockFactory) New(path string) FileLock {
	return flock.New(path)
}

// Locker hands out per-database locks under a directory
type Locker struct {
	Dir           string
	Factory       FileLockFactory
	RetryInterval time.Duration
}

// New creates a locker storing lock files in dir, the temp dir when empty
func New(dir string) *Locker {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Locker{Dir: dir, Factory: FlockFactory{}, RetryInterval: DefaultRetryInterval}
}

// Path returns the lock file used for a database
func (l *Locker) Path(database string) string {
	return filepath.Join(l.Dir, "refshift-"+unsafeChars.ReplaceAllString(database, "_")+".lock")
}

// Lock is a held database lock
type Lock struct {
	path string
	file FileLock
}

// Path returns the lock file
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks the database
func (l *Lock) Release() error {
	return l.file.Unlock()
}

// Acquire waits for the database lock until ctx is done
func (l *Locker) Acquire(ctx context.Context, database string) (*Lock, error) {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	path := l.Path(database)
	file := l.Factory.New(path)
	ok, err := file.TryLockContext(ctx, l.RetryInterval)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
	}
	return &Lock{path: path, file: file}, nil
}
