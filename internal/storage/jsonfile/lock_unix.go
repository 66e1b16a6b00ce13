//go:build unix

package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"gate-learner/internal/storage"
)

// Lock takes a non-blocking exclusive flock. Returns ErrLocked if another
// process or descriptor holds it.
func (l *FileLocker) Lock(ctx context.Context, learner string) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", l.dir, err)
	}

	path := l.lockPath(learner)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("lock %s: %w", path, storage.ErrLocked)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	return func() error {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
			f.Close()
			return fmt.Errorf("unlock %s: %w", path, err)
		}
		return f.Close()
	}, nil
}

var _ storage.Locker = (*FileLocker)(nil)
