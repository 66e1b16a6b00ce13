//go:build !unix

package jsonfile

import (
	"context"

	"gate-learner/internal/storage"
)

// Lock is a no-op on platforms without flock.
func (l *FileLocker) Lock(ctx context.Context, _ string) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func() error { return nil }, nil
}

var _ storage.Locker = (*FileLocker)(nil)
