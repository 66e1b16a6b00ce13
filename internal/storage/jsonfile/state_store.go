package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gate-learner/internal/domain"
	"gate-learner/internal/storage"
)

// StateFileSuffix is appended to the learner name to form its table file.
const StateFileSuffix = "_multipliers.json"

// StateStore persists one MultiplierTable per learner as
// <dir>/<learner>_multipliers.json.
type StateStore struct {
	dir string
}

// NewStateStore creates a state store rooted at dir (conventionally feature_store/).
func NewStateStore(dir string) *StateStore {
	return &StateStore{dir: dir}
}

// Path returns the table file of a learner.
func (s *StateStore) Path(learner string) string {
	return filepath.Join(s.dir, learner+StateFileSuffix)
}

// Load reads the table of a learner.
// Returns ErrNotFound if the file does not exist and ErrCorrupt if it cannot be decoded.
// The version field is not validated.
func (s *StateStore) Load(ctx context.Context, learner string) (*domain.MultiplierTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.Path(learner)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var t domain.MultiplierTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", path, err, storage.ErrCorrupt)
	}
	if t.Multipliers == nil {
		return nil, fmt.Errorf("decode %s: missing multipliers: %w", path, storage.ErrCorrupt)
	}
	if t.Stats == nil {
		t.Stats = make(map[domain.GateState]domain.BucketSnapshot)
	}

	return &t, nil
}

// Save atomically replaces the table of a learner.
func (s *StateStore) Save(ctx context.Context, learner string, t *domain.MultiplierTable) error {
	if learner == "" || t == nil {
		return storage.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s table: %w", learner, err)
	}
	data = append(data, '\n')

	return writeFileAtomic(s.Path(learner), data, 0o644)
}

var _ storage.StateStore = (*StateStore)(nil)
