package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"gate-learner/internal/domain"
	"gate-learner/internal/storage"
)

// PositionsStore reads closed trades from a positions_futures.json document
// shaped as {"open_positions": [...], "closed_positions": [...]}.
type PositionsStore struct {
	path string
}

// NewPositionsStore creates a store over the given file.
func NewPositionsStore(path string) *PositionsStore {
	return &PositionsStore{path: path}
}

// Path returns the backing file.
func (s *PositionsStore) Path() string {
	return s.path
}

// GetClosedBetween retrieves trades closed within [start, end], ordered by closed_at ASC, trade_id ASC.
// Returns ErrNotFound if the file does not exist and ErrCorrupt if it is not valid JSON.
// Entries without a parsable close timestamp are skipped.
func (s *PositionsStore) GetClosedBetween(ctx context.Context, start, end time.Time) ([]*domain.TradeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", s.path, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse %s: %w", s.path, storage.ErrCorrupt)
	}

	closed := gjson.GetBytes(data, "closed_positions")
	if !closed.Exists() || closed.Type == gjson.Null {
		return nil, nil
	}
	if !closed.IsArray() {
		return nil, fmt.Errorf("parse %s: closed_positions is not an array: %w", s.path, storage.ErrCorrupt)
	}

	var (
		result   []*domain.TradeRecord
		skipped  int
		position int
	)
	closed.ForEach(func(_, v gjson.Result) bool {
		position++
		if !v.IsObject() {
			skipped++
			return true
		}
		t, ok := parseClosedPosition(v)
		if !ok {
			skipped++
			return true
		}
		if t.ClosedAt.Before(start) || t.ClosedAt.After(end) {
			return true
		}
		result = append(result, t)
		return true
	})

	if skipped > 0 {
		log.Debug().
			Str("component", "jsonfile").
			Str("path", s.path).
			Int("entries", position).
			Int("skipped", skipped).
			Msg("skipped closed positions without a parsable close time")
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].ClosedAt.Equal(result[j].ClosedAt) {
			return result[i].ClosedAt.Before(result[j].ClosedAt)
		}
		return result[i].TradeID < result[j].TradeID
	})

	return result, nil
}

var _ storage.TradeStore = (*PositionsStore)(nil)
