package learning

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"gate-learner/internal/domain"
	"gate-learner/internal/storage"
)

// LoadState returns the persisted table of a learner merged over defaults.
//
// A missing table yields the defaults. A corrupt or unreadable table also
// yields the defaults, with a warning since learned progress is reset.
// States in defaults but absent from the file take their default value.
func LoadState(ctx context.Context, store storage.StateStore, learner string, defaults map[domain.GateState]float64) *domain.MultiplierTable {
	t, err := store.Load(ctx, learner)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().
				Str("component", "state").
				Str("learner", learner).
				Err(err).
				Msg("learned state unreadable, falling back to defaults")
		}
		return domain.NewMultiplierTable(defaults)
	}

	for s, v := range defaults {
		if _, ok := t.Multipliers[s]; !ok {
			t.Multipliers[s] = v
		}
	}
	t.Version = domain.MultiplierTableVersion
	return t
}

// SaveState persists a table.
func SaveState(ctx context.Context, store storage.StateStore, learner string, t *domain.MultiplierTable) error {
	return store.Save(ctx, learner, t)
}
