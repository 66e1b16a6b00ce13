package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"gate-learner/internal/domain"
	"gate-learner/internal/storage"
)

// ClosedPositionStore reads closed positions mirrored into PostgreSQL.
type ClosedPositionStore struct {
	pool *Pool
}

// NewClosedPositionStore creates a new ClosedPositionStore.
func NewClosedPositionStore(pool *Pool) *ClosedPositionStore {
	return &ClosedPositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*ClosedPositionStore)(nil)

// gateColumn is the JSONB form of one gate signal.
type gateColumn struct {
	State      string   `json:"state,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Multiplier *float64 `json:"multiplier,omitempty"`
}

func encodeGates(g domain.GateAttribution) ([]byte, error) {
	cols := make(map[string]gateColumn, len(g))
	for name, s := range g {
		cols[strings.ToLower(name)] = gateColumn{State: string(s.Label), Reason: s.Reason, Multiplier: s.Multiplier}
	}
	return json.Marshal(cols)
}

func decodeGates(raw []byte) (domain.GateAttribution, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var cols map[string]gateColumn
	if err := json.Unmarshal(raw, &cols); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}
	g := make(domain.GateAttribution, len(cols))
	for name, c := range cols {
		g[name] = domain.GateSignal{Label: domain.GateState(c.State), Reason: c.Reason, Multiplier: c.Multiplier}
	}
	return g, nil
}

const insertClosedPositionQuery = `
	INSERT INTO closed_positions (
		position_id, symbol, direction, strategy,
		pnl, gross_pnl, fees, margin_collateral,
		opened_at, closed_at, grade, gate_attribution
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8,
		$9, $10, $11, $12
	)
`

func closedPositionArgs(t *domain.TradeRecord) ([]any, error) {
	gates, err := encodeGates(t.Gates)
	if err != nil {
		return nil, fmt.Errorf("encode gate attribution: %w", err)
	}
	var openedAt *time.Time
	if !t.OpenedAt.IsZero() {
		v := t.OpenedAt.UTC()
		openedAt = &v
	}
	return []any{
		t.TradeID, t.Symbol, string(t.Direction), t.Strategy,
		t.PnL, t.GrossPnL, t.Fees, t.Margin,
		openedAt, t.ClosedAt.UTC(), t.Grade, gates,
	}, nil
}

// Insert adds a position. Returns ErrDuplicateKey if position_id exists.
func (s *ClosedPositionStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}
	args, err := closedPositionArgs(t)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertClosedPositionQuery, args...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert closed position: %w", err)
	}
	return nil
}

// InsertBulk adds multiple positions atomically. Fails entire batch on any duplicate.
func (s *ClosedPositionStore) InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		args, err := closedPositionArgs(t)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertClosedPositionQuery, args...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert closed position in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetClosedBetween retrieves positions closed within [start, end] (inclusive),
// ordered by closed_at ASC, position_id ASC.
func (s *ClosedPositionStore) GetClosedBetween(ctx context.Context, start, end time.Time) ([]*domain.TradeRecord, error) {
	query := `
		SELECT
			position_id, symbol, direction, strategy,
			pnl, gross_pnl, fees, margin_collateral,
			opened_at, closed_at, grade, gate_attribution
		FROM closed_positions
		WHERE closed_at >= $1 AND closed_at <= $2
		ORDER BY closed_at ASC, position_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query closed positions: %w", err)
	}
	defer rows.Close()

	return scanClosedPositions(rows)
}

func scanClosedPositions(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		var (
			t         domain.TradeRecord
			direction string
			openedAt  *time.Time
			gates     []byte
		)
		err := rows.Scan(
			&t.TradeID, &t.Symbol, &direction, &t.Strategy,
			&t.PnL, &t.GrossPnL, &t.Fees, &t.Margin,
			&openedAt, &t.ClosedAt, &t.Grade, &gates,
		)
		if err != nil {
			return nil, fmt.Errorf("scan closed position row: %w", err)
		}

		t.Direction = domain.Direction(direction)
		t.ClosedAt = t.ClosedAt.UTC()
		if openedAt != nil {
			t.OpenedAt = openedAt.UTC()
		}
		if t.Gates, err = decodeGates(gates); err != nil {
			return nil, fmt.Errorf("decode gate attribution of %s: %w", t.TradeID, err)
		}

		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed position rows: %w", err)
	}

	return trades, nil
}
