package jsonfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"gate-learner/internal/domain"
	"gate-learner/internal/storage"
)

// maxLineBytes bounds a single JSONL line. Longer lines are skipped.
const maxLineBytes = 4 << 20

// DecisionLog reads a JSONL stream of decision or signal events
// (enriched_decisions.jsonl, signals.jsonl).
type DecisionLog struct {
	path    string
	maxLine int
}

// NewDecisionLog creates a reader over the given file.
func NewDecisionLog(path string) *DecisionLog {
	return &DecisionLog{path: path, maxLine: maxLineBytes}
}

// ReadAll returns every decodable event and the number of skipped lines.
// Blank lines are ignored and not counted. Returns ErrNotFound if the file does not exist.
func (d *DecisionLog) ReadAll(ctx context.Context) ([]*domain.DecisionEvent, int, error) {
	f, err := os.Open(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("open %s: %w", d.path, storage.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("open %s: %w", d.path, err)
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, 64*1024)

	var (
		events  []*domain.DecisionEvent
		skipped int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		raw, tooLong, err := readLine(reader, d.maxLine)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", d.path, err)
		}
		if tooLong {
			skipped++
			continue
		}
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			skipped++
			continue
		}
		obj := gjson.Parse(line)
		if !obj.IsObject() {
			skipped++
			continue
		}
		events = append(events, parseDecisionEvent(obj))
	}

	if skipped > 0 {
		log.Warn().
			Str("component", "jsonfile").
			Str("path", d.path).
			Int("skipped", skipped).
			Msg("skipped malformed jsonl lines")
	}

	return events, skipped, nil
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed and reported as tooLong with no content. io.EOF is
// returned only when no bytes remain.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, tooLong, err
		}
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if !isPrefix {
			return line, tooLong, nil
		}
	}
}

func parseDecisionEvent(obj gjson.Result) *domain.DecisionEvent {
	ts, _ := parseTimestamp(first(obj, "timestamp", "ts", "time", "created_at"))
	return &domain.DecisionEvent{
		Symbol:    strings.ToUpper(first(obj, "symbol").String()),
		Direction: parseDirection(first(obj, directionKey...)),
		Timestamp: ts,
		OFI:       optionalNumber(first(obj, "ofi", "ofi_score", "order_flow_imbalance")),
		Regime:    strings.ToLower(first(obj, "regime", "market_regime").String()),
		Outcome:   optionalNumber(first(obj, "outcome", "pnl", "return_pct", "realized_pnl")),
		Executed:  first(obj, "executed", "was_executed").Bool(),
	}
}

var _ storage.DecisionEventSource = (*DecisionLog)(nil)
