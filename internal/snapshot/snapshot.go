// Package snapshot persists the most recent calculator inputs under a
// single key so a later session can prefill them.
package snapshot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/iwvelando/mortgage-calculator/pkg/loans"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned by Load when nothing has been stored.
	ErrNotFound = errors.New("no snapshot stored")

	// ErrCorrupt is returned by Load when the stored data cannot be decoded.
	ErrCorrupt = errors.New("stored snapshot is corrupt")
)

// Snapshot holds the raw form values exactly as the user entered them.
type Snapshot struct {
	Amount string `json:"amount"`
	Rate   string `json:"rate"`
	Years  string `json:"years"`
	Type   string `json:"type"`
}

// Store keeps at most one Snapshot.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Clear(ctx context.Context) error
}

// FromInput records a validated input as form values.
func FromInput(in loans.LoanInput) Snapshot {
	return Snapshot{
		Amount: strconv.FormatFloat(in.Amount, 'f', -1, 64),
		Rate:   strconv.FormatFloat(in.AnnualRate, 'f', -1, 64),
		Years:  strconv.Itoa(in.Years),
		Type:   in.Type.String(),
	}
}

// Merge returns defaults with every non-empty field of s applied on top.
func (s Snapshot) Merge(defaults Snapshot) Snapshot {
	merged := defaults
	if strings.TrimSpace(s.Amount) != "" {
		merged.Amount = s.Amount
	}
	if strings.TrimSpace(s.Rate) != "" {
		merged.Rate = s.Rate
	}
	if strings.TrimSpace(s.Years) != "" {
		merged.Years = s.Years
	}
	if strings.TrimSpace(s.Type) != "" {
		merged.Type = s.Type
	}
	return merged
}

// Empty reports whether no field is set.
func (s Snapshot) Empty() bool {
	return s == Snapshot{}
}

// Persist saves snap when enabled and clears the store otherwise, so turning
// persistence off also forgets what was stored before.
func Persist(ctx context.Context, store Store, enabled bool, snap Snapshot) error {
	if !enabled {
		return store.Clear(ctx)
	}
	return store.Save(ctx, snap)
}

// LoadOrEmpty returns the stored snapshot, treating a missing or corrupt
// snapshot as empty. Other errors are returned.
func LoadOrEmpty(ctx context.Context, logger *zap.Logger, store Store) (Snapshot, error) {
	snap, err := store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{}, nil
	}
	if errors.Is(err, ErrCorrupt) {
		if logger != nil {
			logger.Warn("ignoring corrupt snapshot",
				zap.String("op", "snapshot.LoadOrEmpty"),
				zap.Error(err),
			)
		}
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
