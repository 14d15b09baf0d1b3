// Package serial generates the human-readable sequential identifiers
// assigned to records at creation time.
package serial

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/diwan-systems/diwan/internal/record"
)

// maxAttempts bounds the retry loop when racing inserts collide on the
// same identifier.
const maxAttempts = 3

// ErrExhausted is returned when every attempt hit a duplicate identifier.
var ErrExhausted = errors.New("serial generation retries exhausted")

// Source is the storage query the generator needs: the greatest existing
// serial for a type under a prefix. Serials are fixed-width zero-padded,
// so the lexicographic maximum is the numeric maximum.
type Source interface {
	MaxSerial(ctx context.Context, typeName, prefix string) (string, error)
}

// Generator produces identifiers scoped by resource type and civil date.
// The civil date is taken in a fixed UTC offset so the date part of an
// identifier matches the user's wall calendar even just after UTC
// midnight.
type Generator struct {
	store Source
	loc   *time.Location
	now   func() time.Time
}

// NewGenerator creates a generator using the given fixed UTC offset in hours.
func NewGenerator(store Source, offsetHours int) *Generator {
	name := fmt.Sprintf("UTC+%d", offsetHours)
	if offsetHours < 0 {
		name = fmt.Sprintf("UTC%d", offsetHours)
	}
	return &Generator{
		store: store,
		loc:   time.FixedZone(name, offsetHours*3600),
		now:   time.Now,
	}
}

// WithClock overrides the generator clock, for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Next produces the next identifier for the type. For SerialNone types it
// returns "". Store failures propagate; the enclosing create must treat
// them as fatal.
func (g *Generator) Next(ctx context.Context, t record.Type) (string, error) {
	civil := g.now().In(g.loc)

	switch t.Mode {
	case record.SerialTimestamp:
		return civil.Format("2006_01_02_15_04_05"), nil

	case record.SerialSequential:
		prefix := t.SerialPrefix
		if t.SerialDated {
			prefix += civil.Format("060102")
		}

		last, err := g.store.MaxSerial(ctx, t.Name, prefix)
		if err != nil {
			return "", fmt.Errorf("find last identifier for %s: %w", t.Name, err)
		}

		next := 1
		if last != "" {
			// A malformed suffix (manual override) restarts at 1 rather
			// than failing the create.
			if n, perr := strconv.Atoi(strings.TrimPrefix(last, prefix)); perr == nil {
				next = n + 1
			}
		}
		return prefix + fmt.Sprintf("%0*d", t.SerialWidth, next), nil

	default:
		return "", nil
	}
}

// CreateWithSerial generates an identifier for the record's type and
// inserts it, retrying with a fresh identifier when a concurrent insert
// took the same one. The max-scan itself is not atomic with the insert;
// the store's uniqueness constraint is the backstop that turns the race
// into a retry.
func (g *Generator) CreateWithSerial(ctx context.Context, repo record.Repository, rec *record.Record) error {
	t, ok := record.TypeFor(rec.Type)
	if !ok {
		return fmt.Errorf("unknown resource type %q", rec.Type)
	}

	if t.Mode == record.SerialNone {
		return repo.Insert(ctx, rec)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		serial, err := g.Next(ctx, t)
		if err != nil {
			return err
		}
		rec.SetSerial(serial)

		err = repo.Insert(ctx, rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, record.ErrDuplicateSerial) {
			return err
		}
	}
	return ErrExhausted
}
