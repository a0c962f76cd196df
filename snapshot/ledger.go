// Package snapshot keeps the ledger that ties environment snapshots to
// transcript lengths, keyed by step number.
package snapshot

import (
	"context"
	"fmt"

	"github.com/m4xw311/steer/environment"
	"github.com/m4xw311/steer/errors"
)

var (
	// ErrNotFound is returned when no record exists for a step.
	ErrNotFound = errors.Sentinel("snapshot not found")
	// ErrUnsupported is returned when the environment cannot roll back.
	ErrUnsupported = errors.Sentinel("environment does not support rollback")
)

// Record correlates a named environment snapshot with the transcript length
// at the time it was taken.
type Record struct {
	Name         string `json:"name"`
	MessageCount int    `json:"message_count"`
	StepNumber   int    `json:"step_number"`
}

// Transcript is what a rollback truncates.
type Transcript interface {
	Len() int
	Truncate(n int) error
}

// Ledger is the ordered list of records plus the step counter. Step numbers
// are strictly increasing; the counter only advances on a successful
// checkpoint.
type Ledger struct {
	records []Record
	step    int
}

// Mark is a position in the ledger that can be returned to with Reset.
type Mark struct {
	records int
	step    int
}

// Name derives the snapshot name for a step.
func Name(step int) string {
	return fmt.Sprintf("step-%d", step)
}

// Step returns the number the next checkpoint will use.
func (l *Ledger) Step() int { return l.step }

// Len returns the number of records.
func (l *Ledger) Len() int { return len(l.records) }

// Records returns a copy of the records in insertion order.
func (l *Ledger) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Find returns the record for step.
func (l *Ledger) Find(step int) (Record, bool) {
	for _, r := range l.records {
		if r.StepNumber == step {
			return r, true
		}
	}
	return Record{}, false
}

// Checkpoint asks the environment to snapshot its state under the current
// step's name. It returns false without error when the environment cannot
// snapshot. On failure the ledger is left untouched.
func (l *Ledger) Checkpoint(ctx context.Context, caps environment.Capabilities, messageCount int) (Record, bool, error) {
	if !caps.CanSnapshot() {
		return Record{}, false, nil
	}
	rec := Record{Name: Name(l.step), MessageCount: messageCount, StepNumber: l.step}
	if err := caps.CreateSnapshot(ctx, rec.Name); err != nil {
		return Record{}, false, errors.Wrapf(err, "failed to create snapshot '%s'", rec.Name)
	}
	l.records = append(l.records, rec)
	l.step++
	return rec, true, nil
}

// Rollback restores the environment to the snapshot taken at step, truncates
// the transcript to its recorded length and forgets every later record. The
// next checkpoint will use step+1. Either all of that happens or nothing
// changes.
func (l *Ledger) Rollback(ctx context.Context, caps environment.Capabilities, transcript Transcript, step int) (Record, error) {
	rec, ok := l.Find(step)
	if !ok {
		return Record{}, fmt.Errorf("step %d: %w", step, ErrNotFound)
	}
	if !caps.CanRollback() {
		return Record{}, ErrUnsupported
	}
	if rec.MessageCount > transcript.Len() {
		return Record{}, errors.New("transcript has %d messages, snapshot for step %d needs %d", transcript.Len(), step, rec.MessageCount)
	}
	if err := caps.RollbackSnapshot(ctx, rec.Name); err != nil {
		return Record{}, errors.Wrapf(err, "failed to roll back to '%s'", rec.Name)
	}
	if err := transcript.Truncate(rec.MessageCount); err != nil {
		// Unreachable after the length check above.
		return Record{}, errors.Wrapf(err, "environment rolled back but transcript could not be truncated")
	}
	l.dropAfter(step)
	l.step = step + 1
	return rec, nil
}

// Mark records the current position.
func (l *Ledger) Mark() Mark {
	return Mark{records: len(l.records), step: l.step}
}

// Since returns the records added after m.
func (l *Ledger) Since(m Mark) []Record {
	if m.records >= len(l.records) {
		return nil
	}
	out := make([]Record, len(l.records)-m.records)
	copy(out, l.records[m.records:])
	return out
}

// Reset forgets every record added after m and restores its step counter.
func (l *Ledger) Reset(m Mark) {
	if m.records < len(l.records) {
		l.records = l.records[:m.records]
	}
	l.step = m.step
}

func (l *Ledger) dropAfter(step int) {
	kept := l.records[:0]
	for _, r := range l.records {
		if r.StepNumber <= step {
			kept = append(kept, r)
		}
	}
	l.records = kept
}
