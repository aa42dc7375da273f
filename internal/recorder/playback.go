package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"droneops-console/internal/event"
)

// Player receives replayed records.
type Player interface {
	Snapshot(s Snapshot)
	Event(ev event.Event)
}

// Replay feeds the records in r to p. A speed >0 scales the recorded gaps;
// speed <= 0 replays without delay. Malformed events are skipped.
func Replay(ctx context.Context, r io.Reader, p Player, speed float64) error {
	dec := json.NewDecoder(r)
	var prev time.Time
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode record: %w", err)
		}
		if !prev.IsZero() && speed > 0 {
			diff := time.Duration(float64(rec.At.Sub(prev)) / speed)
			if diff > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(diff):
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		switch rec.Kind {
		case RecordSnapshot:
			if rec.Snapshot != nil {
				p.Snapshot(*rec.Snapshot)
			}
		case RecordEvent:
			if rec.Event == nil {
				continue
			}
			ev, err := event.FromEnvelope(*rec.Event)
			if err != nil {
				continue
			}
			if ev.Time.IsZero() {
				ev.Time = rec.At
			}
			p.Event(ev)
		}
		prev = rec.At
	}
}

// ReplayFile opens path and replays it.
func ReplayFile(ctx context.Context, path string, p Player, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Replay(ctx, f, p, speed)
}
