package recorder

import (
	"errors"
	"io"

	"droneops-console/internal/event"
)

// MultiWriter fans events and snapshots out to several writers.
type MultiWriter struct {
	writers []EventWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...EventWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Len returns the number of writers.
func (mw *MultiWriter) Len() int { return len(mw.writers) }

// WriteEvent sends ev to every writer. All writers are tried; errors are joined.
func (mw *MultiWriter) WriteEvent(ev event.Event) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteEvent(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteEvents sends evs to every writer, using batch if supported.
func (mw *MultiWriter) WriteEvents(evs []event.Event) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteEvents(evs); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, ev := range evs {
			if err := w.WriteEvent(ev); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// WriteSnapshot forwards s to the writers that keep snapshots.
func (mw *MultiWriter) WriteSnapshot(s Snapshot) error {
	var errs []error
	for _, w := range mw.writers {
		if sw, ok := w.(SnapshotWriter); ok {
			if err := sw.WriteSnapshot(s); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that implements io.Closer.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
