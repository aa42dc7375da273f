package recorder

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"droneops-console/internal/event"
)

// Record is one line of a session log.
type Record struct {
	Kind     string          `json:"kind"`
	At       time.Time       `json:"at"`
	Event    *event.Envelope `json:"event,omitempty"`
	Snapshot *Snapshot       `json:"snapshot,omitempty"`
}

const (
	RecordEvent    = "event"
	RecordSnapshot = "snapshot"
)

// FileWriter writes events and snapshots to a JSONL file.
type FileWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
	now func() time.Time
}

// NewFileWriter creates (or truncates) path.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{f: f, enc: json.NewEncoder(f), now: time.Now}, nil
}

// WriteEvent logs a single event.
func (w *FileWriter) WriteEvent(ev event.Event) error {
	env, err := ev.Envelope()
	if err != nil {
		return err
	}
	at := ev.Time
	if at.IsZero() {
		at = w.now().UTC()
	}
	return w.encode(Record{Kind: RecordEvent, At: at, Event: &env})
}

// WriteEvents logs multiple events.
func (w *FileWriter) WriteEvents(evs []event.Event) error {
	for _, ev := range evs {
		if err := w.WriteEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// WriteSnapshot logs a registry snapshot.
func (w *FileWriter) WriteSnapshot(s Snapshot) error {
	if s.At.IsZero() {
		s.At = w.now().UTC()
	}
	return w.encode(Record{Kind: RecordSnapshot, At: s.At, Snapshot: &s})
}

func (w *FileWriter) encode(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(r)
}

// Close closes the underlying file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
