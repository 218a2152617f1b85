// Package journal keeps the history of finished training sessions on the
// station. Results are stored as append-only JSON lines in a local file, one
// record per session, so instructors can review a trainee's progress without
// a database.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/consultorio/internal/events"
)

// Record is a single finished session written to the file store.
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	SessionID      string    `json:"session_id"`
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	InitialStress  int       `json:"initial_stress"`
	FinalStress    int       `json:"final_stress"`
	Turns          int       `json:"turns"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Emotions       []string  `json:"emotions,omitempty"`
	Score          float64   `json:"score"`
	Grade          string    `json:"grade"`
}

// Elapsed returns the active session time.
func (r Record) Elapsed() time.Duration {
	return time.Duration(r.ElapsedSeconds * float64(time.Second))
}

// FromEvent converts a [events.SessionEnded] published at at.
func FromEvent(at time.Time, ev events.SessionEnded) Record {
	return Record{
		Timestamp:      at.UTC(),
		SessionID:      ev.SessionID,
		Success:        ev.Success,
		Message:        ev.Message,
		InitialStress:  ev.InitialStress,
		FinalStress:    ev.FinalStress,
		Turns:          ev.Turns,
		ElapsedSeconds: ev.Elapsed.Seconds(),
		Emotions:       ev.Emotions,
		Score:          ev.Score,
		Grade:          ev.Grade,
	}
}

// FileStore persists session records as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created on the first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the journal file.
func (fs *FileStore) Path() string { return fs.path }

// Append adds r to the end of the file.
func (fs *FileStore) Append(r Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}

// Records reads every record in file order. A missing file is an empty
// journal. A malformed line fails the read with its line number.
func (fs *FileStore) Records() ([]Record, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open file: %w", err)
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("journal: line %d: %w", line, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("journal: read: %w", err)
	}
	return out, nil
}

// Run appends a record for every [events.SessionEnded] read from ch until
// ctx is done or ch is closed. Records already queued when ctx ends are
// still written. Write failures are logged and do not stop the loop.
func (fs *FileStore) Run(ctx context.Context, ch <-chan events.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case env, ok := <-ch:
					if !ok {
						return nil
					}
					fs.record(env)
				default:
					return nil
				}
			}
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			fs.record(env)
		}
	}
}

func (fs *FileStore) record(env events.Envelope) {
	ev, ok := env.Event.(events.SessionEnded)
	if !ok {
		return
	}
	if err := fs.Append(FromEvent(env.At, ev)); err != nil {
		slog.Warn("journal: session not recorded", "session_id", ev.SessionID, "err", err)
	}
}
