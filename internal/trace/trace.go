// Package trace records kernel dispatches as JSON lines, one file per run.
package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileName is the trace file inside a run directory.
const FileName = "dispatch.jsonl"

// Entry is one dispatch.
type Entry struct {
	RunID string `json:"run_id"`
	// Seq numbers dispatches within a run, starting at 1.
	Seq    int    `json:"seq"`
	Kernel string `json:"kernel"`
	Global int    `json:"global"`
	Local  int    `json:"local"`

	// Enqueue is the time spent in the enqueue call alone; execution
	// completes on finish.
	Enqueue time.Duration `json:"enqueue_ns"`
	// Finish is the wall time of the queue finish that drained this
	// dispatch. Zero if the session closed without finishing.
	Finish time.Duration `json:"finish_ns,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NotFoundError is returned when a run has no trace file.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	return "trace not found: " + e.RunID
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RunPath returns the trace file of runID below baseDir.
func RunPath(baseDir, runID string) string {
	return filepath.Join(baseDir, "runs", runID, FileName)
}

// Writer appends entries to a run's trace file. Entries are buffered until
// Flush or Close. Safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	file  *os.File
	buf   *bufio.Writer
	enc   *json.Encoder
	path  string
	runID string
	n     int
}

// NewWriter opens the trace file for runID, generating an id when it is
// empty. With append set an existing file is extended instead of truncated.
func NewWriter(baseDir, runID string, append bool) (*Writer, error) {
	if runID == "" {
		runID = NewRunID()
	}
	path := RunPath(baseDir, runID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	buf := bufio.NewWriterSize(file, 64*1024)
	return &Writer{file: file, buf: buf, enc: json.NewEncoder(buf), path: path, runID: runID}, nil
}

// Write buffers one entry, stamping it with the writer's run id when the
// entry carries none.
func (w *Writer) Write(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if entry.RunID == "" {
		entry.RunID = w.runID
	}
	if err := w.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry %d: %w", entry.Seq, err)
	}
	w.n++
	return nil
}

// Flush writes buffered entries through to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	return w.file.Sync()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return errors.Join(w.buf.Flush(), w.file.Close())
}

func (w *Writer) Path() string { return w.path }

func (w *Writer) RunID() string { return w.runID }

// Count returns how many entries have been written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Read loads every entry of runID.
func Read(baseDir, runID string) ([]Entry, error) {
	f, err := os.Open(RunPath(baseDir, runID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads JSON-line entries until EOF.
func Decode(r io.Reader) ([]Entry, error) {
	dec := json.NewDecoder(r)
	var entries []Entry
	for {
		var e Entry
		err := dec.Decode(&e)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode trace entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
}
