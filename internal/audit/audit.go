// Package audit implements an append-only JSONL trail of every command
// sent to a connection and every alarm/error a firmware reports,
// adapted from the teacher's write-ahead log
// (internal/persistence/wal.go): same O_APPEND|O_CREATE file handle,
// mutex-guarded Append, and one JSON object per line. Unlike the WAL,
// there is no Recover: a Controller's Feeder/Sender/Workflow state is
// entirely in-memory and does not survive a daemon restart (spec.md
// §5 describes no durable resume path), so replaying old audit entries
// into a fresh controller would misrepresent state nothing restored.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Kind names the category of one audit record.
type Kind string

const (
	KindConnectionOpen  Kind = "connection:open"
	KindConnectionClose Kind = "connection:close"
	KindCommand         Kind = "command"
	KindAlarm           Kind = "alarm"
	KindError           Kind = "error"
	KindOverride        Kind = "override"
)

// Entry is one line of the audit log.
type Entry struct {
	Time  time.Time   `json:"time"`
	Ident string      `json:"ident"`
	Kind  Kind        `json:"kind"`
	User  string      `json:"user,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Log is an append-only, JSONL-encoded audit trail.
type Log struct {
	mu   sync.Mutex
	file *os.File
}

// Open creates or appends to the audit log at path.
func Open(path string) (*Log, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Log{file: file}, nil
}

// Record appends one entry, stamping the current time.
func (l *Log) Record(ident string, kind Kind, user string, data interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{Time: time.Now(), Ident: ident, Kind: kind, User: user, Data: data}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return l.file.Sync()
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
