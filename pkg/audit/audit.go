// Package audit implements the append-only, correlated event stream (C1):
// one self-delimited JSON line per entry, secret-redacted on write, and
// hash-chained so a truncated or edited log file is detectable.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stewardgate/gate/pkg/canonicalize"
	"github.com/stewardgate/gate/pkg/sanitize"
	"github.com/stewardgate/gate/pkg/stwclock"
)

// Stage enumerates the pipeline stages an AuditEntry may belong to.
type Stage string

const (
	StagePropose           Stage = "propose"
	StageExplain           Stage = "explain"
	StageDecision          Stage = "decision"
	StageExecute           Stage = "execute"
	StageReceipt           Stage = "receipt"
	StageLearn             Stage = "learn"
	StageLawDecision       Stage = "law_decision"
	StageExecutionAttempt  Stage = "execution_attempt"
)

// Correlation links an entry back to the request/proposal/decision that
// produced it.
type Correlation struct {
	RequestID  string `json:"request_id"`
	ProposalID string `json:"proposal_id"`
	DecisionID string `json:"decision_id,omitempty"`
}

// Entry is one immutable, append-only audit record.
type Entry struct {
	SchemaVersion string         `json:"schema_version"`
	EventID       string         `json:"event_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Service       string         `json:"service"`
	EventType     Stage          `json:"event_type"`
	Correlation   Correlation    `json:"correlation"`
	Payload       map[string]any `json:"payload"`

	PreviousHash string `json:"previous_hash"`
	EntryHash    string `json:"entry_hash"`
}

// hashable excludes EntryHash (the field being computed) from the hashed form.
type hashable struct {
	SchemaVersion string         `json:"schema_version"`
	EventID       string         `json:"event_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Service       string         `json:"service"`
	EventType     Stage          `json:"event_type"`
	Correlation   Correlation    `json:"correlation"`
	Payload       map[string]any `json:"payload"`
	PreviousHash  string         `json:"previous_hash"`
}

// Log is a single-writer, append-only audit log backed by a newline-
// delimited JSON file. Concurrent Append calls are serialized so no two
// lines interleave and a reader never observes a torn line.
type Log struct {
	mu        sync.Mutex
	path      string
	service   string
	sanitizer *sanitize.Sanitizer
	clock     stwclock.Clock

	file      *os.File
	writer    *bufio.Writer
	chainHead string
	entries   []Entry
}

// New opens (creating parent directories as needed) the audit log at path
// for append, scoped to a named service and a Sanitizer applied to every
// payload value before it is written.
func New(path, service string, sanitizer *sanitize.Sanitizer, clock stwclock.Clock) (*Log, error) {
	if clock == nil {
		clock = stwclock.Default
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit: create directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	return &Log{
		path:      path,
		service:   service,
		sanitizer: sanitizer,
		clock:     clock,
		file:      f,
		writer:    bufio.NewWriter(f),
	}, nil
}

// Append persists one entry as a single atomic line write, secret-redacts
// every payload value, chains the entry to the previous entry's hash, and
// returns the stored (post-sanitization, post-hashing) Entry. An I/O error
// is fatal for the calling pipeline step: the caller must not produce a
// receipt claiming an audit entry that was not durably written.
func (l *Log) Append(stage Stage, corr Correlation, payload map[string]any) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sanitizedPayload := l.sanitizer.Map(payload)

	e := Entry{
		SchemaVersion: "v1",
		EventID:       "evt-" + uuid.NewString(),
		Timestamp:     l.clock.Now(),
		Service:       l.service,
		EventType:     stage,
		Correlation:   corr,
		Payload:       sanitizedPayload,
		PreviousHash:  l.chainHead,
	}

	h := hashable{
		SchemaVersion: e.SchemaVersion,
		EventID:       e.EventID,
		Timestamp:     e.Timestamp,
		Service:       e.Service,
		EventType:     e.EventType,
		Correlation:   e.Correlation,
		Payload:       e.Payload,
		PreviousHash:  e.PreviousHash,
	}
	hash, err := canonicalize.Hash(h)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: hash entry: %w", err)
	}
	e.EntryHash = hash

	line, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: marshal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.writer.Write(line); err != nil {
		return Entry{}, fmt.Errorf("audit: write entry: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return Entry{}, fmt.Errorf("audit: flush entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return Entry{}, fmt.Errorf("audit: sync entry: %w", err)
	}

	l.chainHead = e.EntryHash
	l.entries = append(l.entries, e)
	return e, nil
}

// Entries returns all entries appended so far, in write order, for
// diagnostics and tests.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// VerifyChain reports whether the in-memory entry sequence's hash chain is
// intact: recomputing each entry's hash and previous_hash linkage must
// match what was recorded.
func (l *Log) VerifyChain() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := ""
	for i, e := range l.entries {
		if e.PreviousHash != prev {
			return fmt.Errorf("audit: chain broken at entry %d (%s): previous_hash mismatch", i, e.EventID)
		}
		h := hashable{
			SchemaVersion: e.SchemaVersion,
			EventID:       e.EventID,
			Timestamp:     e.Timestamp,
			Service:       e.Service,
			EventType:     e.EventType,
			Correlation:   e.Correlation,
			Payload:       e.Payload,
			PreviousHash:  e.PreviousHash,
		}
		want, err := canonicalize.Hash(h)
		if err != nil {
			return fmt.Errorf("audit: recompute hash for entry %d: %w", i, err)
		}
		if want != e.EntryHash {
			return fmt.Errorf("audit: chain broken at entry %d (%s): entry_hash mismatch", i, e.EventID)
		}
		prev = e.EntryHash
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}
