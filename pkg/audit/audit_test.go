package audit

import (
	"bufio"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stewardgate/gate/pkg/sanitize"
	"github.com/stewardgate/gate/pkg/stwclock"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	path := t.TempDir() + "/nested/dir/audit.ndjson"
	clock := stwclock.NewFake(time.Unix(0, 0))
	l, err := New(path, "stewardgate", sanitize.New("tok-3"), clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAppendCreatesParentDirAndWritesOneLinePerEntry(t *testing.T) {
	l := newTestLog(t)
	corr := Correlation{RequestID: "r1", ProposalID: "p1"}

	if _, err := l.Append(StagePropose, corr, map[string]any{"actor": "agent-alpha"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := l.Append(StageExplain, corr, map[string]any{"summary": "ok"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	f, err := os.Open(l.path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}

func TestAppendChainsHashesAndVerifies(t *testing.T) {
	l := newTestLog(t)
	corr := Correlation{RequestID: "r1", ProposalID: "p1"}

	e1, err := l.Append(StagePropose, corr, map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	e2, err := l.Append(StageDecision, corr, map[string]any{"x": 2})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if e1.PreviousHash != "" {
		t.Fatalf("expected first entry's previous_hash to be empty, got %q", e1.PreviousHash)
	}
	if e2.PreviousHash != e1.EntryHash {
		t.Fatalf("expected second entry to chain to first entry's hash")
	}
	if err := l.VerifyChain(); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
}

// Invariant 4 / S8 — secrets never reach the audit file.
func TestAppendRedactsSecretsAndDropsSecretFields(t *testing.T) {
	l := newTestLog(t)
	corr := Correlation{RequestID: "r1", ProposalID: "p1"}

	_, err := l.Append(StageExecute, corr, map[string]any{
		"confirmation_token": "sct-1",
		"steward_key_token":  "sct-2",
		"error":              "device rejected token tok-3",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	for _, secret := range []string{"sct-1", "sct-2", "tok-3"} {
		if strings.Contains(content, secret) {
			t.Fatalf("secret %q leaked into audit file", secret)
		}
	}
	if !strings.Contains(content, "[REDACTED]") {
		t.Fatalf("expected redaction marker in audit file")
	}
}
