package audit

import (
	"context"
	"testing"
	"time"

	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/store/memory"
)

func appendN(t *testing.T, l *Ledger, n int) []*model.AuditEntry {
	t.Helper()
	out := make([]*model.AuditEntry, 0, n)
	for i := 0; i < n; i++ {
		e, err := l.Log(context.Background(), Record{
			UserID: "u-1", Action: "entry.start",
			EntityType: "entry_session", EntityID: "en-1",
		})
		if err != nil {
			t.Fatalf("Log: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func TestLog_Validation(t *testing.T) {
	l := New(memory.New())
	if _, err := l.Log(context.Background(), Record{EntityType: "site"}); err == nil {
		t.Error("expected error for missing action")
	}
	if _, err := l.Log(context.Background(), Record{Action: "site.register"}); err == nil {
		t.Error("expected error for missing entity type")
	}
}

func TestLog_ChainsToPredecessor(t *testing.T) {
	l := New(memory.New())
	entries := appendN(t, l, 3)

	if entries[0].HashChain == "" || entries[0].HashChain == model.GenesisHash {
		t.Errorf("first hash = %q, want a real digest", entries[0].HashChain)
	}
	// Hashes must all differ even though the payloads are identical, since
	// each chains to a different predecessor.
	seen := map[string]bool{}
	for _, e := range entries {
		if seen[e.HashChain] {
			t.Fatalf("duplicate hash %q in chain", e.HashChain)
		}
		seen[e.HashChain] = true
	}
}

func TestVerifyIntegrity_Valid(t *testing.T) {
	l := New(memory.New())
	appendN(t, l, 5)

	report, err := l.VerifyIntegrity(context.Background(), nil)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !report.Valid || report.CheckedCount != 5 {
		t.Errorf("report = %+v, want valid with 5 checked", report)
	}
}

func TestVerifyIntegrity_EmptyChain(t *testing.T) {
	l := New(memory.New())
	report, err := l.VerifyIntegrity(context.Background(), nil)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !report.Valid || report.CheckedCount != 0 {
		t.Errorf("report = %+v, want trivially valid", report)
	}
}

func TestVerifyIntegrity_DetectsTampering(t *testing.T) {
	st := memory.New()
	l := New(st)
	entries := appendN(t, l, 4)

	if !st.TamperAuditEntry(entries[1].ID, func(e *model.AuditEntry) {
		e.Action = "entry.exit"
	}) {
		t.Fatal("tamper hook found no entry")
	}

	report, err := l.VerifyIntegrity(context.Background(), nil)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if report.Valid {
		t.Fatal("tampered chain reported valid")
	}
	if report.BrokenAt != entries[1].ID {
		t.Errorf("BrokenAt = %s, want %s", report.BrokenAt, entries[1].ID)
	}
	if report.CheckedCount != 2 {
		t.Errorf("CheckedCount = %d, want 2 (scan stops at the break)", report.CheckedCount)
	}
}

func TestVerifyIntegrity_HashSwapAlsoDetected(t *testing.T) {
	st := memory.New()
	l := New(st)
	entries := appendN(t, l, 3)

	// Rewriting an entry's own hash breaks the next entry's linkage even
	// if the payload is untouched.
	st.TamperAuditEntry(entries[0].ID, func(e *model.AuditEntry) {
		e.HashChain = "0000"
	})

	report, err := l.VerifyIntegrity(context.Background(), nil)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if report.Valid || report.BrokenAt != entries[0].ID {
		t.Errorf("report = %+v, want break at the rewritten entry", report)
	}
}

func TestVerifyIntegrity_BoundedRange(t *testing.T) {
	st := memory.New()
	l := New(st)
	appendN(t, l, 2)
	time.Sleep(5 * time.Millisecond)
	cut := time.Now().UTC()
	appendN(t, l, 3)

	// A range starting mid-chain anchors on its first entry's stored hash:
	// that entry is the trust anchor, the remaining two are verified.
	report, err := l.VerifyIntegrity(context.Background(), &model.AuditRange{From: cut})
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !report.Valid || report.CheckedCount != 2 {
		t.Errorf("report = %+v, want valid with 2 checked past the anchor", report)
	}
}
