// Package audit implements the tamper-evident, hash-chained log of
// safety-relevant actions.
//
// Each entry's hash is computed as SHA-256 over the canonical
// serialization of {previousHash, action, entityType, entityID, userID,
// timestamp}, chaining every entry to its predecessor. The chain is
// rooted at the sentinel value GENESIS. Altering or deleting any stored
// entry breaks chain continuity from that point forward.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/fieldward/manholeguard/internal/idgen"
	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/store"
)

// Ledger appends to and verifies the audit chain.
type Ledger struct {
	store store.Store

	// mu serializes the read-latest-then-append sequence. Two concurrent
	// appends reading the same head would both claim the same previous
	// hash and fork the chain.
	mu sync.Mutex
}

// New returns a ledger over the given store.
func New(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Record is the caller-facing shape of one audit append.
type Record struct {
	UserID     string
	Action     string
	EntityType string
	EntityID   string
}

// computeHash calculates the SHA-256 hash chaining an entry to prevHash.
// Timestamps are canonicalized to UTC RFC3339Nano.
func computeHash(prevHash string, e *model.AuditEntry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s",
		prevHash, e.Action, e.EntityType, e.EntityID, e.UserID,
		e.Timestamp.UTC().Format(time.RFC3339Nano))
	return hex.EncodeToString(h.Sum(nil))
}

// Log appends one entry to the chain: read the most recent entry's hash
// (GENESIS when the chain is empty), compute this entry's hash over the
// canonical payload, and persist it.
func (l *Ledger) Log(ctx context.Context, rec Record) (*model.AuditEntry, error) {
	if rec.Action == "" {
		return nil, model.ValidationError("audit action is required")
	}
	if rec.EntityType == "" {
		return nil, model.ValidationError("audit entity type is required")
	}

	id, err := idgen.GenerateWithPrefix(idgen.PrefixAudit)
	if err != nil {
		return nil, fmt.Errorf("generating audit id: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev, err := l.store.LatestAuditEntry(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading audit head: %w", err)
	}
	prevHash := model.GenesisHash
	if prev != nil {
		prevHash = prev.HashChain
	}

	entry := &model.AuditEntry{
		ID:         id,
		UserID:     rec.UserID,
		Action:     rec.Action,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		Timestamp:  time.Now().UTC(),
	}
	entry.HashChain = computeHash(prevHash, entry)

	if err := l.store.AppendAuditEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("appending audit entry: %w", err)
	}
	return entry, nil
}

// VerifyIntegrity replays the chain oldest-to-newest, recomputing each
// entry's expected hash from its own recorded fields and the previous
// entry's hash. The first mismatch stops the scan and names the broken
// entry; checkedCount is the 1-based position of the last entry examined.
func (l *Ledger) VerifyIntegrity(ctx context.Context, rng *model.AuditRange) (*model.IntegrityReport, error) {
	entries, err := l.store.ListAuditEntries(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}

	// A range that starts mid-chain has no recomputable root; its first
	// entry's stored hash becomes the trust anchor and continuity is
	// verified from there.
	prevHash := model.GenesisHash
	if rng != nil && !rng.From.IsZero() && len(entries) > 0 {
		prevHash = entries[0].HashChain
		entries = entries[1:]
	}
	for i, e := range entries {
		if computeHash(prevHash, e) != e.HashChain {
			return &model.IntegrityReport{
				Valid:        false,
				CheckedCount: i + 1,
				BrokenAt:     e.ID,
			}, nil
		}
		prevHash = e.HashChain
	}
	return &model.IntegrityReport{Valid: true, CheckedCount: len(entries)}, nil
}
