// Package archive ships periodic snapshots of the audit chain to off-site
// storage, so tampering with the database can be caught against an
// external copy.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fieldward/manholeguard/internal/model"
	"github.com/fieldward/manholeguard/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	EntryCount int       `json:"entry_count"`
	HeadHash   string    `json:"head_hash"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes the full audit chain as JSONL to w, oldest first.
// The header carries the head hash so a snapshot can be checked against a
// later one without replaying everything.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	entries, err := s.ListAuditEntries(ctx, nil)
	if err != nil {
		return fmt.Errorf("list audit entries: %w", err)
	}

	headHash := model.GenesisHash
	if len(entries) > 0 {
		headHash = entries[len(entries)-1].HashChain
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		EntryCount: len(entries),
		HeadHash:   headHash,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range entries {
		if err := enc.Encode(record{Type: "audit_entry", Data: e}); err != nil {
			return fmt.Errorf("encode audit entry %s: %w", e.ID, err)
		}
	}

	return nil
}
