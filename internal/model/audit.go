package model

import "time"

// GenesisHash is the sentinel previous-hash value for the first entry in
// the audit chain.
const GenesisHash = "GENESIS"

// AuditEntry is one link in the append-only, hash-chained audit log.
// Never mutated after write.
//
// HashChain = SHA-256 over the canonical serialization of
// {previousHash, action, entityType, entityID, userID, timestamp}.
type AuditEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	HashChain  string    `json:"hash_chain"`
}

// IntegrityReport is the result of replaying the audit chain.
type IntegrityReport struct {
	Valid        bool   `json:"valid"`
	CheckedCount int    `json:"checked_count"`
	BrokenAt     string `json:"broken_at,omitempty"`
}

// AuditRange bounds an integrity check. Zero values mean unbounded.
type AuditRange struct {
	From time.Time
	To   time.Time
}
