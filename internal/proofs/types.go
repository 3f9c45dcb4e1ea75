// Package proofs keeps the local record of certified fingerprints: which
// transaction first anchored each one, how often it has been certified
// since, and which fingerprint every known transaction carries.
package proofs

import (
	"context"
	"errors"
	"time"

	"github.com/TaranshG/Receipt-Identifer/internal/domain"
)

var (
	// ErrNotFound is returned by lookups that require the key to exist.
	ErrNotFound = errors.New("proof not found")
	// ErrTxConflict means a transaction id is already bound to a different
	// fingerprint.
	ErrTxConflict = errors.New("transaction already recorded for another fingerprint")
)

// Summary is display metadata captured at certification time.
type Summary struct {
	Merchant  string        `json:"merchant,omitempty"`
	Date      string        `json:"date,omitempty"`
	Currency  string        `json:"currency,omitempty"`
	Total     domain.Amount `json:"total"`
	RiskLevel string        `json:"risk_level,omitempty"`
	RiskScore int           `json:"risk_score"`
	AIVerdict string        `json:"ai_verdict,omitempty"`
}

// ProofRecord is keyed by fingerprint.
type ProofRecord struct {
	Fingerprint   string    `json:"fingerprint"`
	CanonicalText string    `json:"canonical_text,omitempty"`
	Summary       *Summary  `json:"summary,omitempty"`
	FirstSeenTx   string    `json:"first_seen_tx"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	SeenCount     int       `json:"seen_count"`
	MostRecentTx  string    `json:"most_recent_tx"`
}

// TxEntry is the secondary index from transaction id to fingerprint.
type TxEntry struct {
	TxID          string    `json:"tx_id"`
	Fingerprint   string    `json:"fingerprint"`
	CanonicalText string    `json:"canonical_text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Bundle joins a transaction with the proof of its fingerprint.
type Bundle struct {
	Tx    TxEntry      `json:"tx"`
	Proof *ProofRecord `json:"proof,omitempty"`
}

// UpsertResult reports how a certification relates to earlier ones.
type UpsertResult struct {
	Duplicate   bool      `json:"duplicate"`
	FirstSeenTx string    `json:"first_seen_tx"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	SeenCount   int       `json:"seen_count"`
}

// Backend persists records. Implementations need not serialise
// read-modify-write sequences; Store does that.
type Backend interface {
	// GetHash returns nil, nil when fp is unknown.
	GetHash(ctx context.Context, fp string) (*ProofRecord, error)
	// GetTx returns nil, nil when txID is unknown.
	GetTx(ctx context.Context, txID string) (*TxEntry, error)
	// Commit writes entry to the tx index and rec to the hash index as one
	// unit: both land or neither does. When entry.TxID is already indexed it
	// writes nothing and returns ErrTxConflict.
	Commit(ctx context.Context, rec ProofRecord, entry TxEntry) error
	ListHashes(ctx context.Context) ([]ProofRecord, error)
	Close() error
}
