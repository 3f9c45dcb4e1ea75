package proofs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TaranshG/Receipt-Identifer/internal/logger"
)

// Store applies certification bookkeeping on top of a Backend. All
// mutations go through one mutex so concurrent certifications of the same
// fingerprint cannot lose an increment or both claim to be first.
type Store struct {
	mu      sync.Mutex
	backend Backend
	now     func() time.Time
}

// NewStore wraps backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend, now: time.Now}
}

// Upsert records that txID anchored fp. canonicalText and summary are
// only stored the first time they are seen.
func (s *Store) Upsert(ctx context.Context, fp, txID, canonicalText string, summary *Summary) (UpsertResult, error) {
	if fp == "" || txID == "" {
		return UpsertResult{}, fmt.Errorf("Upsert: fingerprint and transaction id are required")
	}
	fp = strings.ToLower(fp)
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"fingerprint": fp,
		"tx_id":       txID,
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	existingTx, err := s.backend.GetTx(ctx, txID)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("Upsert: reading tx index: %w", err)
	}
	if existingTx != nil && existingTx.Fingerprint != fp {
		return UpsertResult{}, fmt.Errorf("Upsert: %s is bound to %s: %w", txID, existingTx.Fingerprint, ErrTxConflict)
	}

	rec, err := s.backend.GetHash(ctx, fp)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("Upsert: reading proof: %w", err)
	}

	now := s.now().UTC()
	switch {
	case rec == nil:
		rec = &ProofRecord{
			Fingerprint:   fp,
			CanonicalText: canonicalText,
			Summary:       summary,
			FirstSeenTx:   txID,
			FirstSeenAt:   now,
			LastSeenAt:    now,
			SeenCount:     1,
			MostRecentTx:  txID,
		}
	case existingTx != nil:
		// Replay of a pair we already counted.
		log.Debug().Msg("Certification replayed, count unchanged")
		return resultFor(rec, txID), nil
	default:
		rec.SeenCount++
		rec.LastSeenAt = now
		rec.MostRecentTx = txID
		if rec.CanonicalText == "" {
			rec.CanonicalText = canonicalText
		}
		if rec.Summary == nil {
			rec.Summary = summary
		}
	}

	text := canonicalText
	if text == "" {
		text = rec.CanonicalText
	}
	entry := TxEntry{
		TxID:          txID,
		Fingerprint:   fp,
		CanonicalText: text,
		CreatedAt:     now,
	}
	if err := s.backend.Commit(ctx, *rec, entry); err != nil {
		if errors.Is(err, ErrTxConflict) {
			// Another process indexed txID after our read.
			return s.settleRace(ctx, fp, txID)
		}
		return UpsertResult{}, fmt.Errorf("Upsert: writing proof: %w", err)
	}

	res := resultFor(rec, txID)
	log.Info().Bool("duplicate", res.Duplicate).Int("seen_count", res.SeenCount).Msg("Proof recorded")
	return res, nil
}

// settleRace resolves a Commit that lost to a concurrent writer: the same
// pair is a replay, anything else a conflict.
func (s *Store) settleRace(ctx context.Context, fp, txID string) (UpsertResult, error) {
	entry, err := s.backend.GetTx(ctx, txID)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("Upsert: re-reading tx index: %w", err)
	}
	if entry == nil || entry.Fingerprint != fp {
		return UpsertResult{}, fmt.Errorf("Upsert: %s: %w", txID, ErrTxConflict)
	}
	rec, err := s.backend.GetHash(ctx, fp)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("Upsert: re-reading proof: %w", err)
	}
	if rec == nil {
		return UpsertResult{}, fmt.Errorf("Upsert: %s indexed without a proof for %s", txID, fp)
	}
	return resultFor(rec, txID), nil
}

func resultFor(rec *ProofRecord, txID string) UpsertResult {
	return UpsertResult{
		Duplicate:   rec.FirstSeenTx != txID,
		FirstSeenTx: rec.FirstSeenTx,
		FirstSeenAt: rec.FirstSeenAt,
		SeenCount:   rec.SeenCount,
	}
}

// GetByHash returns nil, nil for an unknown fingerprint.
func (s *Store) GetByHash(ctx context.Context, fp string) (*ProofRecord, error) {
	rec, err := s.backend.GetHash(ctx, strings.ToLower(fp))
	if err != nil {
		return nil, fmt.Errorf("GetByHash: %w", err)
	}
	return rec, nil
}

// GetByTx returns nil, nil for an unknown transaction.
func (s *Store) GetByTx(ctx context.Context, txID string) (*TxEntry, error) {
	entry, err := s.backend.GetTx(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("GetByTx: %w", err)
	}
	return entry, nil
}

// GetBundle returns ErrNotFound when txID was never recorded.
func (s *Store) GetBundle(ctx context.Context, txID string) (*Bundle, error) {
	entry, err := s.GetByTx(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("GetBundle: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("GetBundle: %s: %w", txID, ErrNotFound)
	}
	rec, err := s.GetByHash(ctx, entry.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("GetBundle: %w", err)
	}
	return &Bundle{Tx: *entry, Proof: rec}, nil
}

// ListAll returns every proof, most recently seen first.
func (s *Store) ListAll(ctx context.Context) ([]ProofRecord, error) {
	recs, err := s.backend.ListHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAll: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].LastSeenAt.After(recs[j].LastSeenAt)
	})
	return recs, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
