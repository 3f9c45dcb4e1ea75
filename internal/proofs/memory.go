package proofs

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend keeps proofs in maps. Data is lost on restart.
type MemoryBackend struct {
	mu     sync.RWMutex
	byHash map[string]ProofRecord
	byTx   map[string]TxEntry
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		byHash: make(map[string]ProofRecord),
		byTx:   make(map[string]TxEntry),
	}
}

func (m *MemoryBackend) GetHash(ctx context.Context, fp string) (*ProofRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byHash[fp]
	if !ok {
		return nil, nil
	}
	return rec.clone(), nil
}

func (m *MemoryBackend) GetTx(ctx context.Context, txID string) (*TxEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.byTx[txID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *MemoryBackend) Commit(ctx context.Context, rec ProofRecord, entry TxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byTx[entry.TxID]; exists {
		return fmt.Errorf("Commit: %s: %w", entry.TxID, ErrTxConflict)
	}
	m.byTx[entry.TxID] = entry
	m.byHash[rec.Fingerprint] = *rec.clone()
	return nil
}

func (m *MemoryBackend) ListHashes(ctx context.Context) ([]ProofRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProofRecord, 0, len(m.byHash))
	for _, rec := range m.byHash {
		out = append(out, *rec.clone())
	}
	return out, nil
}

func (m *MemoryBackend) Close() error { return nil }

// clone copies rec so callers cannot mutate stored state.
func (rec ProofRecord) clone() *ProofRecord {
	if rec.Summary != nil {
		s := *rec.Summary
		rec.Summary = &s
	}
	return &rec
}

var _ Backend = (*MemoryBackend)(nil)
