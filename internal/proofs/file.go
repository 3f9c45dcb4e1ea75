package proofs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/TaranshG/Receipt-Identifer/internal/logger"
)

// fileDocument is the on-disk layout.
type fileDocument struct {
	ByHash map[string]ProofRecord `json:"byHash"`
	ByTx   map[string]TxEntry     `json:"byTx"`
}

// FileBackend keeps every proof in one JSON document and rewrites it
// atomically on each change.
type FileBackend struct {
	path string
	mu   sync.RWMutex
	doc  fileDocument
}

// OpenFileBackend loads path. A missing or unreadable document starts an
// empty store; the corrupt case is logged as a warning.
func OpenFileBackend(ctx context.Context, path string) (*FileBackend, error) {
	log := logger.FromContext(ctx).With().Str("path", path).Logger()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("OpenFileBackend: creating directory: %w", err)
	}

	b := &FileBackend{path: path, doc: emptyDocument()}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Msg("Proof file not found, starting empty")
		return b, nil
	case err != nil:
		return nil, fmt.Errorf("OpenFileBackend: reading %s: %w", path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Msg("Proof file is corrupt, reinitialising empty store")
		return b, nil
	}
	if doc.ByHash == nil {
		doc.ByHash = make(map[string]ProofRecord)
	}
	if doc.ByTx == nil {
		doc.ByTx = make(map[string]TxEntry)
	}
	b.doc = doc
	log.Info().Int("proofs", len(doc.ByHash)).Int("transactions", len(doc.ByTx)).Msg("Proof file loaded")
	return b, nil
}

func emptyDocument() fileDocument {
	return fileDocument{
		ByHash: make(map[string]ProofRecord),
		ByTx:   make(map[string]TxEntry),
	}
}

func (b *FileBackend) GetHash(ctx context.Context, fp string) (*ProofRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.doc.ByHash[fp]
	if !ok {
		return nil, nil
	}
	return rec.clone(), nil
}

func (b *FileBackend) GetTx(ctx context.Context, txID string) (*TxEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.doc.ByTx[txID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Commit flushes both indexes in one document write and restores the
// in-memory state if the write fails.
func (b *FileBackend) Commit(ctx context.Context, rec ProofRecord, entry TxEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.doc.ByTx[entry.TxID]; exists {
		return fmt.Errorf("Commit: %s: %w", entry.TxID, ErrTxConflict)
	}
	prev, had := b.doc.ByHash[rec.Fingerprint]
	b.doc.ByTx[entry.TxID] = entry
	b.doc.ByHash[rec.Fingerprint] = *rec.clone()

	if err := b.flush(); err != nil {
		delete(b.doc.ByTx, entry.TxID)
		if had {
			b.doc.ByHash[rec.Fingerprint] = prev
		} else {
			delete(b.doc.ByHash, rec.Fingerprint)
		}
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (b *FileBackend) ListHashes(ctx context.Context) ([]ProofRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ProofRecord, 0, len(b.doc.ByHash))
	for _, rec := range b.doc.ByHash {
		out = append(out, *rec.clone())
	}
	return out, nil
}

func (b *FileBackend) Close() error { return nil }

// flush must be called with mu held.
func (b *FileBackend) flush() error {
	data, err := json.MarshalIndent(b.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding proof document: %w", err)
	}
	if err := writeFileAtomic(b.path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", b.path, err)
	}
	return nil
}

// writeFileAtomic writes via a temp file in the same directory and renames
// it over path, so readers never observe a partial document.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

var _ Backend = (*FileBackend)(nil)
