// Package postgres is a proofs.Backend on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TaranshG/Receipt-Identifer/internal/proofs"
)

// Schema creates the two tables backing the store.
const Schema = `
CREATE TABLE IF NOT EXISTS proof_records (
  fingerprint     TEXT PRIMARY KEY,
  canonical_text  TEXT NOT NULL DEFAULT '',
  summary         JSONB,
  first_seen_tx   TEXT NOT NULL,
  first_seen_at   TIMESTAMPTZ NOT NULL,
  last_seen_at    TIMESTAMPTZ NOT NULL,
  seen_count      INTEGER NOT NULL,
  most_recent_tx  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS proof_transactions (
  tx_id           TEXT PRIMARY KEY,
  fingerprint     TEXT NOT NULL,
  canonical_text  TEXT NOT NULL DEFAULT '',
  created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS proof_transactions_fingerprint_idx ON proof_transactions(fingerprint);
`

// Backend stores proofs through a pgx pool.
type Backend struct {
	DB *pgxpool.Pool
}

// Connect opens a pool for dsn and applies Schema.
func Connect(ctx context.Context, dsn string) (*Backend, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("Connect: parsing dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Connect: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("Connect: applying schema: %w", err)
	}
	return &Backend{DB: pool}, nil
}

func (b *Backend) GetHash(ctx context.Context, fp string) (*proofs.ProofRecord, error) {
	row := b.DB.QueryRow(ctx, `SELECT fingerprint,canonical_text,summary,first_seen_tx,first_seen_at,last_seen_at,seen_count,most_recent_tx
FROM proof_records WHERE fingerprint=$1`, fp)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetHash: %w", err)
	}
	return rec, nil
}

func (b *Backend) GetTx(ctx context.Context, txID string) (*proofs.TxEntry, error) {
	var e proofs.TxEntry
	err := b.DB.QueryRow(ctx, `SELECT tx_id,fingerprint,canonical_text,created_at FROM proof_transactions WHERE tx_id=$1`, txID).
		Scan(&e.TxID, &e.Fingerprint, &e.CanonicalText, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetTx: %w", err)
	}
	return &e, nil
}

// Commit inserts the tx index row and upserts the proof record inside one
// transaction. A tx id that is already indexed rolls both back.
func (b *Backend) Commit(ctx context.Context, rec proofs.ProofRecord, e proofs.TxEntry) error {
	summary, err := encodeSummary(rec.Summary)
	if err != nil {
		return fmt.Errorf("Commit: %w", err)
	}

	err = pgx.BeginFunc(ctx, b.DB, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
INSERT INTO proof_transactions(tx_id,fingerprint,canonical_text,created_at)
VALUES($1,$2,$3,$4)
ON CONFLICT (tx_id) DO NOTHING`, e.TxID, e.Fingerprint, e.CanonicalText, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("indexing tx: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%s: %w", e.TxID, proofs.ErrTxConflict)
		}

		_, err = tx.Exec(ctx, `
INSERT INTO proof_records(fingerprint,canonical_text,summary,first_seen_tx,first_seen_at,last_seen_at,seen_count,most_recent_tx)
VALUES($1,$2,$3::jsonb,$4,$5,$6,$7,$8)
ON CONFLICT (fingerprint) DO UPDATE SET
  canonical_text=EXCLUDED.canonical_text,
  summary=EXCLUDED.summary,
  last_seen_at=EXCLUDED.last_seen_at,
  seen_count=EXCLUDED.seen_count,
  most_recent_tx=EXCLUDED.most_recent_tx
`, rec.Fingerprint, rec.CanonicalText, summary, rec.FirstSeenTx, rec.FirstSeenAt, rec.LastSeenAt, rec.SeenCount, rec.MostRecentTx)
		if err != nil {
			return fmt.Errorf("writing proof: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (b *Backend) ListHashes(ctx context.Context) ([]proofs.ProofRecord, error) {
	rows, err := b.DB.Query(ctx, `SELECT fingerprint,canonical_text,summary,first_seen_tx,first_seen_at,last_seen_at,seen_count,most_recent_tx
FROM proof_records ORDER BY last_seen_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListHashes: %w", err)
	}
	defer rows.Close()

	var out []proofs.ProofRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ListHashes: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (b *Backend) Close() error {
	b.DB.Close()
	return nil
}

func scanRecord(row pgx.Row) (*proofs.ProofRecord, error) {
	var rec proofs.ProofRecord
	var summary []byte
	if err := row.Scan(&rec.Fingerprint, &rec.CanonicalText, &summary, &rec.FirstSeenTx,
		&rec.FirstSeenAt, &rec.LastSeenAt, &rec.SeenCount, &rec.MostRecentTx); err != nil {
		return nil, err
	}
	if len(summary) > 0 {
		var s proofs.Summary
		if err := json.Unmarshal(summary, &s); err != nil {
			return nil, fmt.Errorf("decoding summary: %w", err)
		}
		rec.Summary = &s
	}
	rec.FirstSeenAt = rec.FirstSeenAt.UTC()
	rec.LastSeenAt = rec.LastSeenAt.UTC()
	return &rec, nil
}

// encodeSummary returns nil for a nil summary so the column stays NULL.
func encodeSummary(s *proofs.Summary) (*string, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding summary: %w", err)
	}
	out := string(b)
	return &out, nil
}

var _ proofs.Backend = (*Backend)(nil)
