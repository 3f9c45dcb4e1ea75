// Package bigquery archives analyses and certifications in BigQuery.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const (
	analysesTable       = "receipt_analyses"
	certificationsTable = "certifications"
)

// Archive writes to two tables of one dataset through a shared client.
type Archive struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewArchive dials BigQuery for projectID.
func NewArchive(ctx context.Context, projectID, datasetID string) (*Archive, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewArchive: creating client: %w", err)
	}
	return &Archive{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (a *Archive) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

func (a *Archive) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", a.projectID, a.datasetID, name)
}

// InsertAnalysis uses DML rather than the streaming API so rows are
// immediately visible to ListRecentAnalyses.
func (a *Archive) InsertAnalysis(ctx context.Context, row *AnalysisRow) error {
	q := a.client.Query(`
		INSERT INTO ` + a.table(analysesTable) + ` (
			analysis_id, source, image_uri,
			merchant, receipt_date, currency, total,
			fingerprint, canonical_text,
			ai_verdict, ai_fraud_score, ai_confidence,
			risk_score, risk_level, created_ts, checks
		)
		VALUES (
			@analysis_id, @source, @image_uri,
			@merchant, @receipt_date, @currency, @total,
			@fingerprint, @canonical_text,
			@ai_verdict, @ai_fraud_score, @ai_confidence,
			@risk_score, @risk_level, @created_ts, @checks
		)
	`)

	q.Parameters = []bigquery.QueryParameter{
		{Name: "analysis_id", Value: row.AnalysisID},
		{Name: "source", Value: row.Source},
		{Name: "image_uri", Value: row.ImageURI},
		{Name: "merchant", Value: row.Merchant},
		{Name: "receipt_date", Value: row.ReceiptDate},
		{Name: "currency", Value: row.Currency},
		{Name: "total", Value: row.Total},
		{Name: "fingerprint", Value: row.Fingerprint},
		{Name: "canonical_text", Value: row.CanonicalText},
		{Name: "ai_verdict", Value: row.AIVerdict},
		{Name: "ai_fraud_score", Value: row.AIFraudScore},
		{Name: "ai_confidence", Value: row.AIConfidence},
		{Name: "risk_score", Value: row.RiskScore},
		{Name: "risk_level", Value: row.RiskLevel},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "checks", Value: row.Checks},
	}

	return runDML(ctx, q, "InsertAnalysis")
}

// InsertCertification records one anchoring.
func (a *Archive) InsertCertification(ctx context.Context, row *CertificationRow) error {
	q := a.client.Query(`
		INSERT INTO ` + a.table(certificationsTable) + ` (
			certification_id, tx_id, fingerprint, network,
			duplicate, first_seen_tx, seen_count, created_ts
		)
		VALUES (
			@certification_id, @tx_id, @fingerprint, @network,
			@duplicate, @first_seen_tx, @seen_count, @created_ts
		)
	`)

	q.Parameters = []bigquery.QueryParameter{
		{Name: "certification_id", Value: row.CertificationID},
		{Name: "tx_id", Value: row.TxID},
		{Name: "fingerprint", Value: row.Fingerprint},
		{Name: "network", Value: row.Network},
		{Name: "duplicate", Value: row.Duplicate},
		{Name: "first_seen_tx", Value: row.FirstSeenTx},
		{Name: "seen_count", Value: row.SeenCount},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	return runDML(ctx, q, "InsertCertification")
}

// ListRecentAnalyses returns up to limit analyses, newest first.
func (a *Archive) ListRecentAnalyses(ctx context.Context, limit int) ([]*AnalysisRow, error) {
	if limit <= 0 {
		limit = 20
	}
	q := a.client.Query(`
		SELECT
			analysis_id, source, image_uri,
			merchant, receipt_date, currency, total,
			fingerprint, canonical_text,
			ai_verdict, ai_fraud_score, ai_confidence,
			risk_score, risk_level, created_ts, checks
		FROM ` + a.table(analysesTable) + `
		ORDER BY created_ts DESC
		LIMIT @limit
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentAnalyses: reading query: %w", err)
	}

	var rows []*AnalysisRow
	for {
		var row AnalysisRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentAnalyses: iterating results: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// ListCertifications returns every certification of fp, oldest first.
func (a *Archive) ListCertifications(ctx context.Context, fp string) ([]*CertificationRow, error) {
	q := a.client.Query(`
		SELECT certification_id, tx_id, fingerprint, network, duplicate, first_seen_tx, seen_count, created_ts
		FROM ` + a.table(certificationsTable) + `
		WHERE fingerprint = @fingerprint
		ORDER BY created_ts
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "fingerprint", Value: fp}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCertifications: reading query: %w", err)
	}

	var rows []*CertificationRow
	for {
		var row CertificationRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCertifications: iterating results: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

func runDML(ctx context.Context, q *bigquery.Query, op string) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running insert query: %w", op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}
	return nil
}
