package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
)

// AnalysisRow is one Analyze call in <dataset>.receipt_analyses.
type AnalysisRow struct {
	AnalysisID string `bigquery:"analysis_id"` // REQUIRED
	Source     string `bigquery:"source"`      // record | raw_ai_output | image | image_uri
	ImageURI   string `bigquery:"image_uri"`   // NULLABLE

	Merchant    string            `bigquery:"merchant"`
	ReceiptDate bigquery.NullDate `bigquery:"receipt_date"` // DATE, NULLABLE when unparseable
	Currency    string            `bigquery:"currency"`
	Total       *big.Rat          `bigquery:"total"` // NUMERIC

	Fingerprint   string `bigquery:"fingerprint"`
	CanonicalText string `bigquery:"canonical_text"`

	AIVerdict    string  `bigquery:"ai_verdict"`
	AIFraudScore int64   `bigquery:"ai_fraud_score"`
	AIConfidence float64 `bigquery:"ai_confidence"`
	RiskScore    int64   `bigquery:"risk_score"`
	RiskLevel    string  `bigquery:"risk_level"`

	CreatedTS time.Time         `bigquery:"created_ts"`
	Checks    bigquery.NullJSON `bigquery:"checks"` // JSON array of risk checks
}

// CertificationRow is one Certify call in <dataset>.certifications.
type CertificationRow struct {
	CertificationID string    `bigquery:"certification_id"` // REQUIRED
	TxID            string    `bigquery:"tx_id"`
	Fingerprint     string    `bigquery:"fingerprint"`
	Network         string    `bigquery:"network"`
	Duplicate       bool      `bigquery:"duplicate"`
	FirstSeenTx     string    `bigquery:"first_seen_tx"`
	SeenCount       int64     `bigquery:"seen_count"`
	CreatedTS       time.Time `bigquery:"created_ts"`
}
