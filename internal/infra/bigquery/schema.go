package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
)

var analysesSchema = bigquery.Schema{
	{Name: "analysis_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "source", Type: bigquery.StringFieldType, Required: true},
	{Name: "image_uri", Type: bigquery.StringFieldType},
	{Name: "merchant", Type: bigquery.StringFieldType},
	{Name: "receipt_date", Type: bigquery.DateFieldType},
	{Name: "currency", Type: bigquery.StringFieldType},
	{Name: "total", Type: bigquery.NumericFieldType},
	{Name: "fingerprint", Type: bigquery.StringFieldType, Required: true},
	{Name: "canonical_text", Type: bigquery.StringFieldType},
	{Name: "ai_verdict", Type: bigquery.StringFieldType},
	{Name: "ai_fraud_score", Type: bigquery.IntegerFieldType},
	{Name: "ai_confidence", Type: bigquery.FloatFieldType},
	{Name: "risk_score", Type: bigquery.IntegerFieldType},
	{Name: "risk_level", Type: bigquery.StringFieldType},
	{Name: "created_ts", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "checks", Type: bigquery.JSONFieldType},
}

var certificationsSchema = bigquery.Schema{
	{Name: "certification_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "tx_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "fingerprint", Type: bigquery.StringFieldType, Required: true},
	{Name: "network", Type: bigquery.StringFieldType},
	{Name: "duplicate", Type: bigquery.BooleanFieldType},
	{Name: "first_seen_tx", Type: bigquery.StringFieldType},
	{Name: "seen_count", Type: bigquery.IntegerFieldType},
	{Name: "created_ts", Type: bigquery.TimestampFieldType, Required: true},
}

// EnsureTables creates both archive tables when they do not exist yet.
func (a *Archive) EnsureTables(ctx context.Context) error {
	tables := map[string]bigquery.Schema{
		analysesTable:       analysesSchema,
		certificationsTable: certificationsSchema,
	}
	for name, schema := range tables {
		err := a.client.Dataset(a.datasetID).Table(name).Create(ctx, &bigquery.TableMetadata{Schema: schema})
		if err != nil && !alreadyExists(err) {
			return fmt.Errorf("EnsureTables: creating %s: %w", name, err)
		}
	}
	return nil
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}
