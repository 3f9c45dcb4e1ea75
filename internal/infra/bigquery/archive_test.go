package bigquery

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestAlreadyExists(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"conflict", &googleapi.Error{Code: http.StatusConflict}, true},
		{"wrapped conflict", fmt.Errorf("create: %w", &googleapi.Error{Code: http.StatusConflict}), true},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := alreadyExists(tt.err); got != tt.want {
				t.Errorf("alreadyExists() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTableName(t *testing.T) {
	a := &Archive{projectID: "proj", datasetID: "receipts"}
	if got := a.table(analysesTable); got != "`proj.receipts.receipt_analyses`" {
		t.Errorf("table() = %s", got)
	}
}

// The schemas must cover every column the row structs carry.
func TestSchemasMatchRows(t *testing.T) {
	check := func(t *testing.T, row interface{}, schema []string) {
		t.Helper()
		have := make(map[string]bool)
		for _, name := range schema {
			have[name] = true
		}
		typ := reflect.TypeOf(row)
		for i := 0; i < typ.NumField(); i++ {
			col := strings.Split(typ.Field(i).Tag.Get("bigquery"), ",")[0]
			if !have[col] {
				t.Errorf("%s: column %q missing from schema", typ.Name(), col)
			}
		}
		if typ.NumField() != len(schema) {
			t.Errorf("%s: %d fields, %d schema columns", typ.Name(), typ.NumField(), len(schema))
		}
	}

	var analyses, certs []string
	for _, f := range analysesSchema {
		analyses = append(analyses, f.Name)
	}
	for _, f := range certificationsSchema {
		certs = append(certs, f.Name)
	}
	check(t, AnalysisRow{}, analyses)
	check(t, CertificationRow{}, certs)
}
