package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"

	"github.com/TaranshG/Receipt-Identifer/internal/domain"
	"github.com/TaranshG/Receipt-Identifer/internal/proofs"
)

type mockNotion struct {
	QueryPagesFunc func(ctx context.Context, databaseID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error)

	created  []notionapi.Properties
	updated  map[string]notionapi.Properties
	archived []string
	failOn   string
}

func (m *mockNotion) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.failOn == "create" {
		return nil, errors.New("notion down")
	}
	m.created = append(m.created, properties)
	return &notionapi.Page{ID: notionapi.ObjectID("new-page")}, nil
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.updated == nil {
		m.updated = make(map[string]notionapi.Properties)
	}
	m.updated[pageID] = properties
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (m *mockNotion) QueryPages(ctx context.Context, databaseID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error) {
	if m.QueryPagesFunc != nil {
		return m.QueryPagesFunc(ctx, databaseID, cursor)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (m *mockNotion) ArchivePage(ctx context.Context, pageID string) error {
	m.archived = append(m.archived, pageID)
	return nil
}

type staticLister []proofs.ProofRecord

func (s staticLister) ListAll(ctx context.Context) ([]proofs.ProofRecord, error) {
	return s, nil
}

func page(id, fingerprint string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(id),
		Properties: notionapi.Properties{
			propFingerprint: &notionapi.TitleProperty{
				Title: []notionapi.RichText{{PlainText: fingerprint}},
			},
		},
	}
}

func fp(c byte) string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

func TestSyncProofs_CreatesAndUpdates(t *testing.T) {
	records := staticLister{
		{Fingerprint: fp('a'), FirstSeenTx: "tx1", MostRecentTx: "tx1", SeenCount: 1},
		{Fingerprint: fp('b'), FirstSeenTx: "tx2", MostRecentTx: "tx3", SeenCount: 2},
	}
	calls := 0
	mock := &mockNotion{
		QueryPagesFunc: func(ctx context.Context, databaseID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error) {
			calls++
			if calls == 1 {
				return &notionapi.DatabaseQueryResponse{
					Results:    []notionapi.Page{page("page-b", fp('B'))},
					HasMore:    true,
					NextCursor: "c1",
				}, nil
			}
			if cursor != "c1" {
				t.Errorf("cursor = %q, want c1", cursor)
			}
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{page("page-b2", fp('b'))},
			}, nil
		},
	}

	stats, err := SyncProofs(context.Background(), records, mock, "db", false)
	if err != nil {
		t.Fatalf("SyncProofs: %v", err)
	}
	if calls != 2 {
		t.Errorf("QueryPages called %d times, want 2", calls)
	}
	if stats.Created != 1 || stats.Updated != 1 || stats.Archived != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if _, ok := mock.updated["page-b"]; !ok {
		t.Errorf("expected page-b to be updated, got %v", mock.updated)
	}
	if len(mock.archived) != 1 || mock.archived[0] != "page-b2" {
		t.Errorf("archived = %v, want [page-b2]", mock.archived)
	}
	if len(mock.created) != 1 {
		t.Fatalf("created %d pages, want 1", len(mock.created))
	}
	title := mock.created[0][propFingerprint].(notionapi.TitleProperty)
	if got := title.Title[0].Text.Content; got != fp('a') {
		t.Errorf("created title = %q", got)
	}
}

func TestSyncProofs_DryRunWritesNothing(t *testing.T) {
	records := staticLister{{Fingerprint: fp('a'), SeenCount: 1}}
	mock := &mockNotion{}

	stats, err := SyncProofs(context.Background(), records, mock, "db", true)
	if err != nil {
		t.Fatalf("SyncProofs: %v", err)
	}
	if stats.Created != 1 {
		t.Errorf("Created = %d, want 1", stats.Created)
	}
	if len(mock.created) != 0 || len(mock.updated) != 0 {
		t.Error("dry run must not write to Notion")
	}
}

func TestSyncProofs_CountsFailures(t *testing.T) {
	records := staticLister{{Fingerprint: fp('a'), SeenCount: 1}}
	mock := &mockNotion{failOn: "create"}

	stats, err := SyncProofs(context.Background(), records, mock, "db", false)
	if err != nil {
		t.Fatalf("SyncProofs: %v", err)
	}
	if stats.Failed != 1 || stats.Created != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSyncProofs_QueryError(t *testing.T) {
	mock := &mockNotion{
		QueryPagesFunc: func(ctx context.Context, databaseID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error) {
			return nil, errors.New("unauthorized")
		},
	}
	if _, err := SyncProofs(context.Background(), staticLister{}, mock, "db", false); err == nil {
		t.Fatal("expected error")
	}
}

func TestProofToNotionProperties(t *testing.T) {
	at := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	rec := proofs.ProofRecord{
		Fingerprint:   fp('c'),
		CanonicalText: "merchant=Campus Mart",
		FirstSeenTx:   "tx1",
		MostRecentTx:  "tx2",
		FirstSeenAt:   at,
		LastSeenAt:    at,
		SeenCount:     3,
		Summary: &proofs.Summary{
			Merchant:  "Campus Mart",
			Currency:  "CAD",
			Total:     domain.NewAmount("19.21"),
			RiskLevel: "good",
			AIVerdict: "GENUINE",
		},
	}

	props := ProofToNotionProperties(rec)

	if dup := props[propDuplicate].(notionapi.CheckboxProperty); !dup.Checkbox {
		t.Error("Duplicate should be checked when SeenCount > 1")
	}
	if n := props[propSeenCount].(notionapi.NumberProperty); n.Number != 3 {
		t.Errorf("Seen Count = %v, want 3", n.Number)
	}
	if total := props[propTotal].(notionapi.NumberProperty); total.Number != 19.21 {
		t.Errorf("Total = %v, want 19.21", total.Number)
	}
	if sel := props[propCurrency].(notionapi.SelectProperty); sel.Select.Name != "CAD" {
		t.Errorf("Currency = %q", sel.Select.Name)
	}
	for _, name := range []string{propFirstSeen, propLastSeen, propCanonicalText, propMerchant, propRiskLevel, propAIVerdict} {
		if _, ok := props[name]; !ok {
			t.Errorf("missing property %q", name)
		}
	}
}

func TestProofToNotionProperties_Minimal(t *testing.T) {
	props := ProofToNotionProperties(proofs.ProofRecord{Fingerprint: fp('d'), SeenCount: 1})
	for _, name := range []string{propTotal, propMerchant, propFirstSeen, propCanonicalText} {
		if _, ok := props[name]; ok {
			t.Errorf("unexpected property %q", name)
		}
	}
	if dup := props[propDuplicate].(notionapi.CheckboxProperty); dup.Checkbox {
		t.Error("single certification is not a duplicate")
	}
}
