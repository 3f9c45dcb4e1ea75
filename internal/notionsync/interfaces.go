package notionsync

import (
	"context"

	"github.com/jomei/notionapi"

	"github.com/TaranshG/Receipt-Identifer/internal/proofs"
)

// NotionService is the subset of the Notion API the export needs.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryPages(ctx context.Context, databaseID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error)
	ArchivePage(ctx context.Context, pageID string) error
}

// ProofLister is the read side of the proof store used by the export.
type ProofLister interface {
	ListAll(ctx context.Context) ([]proofs.ProofRecord, error)
}
