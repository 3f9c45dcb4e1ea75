package notionsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jomei/notionapi"
)

// Notion allows an average of three requests per second per integration.
const defaultMinInterval = 350 * time.Millisecond

const queryPageSize = 100

// ProofDatabase talks to the Notion database that mirrors the proof store.
// Calls are paced so a full export stays under the API rate limit.
type ProofDatabase struct {
	client      *notionapi.Client
	minInterval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewProofDatabase returns a client authenticated with an integration token.
func NewProofDatabase(token string) *ProofDatabase {
	return &ProofDatabase{
		client:      notionapi.NewClient(notionapi.Token(token)),
		minInterval: defaultMinInterval,
	}
}

// wait blocks until minInterval has passed since the previous call.
func (d *ProofDatabase) wait(ctx context.Context) error {
	d.mu.Lock()
	next := d.last.Add(d.minInterval)
	now := time.Now()
	if next.Before(now) {
		next = now
	}
	d.last = next
	d.mu.Unlock()

	delay := time.Until(next)
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *ProofDatabase) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := d.wait(ctx); err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	page, err := d.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePage: creating page in %s: %w", databaseID, err)
	}
	return page, nil
}

func (d *ProofDatabase) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := d.wait(ctx); err != nil {
		return nil, fmt.Errorf("UpdatePage: %w", err)
	}
	page, err := d.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: updating page %s: %w", pageID, err)
	}
	return page, nil
}

// QueryPages returns one page of database rows starting at cursor ("" for
// the first).
func (d *ProofDatabase) QueryPages(ctx context.Context, databaseID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error) {
	if err := d.wait(ctx); err != nil {
		return nil, fmt.Errorf("QueryPages: %w", err)
	}
	resp, err := d.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), &notionapi.DatabaseQueryRequest{
		StartCursor: cursor,
		PageSize:    queryPageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("QueryPages: querying %s: %w", databaseID, err)
	}
	return resp, nil
}

// ArchivePage moves a page to the Notion trash. Archived pages drop out of
// database queries.
func (d *ProofDatabase) ArchivePage(ctx context.Context, pageID string) error {
	if err := d.wait(ctx); err != nil {
		return fmt.Errorf("ArchivePage: %w", err)
	}
	if _, err := d.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Archived: true,
	}); err != nil {
		return fmt.Errorf("ArchivePage: archiving page %s: %w", pageID, err)
	}
	return nil
}
