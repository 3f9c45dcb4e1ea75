package notionsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/TaranshG/Receipt-Identifer/internal/logger"
)

// SyncStats summarises one export run.
type SyncStats struct {
	Created  int
	Updated  int
	Archived int
	Failed   int
}

// SyncProofs mirrors every proof record into a Notion database, one page per
// fingerprint. Existing pages are matched by their Fingerprint title and
// updated in place, so repeated runs converge. Extra pages carrying the same
// fingerprint are archived.
func SyncProofs(ctx context.Context, store ProofLister, notionClient NotionService, notionDBID string, dryRun bool) (SyncStats, error) {
	log := logger.FromContext(ctx)
	var stats SyncStats

	log.Info().
		Bool("dry_run", dryRun).
		Msg("Starting proof sync to Notion")

	records, err := store.ListAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("SyncProofs: listing proofs: %w", err)
	}
	log.Info().Int("proof_count", len(records)).Msg("Retrieved proof records")

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return stats, fmt.Errorf("SyncProofs: %w", err)
	}
	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	// First page per fingerprint wins; later ones are duplicates of it.
	existing := make(map[string]string)
	for _, page := range notionPages {
		fp := extractFingerprint(page)
		if fp == "" {
			continue
		}
		if _, seen := existing[fp]; !seen {
			existing[fp] = string(page.ID)
			continue
		}
		if dryRun {
			log.Info().
				Str("fingerprint", fp).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would archive duplicate Notion page")
			stats.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("fingerprint", fp).
				Str("page_id", string(page.ID)).
				Msg("Failed to archive duplicate Notion page")
			stats.Failed++
			continue
		}
		stats.Archived++
	}

	for _, rec := range records {
		props := ProofToNotionProperties(rec)
		pageID, found := existing[strings.ToLower(rec.Fingerprint)]

		if dryRun {
			action := "create"
			if found {
				action = "update"
				stats.Updated++
			} else {
				stats.Created++
			}
			log.Info().
				Str("fingerprint", rec.Fingerprint).
				Str("action", action).
				Int("seen_count", rec.SeenCount).
				Msg("[DRY RUN] Would sync proof")
			continue
		}

		if found {
			if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
				log.Error().
					Err(err).
					Str("fingerprint", rec.Fingerprint).
					Str("page_id", pageID).
					Msg("Failed to update Notion page")
				stats.Failed++
				continue
			}
			stats.Updated++
			continue
		}

		page, err := notionClient.CreatePage(ctx, notionDBID, props)
		if err != nil {
			log.Error().
				Err(err).
				Str("fingerprint", rec.Fingerprint).
				Msg("Failed to create Notion page")
			stats.Failed++
			continue
		}
		log.Debug().
			Str("fingerprint", rec.Fingerprint).
			Str("page_id", string(page.ID)).
			Msg("Created Notion page")
		stats.Created++
	}

	log.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("archived", stats.Archived).
		Int("failed", stats.Failed).
		Msg("Proof sync completed")

	return stats, nil
}

// queryAllNotionPages pages through the whole database.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		resp, err := notionClient.QueryPages(ctx, databaseID, cursor)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

// extractFingerprint reads the lowercased title of a page, or "".
func extractFingerprint(page notionapi.Page) string {
	prop, ok := page.Properties[propFingerprint]
	if !ok {
		return ""
	}
	var title []notionapi.RichText
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		title = p.Title
	case notionapi.TitleProperty:
		title = p.Title
	}
	if len(title) == 0 {
		return ""
	}
	text := title[0].PlainText
	if text == "" && title[0].Text != nil {
		text = title[0].Text.Content
	}
	return strings.ToLower(strings.TrimSpace(text))
}
