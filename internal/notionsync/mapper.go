package notionsync

import (
	"time"

	"github.com/jomei/notionapi"

	"github.com/TaranshG/Receipt-Identifer/internal/proofs"
)

// Property names of the proofs database.
const (
	propFingerprint   = "Fingerprint"
	propCanonicalText = "Canonical Text"
	propFirstTx       = "First Transaction"
	propRecentTx      = "Most Recent Transaction"
	propSeenCount     = "Seen Count"
	propDuplicate     = "Duplicate"
	propFirstSeen     = "First Seen"
	propLastSeen      = "Last Seen"
	propMerchant      = "Merchant"
	propCurrency      = "Currency"
	propTotal         = "Total"
	propRiskLevel     = "Risk Level"
	propAIVerdict     = "AI Verdict"
)

// Notion caps a single rich text object at 2000 characters.
const maxRichText = 2000

func richText(s string) []notionapi.RichText {
	if r := []rune(s); len(r) > maxRichText {
		s = string(r[:maxRichText])
	}
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: s,
			},
		},
	}
}

func dateProp(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{
		Date: &notionapi.DateObject{
			Start: &d,
		},
	}
}

// ProofToNotionProperties converts a proof record to Notion page properties.
func ProofToNotionProperties(rec proofs.ProofRecord) notionapi.Properties {
	props := notionapi.Properties{
		propFingerprint: notionapi.TitleProperty{
			Title: richText(rec.Fingerprint),
		},
		propFirstTx: notionapi.RichTextProperty{
			RichText: richText(rec.FirstSeenTx),
		},
		propRecentTx: notionapi.RichTextProperty{
			RichText: richText(rec.MostRecentTx),
		},
		propSeenCount: notionapi.NumberProperty{
			Number: float64(rec.SeenCount),
		},
		propDuplicate: notionapi.CheckboxProperty{
			Checkbox: rec.SeenCount > 1,
		},
	}

	if !rec.FirstSeenAt.IsZero() {
		props[propFirstSeen] = dateProp(rec.FirstSeenAt)
	}
	if !rec.LastSeenAt.IsZero() {
		props[propLastSeen] = dateProp(rec.LastSeenAt)
	}

	if rec.CanonicalText != "" {
		props[propCanonicalText] = notionapi.RichTextProperty{
			RichText: richText(rec.CanonicalText),
		}
	}

	if s := rec.Summary; s != nil {
		if s.Merchant != "" {
			props[propMerchant] = notionapi.RichTextProperty{
				RichText: richText(s.Merchant),
			}
		}
		if s.Currency != "" {
			props[propCurrency] = notionapi.SelectProperty{
				Select: notionapi.Option{Name: s.Currency},
			}
		}
		if s.RiskLevel != "" {
			props[propRiskLevel] = notionapi.SelectProperty{
				Select: notionapi.Option{Name: s.RiskLevel},
			}
		}
		if s.AIVerdict != "" {
			props[propAIVerdict] = notionapi.SelectProperty{
				Select: notionapi.Option{Name: s.AIVerdict},
			}
		}
		props[propTotal] = notionapi.NumberProperty{Number: s.Total.Float()}
	}

	return props
}
