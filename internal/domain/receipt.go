package domain

// Record is the semantic unit that gets certified: one receipt's header
// fields and, optionally, its line items.
type Record struct {
	Merchant string `json:"merchant"`
	Date     string `json:"date"`     // ISO date, optionally followed by " HH:MM"
	Currency string `json:"currency"` // 3-letter code
	Subtotal Amount `json:"subtotal"`
	Tax      Amount `json:"tax"`
	Total    Amount `json:"total"`
	Items    []Item `json:"items,omitempty"`
}

// Item is a single receipt line.
type Item struct {
	Name     string  `json:"name"`
	Price    Amount  `json:"price"`
	Quantity *Amount `json:"quantity,omitempty"` // nil or non-positive means 1
}

// Verdict is the AI collaborator's authenticity call.
type Verdict string

const (
	VerdictGenuine    Verdict = "GENUINE"
	VerdictSuspicious Verdict = "SUSPICIOUS"
	VerdictFake       Verdict = "FAKE"
	VerdictUnreadable Verdict = "UNREADABLE"
)

// Extraction is a Record recovered from AI output together with the
// model's own fraud judgement.
type Extraction struct {
	Record     Record   `json:"record"`
	Verdict    Verdict  `json:"verdict"`
	FraudScore int      `json:"fraud_score"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`

	// RawExcerpt is only set for UNREADABLE results.
	RawExcerpt string `json:"raw_excerpt,omitempty"`
}

// Unreadable reports whether the extraction degraded to the sentinel.
func (e Extraction) Unreadable() bool {
	return e.Verdict == VerdictUnreadable
}
