package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/TaranshG/Receipt-Identifer/internal/domain"
)

const responseSchemaPrompt = "Output STRICT JSON only: a single object with these fields:\n" +
	"- \"merchant\": string\n" +
	"- \"date\": string, \"YYYY-MM-DD\" or \"YYYY-MM-DD HH:MM\"\n" +
	"- \"currency\": string, ISO 4217 code (e.g. \"CAD\")\n" +
	"- \"subtotal\": number\n" +
	"- \"tax\": number\n" +
	"- \"total\": number\n" +
	"- \"items\": array of {\"name\": string, \"price\": number, \"quantity\": number}\n" +
	"- \"verdict\": one of \"GENUINE\", \"SUSPICIOUS\", \"FAKE\"\n" +
	"- \"fraud_score\": integer 0-100 (100 = certainly fabricated)\n" +
	"- \"confidence\": number 0-1\n" +
	"- \"reasons\": array of short strings explaining the verdict\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

// buildExtractionPrompt asks for fields and a fraud judgement from an image.
func buildExtractionPrompt(now time.Time) string {
	var b strings.Builder
	b.WriteString("You are a receipt auditor.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Read the attached receipt image and extract its fields.\n")
	b.WriteString("- Judge whether the receipt looks genuine, edited or fabricated.\n")
	b.WriteString("- Look for inconsistent fonts, misaligned columns, totals that do not add up and implausible tax.\n")
	fmt.Fprintf(&b, "- Today is %s. Do not call a date in the future unless it is after today.\n\n", now.Format("2006-01-02"))
	b.WriteString(responseSchemaPrompt)
	return b.String()
}

// buildAssessmentPrompt asks for a fraud judgement on fields the caller
// already has. The model echoes the fields back.
func buildAssessmentPrompt(record domain.Record, now time.Time) (string, error) {
	fields, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("buildAssessmentPrompt: marshal record: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a receipt auditor.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- The receipt fields below were extracted earlier. Judge whether they describe a genuine purchase.\n")
	b.WriteString("- Copy the fields into your answer unchanged.\n")
	fmt.Fprintf(&b, "- Today is %s. Do not call a date in the future unless it is after today.\n\n", now.Format("2006-01-02"))
	b.WriteString("Fields:\n")
	b.Write(fields)
	b.WriteString("\n\n")
	b.WriteString(responseSchemaPrompt)
	return b.String(), nil
}
