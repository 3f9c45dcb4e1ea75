package pipeline

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/TaranshG/Receipt-Identifer/internal/domain"
)

// GeminiExtractor is the concrete implementation of Extractor that uses Gemini.
type GeminiExtractor struct {
	client *genai.Client
	model  string
	now    func() time.Time
}

// NewGeminiExtractor creates a genai client. Credentials come from the
// environment (GOOGLE_API_KEY, or Vertex AI settings).
func NewGeminiExtractor(ctx context.Context, model, apiVersion string) (*GeminiExtractor, error) {
	if model == "" {
		model = DefaultModelName
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: apiVersion},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiExtractor: create genai client: %w", err)
	}

	return &GeminiExtractor{client: client, model: model, now: time.Now}, nil
}

// ExtractFromImage sends the image inline with the extraction prompt.
func (g *GeminiExtractor) ExtractFromImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildExtractionPrompt(g.now())},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     data,
					},
				},
			},
		},
	}
	return g.generate(ctx, "ExtractFromImage", contents)
}

// AssessFields asks for a verdict on already-known fields.
func (g *GeminiExtractor) AssessFields(ctx context.Context, record domain.Record) (string, error) {
	prompt, err := buildAssessmentPrompt(record, g.now())
	if err != nil {
		return "", err
	}
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	return g.generate(ctx, "AssessFields", contents)
}

func (g *GeminiExtractor) generate(ctx context.Context, op string, contents []*genai.Content) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("%s: generate content: %w", op, err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return "", fmt.Errorf("%s: empty response from model", op)
	}
	return rawText, nil
}
