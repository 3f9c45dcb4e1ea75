package pipeline

import (
	"context"
	"fmt"

	"github.com/TaranshG/Receipt-Identifer/internal/canon"
	"github.com/TaranshG/Receipt-Identifer/internal/extraction"
	"github.com/TaranshG/Receipt-Identifer/internal/logger"
	"github.com/TaranshG/Receipt-Identifer/internal/risk"
)

// AnalysisStep represents a single step in the analysis pipeline.
type AnalysisStep interface {
	Execute(ctx context.Context, state *AnalysisState) error
}

// AnalysisState holds the shared state across all analysis steps.
type AnalysisState struct {
	Input  AnalyzeInput
	Source string

	ImageBytes []byte
	MIMEType   string

	// ModelAsked is false only for a record analysed without an AI collaborator.
	ModelAsked bool
	RawOutput  string

	Result AnalyzeResult
}

// Step 1: FetchImageStep loads an image referenced by URI.
type FetchImageStep struct {
	Images ImageFetcher
}

func (s *FetchImageStep) Execute(ctx context.Context, state *AnalysisState) error {
	switch state.Source {
	case SourceImage:
		state.ImageBytes = state.Input.Image
		state.MIMEType = state.Input.MIMEType
	case SourceImageURI:
		if s.Images == nil {
			return fmt.Errorf("image URIs are not supported without blob storage: %w", ErrInvalidInput)
		}
		data, contentType, err := s.Images.Fetch(ctx, state.Input.ImageURI)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", state.Input.ImageURI, err)
		}
		state.ImageBytes = data
		state.MIMEType = contentType
	}
	return nil
}

// Step 2: CallModelStep obtains raw AI output for the source. Transport
// errors are logged and leave RawOutput empty, which normalizes to
// UNREADABLE.
type CallModelStep struct {
	Extractor Extractor
}

func (s *CallModelStep) Execute(ctx context.Context, state *AnalysisState) error {
	log := logger.FromContext(ctx)

	switch state.Source {
	case SourceRawAIOutput:
		state.ModelAsked = true
		state.RawOutput = state.Input.RawAIOutput
		return nil
	case SourceRecord:
		if s.Extractor == nil {
			return nil
		}
		state.ModelAsked = true
		raw, err := s.Extractor.AssessFields(ctx, *state.Input.Record)
		if err != nil {
			log.Warn().Err(err).Msg("AI assessment failed; treating output as unreadable")
		}
		state.RawOutput = raw
		return nil
	default:
		if s.Extractor == nil {
			return fmt.Errorf("image analysis needs the AI collaborator: %w", ErrInvalidInput)
		}
		state.ModelAsked = true
		raw, err := s.Extractor.ExtractFromImage(ctx, state.ImageBytes, state.MIMEType)
		if err != nil {
			log.Warn().Err(err).Str("mime_type", state.MIMEType).Msg("AI extraction failed; treating output as unreadable")
		}
		state.RawOutput = raw
		return nil
	}
}

// Step 3: NormalizeStep turns raw AI output into an Extraction. A record
// supplied by the caller stays authoritative; the model only adds its
// verdict.
type NormalizeStep struct {
	Normalizer extraction.Normalizer
}

func (s *NormalizeStep) Execute(ctx context.Context, state *AnalysisState) error {
	if state.Source == SourceRecord {
		state.Result.Record = *state.Input.Record
	}
	if !state.ModelAsked {
		return nil
	}

	ext := s.Normalizer.Normalize(state.RawOutput)
	state.Result.Extraction = &ext
	if state.Source != SourceRecord {
		state.Result.Record = ext.Record
	}

	if ext.Unreadable() {
		log := logger.FromContext(ctx)
		log.Warn().
			Str("source", state.Source).
			Str("excerpt", ext.RawExcerpt).
			Msg("AI output could not be parsed")
	}
	return nil
}

// Step 4: FingerprintStep canonicalizes the record.
type FingerprintStep struct{}

func (s *FingerprintStep) Execute(ctx context.Context, state *AnalysisState) error {
	state.Result.CanonicalText, state.Result.Fingerprint = canon.Fingerprint(state.Result.Record)
	return nil
}

// Step 5: RiskStep fuses rule checks with the AI verdict.
type RiskStep struct {
	Engine *risk.Engine
}

func (s *RiskStep) Execute(ctx context.Context, state *AnalysisState) error {
	state.Result.Assessment = s.Engine.ComputeChecks(state.Result.Record)
	state.Result.Risk = s.Engine.Resolve(state.Result.Verdict(), state.Result.Assessment)
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []AnalysisStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...AnalysisStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *AnalysisState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewAnalysisPipeline creates the standard analysis pipeline.
func NewAnalysisPipeline(images ImageFetcher, extractor Extractor, normalizer extraction.Normalizer, engine *risk.Engine) *Pipeline {
	return NewPipeline(
		&FetchImageStep{Images: images},
		&CallModelStep{Extractor: extractor},
		&NormalizeStep{Normalizer: normalizer},
		&FingerprintStep{},
		&RiskStep{Engine: engine},
	)
}

// sourceOf checks that exactly one source is set.
func sourceOf(in AnalyzeInput) (string, error) {
	var sources []string
	if in.Record != nil {
		sources = append(sources, SourceRecord)
	}
	if in.RawAIOutput != "" {
		sources = append(sources, SourceRawAIOutput)
	}
	if len(in.Image) > 0 {
		sources = append(sources, SourceImage)
	}
	if in.ImageURI != "" {
		sources = append(sources, SourceImageURI)
	}

	switch len(sources) {
	case 0:
		return "", fmt.Errorf("one of record, raw_ai_output, image or image_uri is required: %w", ErrInvalidInput)
	case 1:
	default:
		return "", fmt.Errorf("only one source may be given, got %v: %w", sources, ErrInvalidInput)
	}

	if sources[0] == SourceImage {
		if len(in.Image) > MaxImageBytes {
			return "", fmt.Errorf("image exceeds %d bytes: %w", MaxImageBytes, ErrInvalidInput)
		}
		if in.MIMEType == "" {
			return "", fmt.Errorf("mime_type is required with image: %w", ErrInvalidInput)
		}
	}
	return sources[0], nil
}
