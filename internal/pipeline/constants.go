package pipeline

// Defaults for the AI collaborator and analysis inputs.
const (
	// DefaultModelName is the default Gemini model used for extraction.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultAPIVersion is the Gemini API version.
	DefaultAPIVersion = "v1"

	// MaxImageBytes caps receipt images accepted inline.
	MaxImageBytes = 20 << 20
)

// Analysis sources, recorded on every AnalyzeResult.
const (
	SourceRecord      = "record"
	SourceRawAIOutput = "raw_ai_output"
	SourceImage       = "image"
	SourceImageURI    = "image_uri"
)
