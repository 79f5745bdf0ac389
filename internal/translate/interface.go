package translate

import "context"

// Result is one structured translation returned by the remote endpoint.
// Empty strings are valid values.
type Result struct {
	DetectedLanguage string `json:"detected_language"`
	TranslatedText   string `json:"translated_text"`
	OriginalText     string `json:"original_text"`
}

// Translator is the capability the capture pipeline depends on.
type Translator interface {
	// Translate sends image with a target-language hint and returns the
	// structured result. It makes exactly one outbound request and never
	// retries. An empty targetLanguage selects the translator's default.
	Translate(ctx context.Context, image []byte, targetLanguage string) (Result, error)
}
