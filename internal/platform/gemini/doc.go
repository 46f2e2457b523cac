// Package gemini provides an LLM-backed enrichment provider using Google's
// Gemini API. It serves the fetch-specs capability by asking the model for a
// structured specification table for a part number.
package gemini
