// Package embeddings provides embedding drivers and the provider fallback
// chain used by the knowledge base. Ships OpenAI (text-embedding-3-small/
// large) and Gemini (text-embedding-004) drivers.
package embeddings

import "context"

// Driver generates vector embeddings for batches of text.
type Driver interface {
	// Kind is the provider identifier ("openai", "gemini").
	Kind() string

	// ModelID is the embedding model identifier. Vectors are only
	// comparable within one model's space, so search must filter stored
	// chunks by this ID.
	ModelID() string

	// Dimensions is the vector width produced by ModelID.
	Dimensions() int

	// Embed generates one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// BatchResult is an embedding batch annotated with the provider that
// actually produced it (relevant when a fallback fired).
type BatchResult struct {
	Vectors    [][]float64
	Provider   string
	Model      string
	Dimensions int
}
