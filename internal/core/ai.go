package core

import "context"

// EmbeddingProvider maps texts to vectors, one per input, in order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder is implemented by providers that embed search queries
// differently from the documents they are matched against.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// Synthesizer answers a question using only the supplied context block.
type Synthesizer interface {
	Synthesize(ctx context.Context, context string, question string) (string, error)
}

// Recognizer performs optical text recognition on an image-based document.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte) (string, error)
}
