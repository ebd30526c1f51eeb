package ai

import "context"

// SummarizerService is the interface for AI summarization and attachment
// analysis. Implement this interface to add new AI providers.
type SummarizerService interface {
	// Summarize condenses arbitrary text into a short summary.
	Summarize(ctx context.Context, text string) (string, error)
	// AnalyzeAttachment describes one attachment (image, PDF or generic
	// bytes) as text usable in a message summary.
	AnalyzeAttachment(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// EmbeddingService produces dense embeddings for semantic search.
type EmbeddingService interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// TextService groups everything the ingestion pipeline asks of an AI
// provider.
type TextService interface {
	SummarizerService
	EmbeddingService
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
