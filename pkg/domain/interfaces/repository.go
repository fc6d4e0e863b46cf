package interfaces

import (
	"context"
)

// Repository defines the interface for data persistence
type Repository interface {
	Records() RecordRepository
	Close() error
}

// Embedder converts text into an embedding vector for similarity search
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
