package vectorstore

import (
	"fmt"

	"basegraph.app/radar/core/config"
	"basegraph.app/radar/core/db"
)

// NewEmbedder builds the configured embedder, wrapped in the TTL cache.
func NewEmbedder(cfg config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case "hashing":
		inner = NewHashingEmbedder(cfg.Dimensions)
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embeddings: OPENAI_API_KEY or EMBEDDINGS_API_KEY is required for provider openai")
		}
		inner = NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("embeddings: unsupported provider %q", cfg.Provider)
	}
	return NewCachedEmbedder(inner, cfg.CacheTTLDuration()), nil
}

// New builds the configured Store. q may be nil for the memory backend.
func New(cfg config.VectorStoreConfig, q db.Querier, embedder Embedder) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(embedder), nil
	case "pgvector":
		if q == nil {
			return nil, fmt.Errorf("vector store: pgvector backend needs a database")
		}
		return NewPGStore(q, embedder), nil
	default:
		return nil, fmt.Errorf("vector store: unsupported backend %q", cfg.Backend)
	}
}
