package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/sanitize"
)

// ProviderConfig selects and configures a Store backend.
type ProviderConfig struct {
	// Provider is one of "memory", "chromem", "qdrant".
	Provider   string
	VectorSize int
	Chromem    ChromemConfig
	Qdrant     QdrantConfig

	// Collection is the free-form deployment name the backend collection
	// name is derived from. Sanitized into the backend identifier rules;
	// empty falls back to "answerd".
	Collection string
}

// collectionName derives the backend collection name from the free-form
// deployment name.
func (c ProviderConfig) collectionName() string {
	base := c.Collection
	if base == "" {
		base = "answerd"
	}
	return sanitize.CollectionName(base, "chunks")
}

// NewStore constructs the configured backend.
func NewStore(cfg ProviderConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "memory":
		return NewMemoryStore(cfg.VectorSize, logger)
	case "chromem":
		c := cfg.Chromem
		c.VectorSize = cfg.VectorSize
		c.Collection = cfg.collectionName()
		return NewChromemStore(c, logger)
	case "qdrant":
		q := cfg.Qdrant
		q.VectorSize = uint64(cfg.VectorSize)
		q.Collection = cfg.collectionName()
		return NewQdrantStore(q, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
