// Package config provides configuration loading for answerd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/answerd/internal/logging"
)

// Config is the root configuration for the answerd process.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     logging.Config    `koanf:"logging"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Generation  GenerationConfig  `koanf:"generation"`
	Engine      EngineConfig      `koanf:"engine"`
	Cache       CacheConfig       `koanf:"cache"`
	Events      EventsConfig      `koanf:"events"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// VectorStoreConfig selects and configures the similarity-search backend.
type VectorStoreConfig struct {
	// Provider is one of "memory", "chromem", "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
	// Collection is the deployment name the backend collection is derived
	// from. Free-form; it is sanitized into the backend's identifier rules.
	Collection string `koanf:"collection"`
	// VectorSize is the embedding dimensionality every record must carry.
	VectorSize int `koanf:"vector_size"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the remote Qdrant store.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey string `koanf:"api_key"`
}

// EmbeddingsConfig configures the embedding collaborator HTTP client.
type EmbeddingsConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

// GenerationConfig configures the generation collaborator HTTP client.
type GenerationConfig struct {
	BaseURL   string        `koanf:"base_url"`
	Model     string        `koanf:"model"`
	APIKey    string        `koanf:"api_key"`
	Timeout   time.Duration `koanf:"timeout"`
	MaxTokens int           `koanf:"max_tokens"`
}

// EngineConfig holds the retrieval and scoring parameters.
type EngineConfig struct {
	SimilarityThreshold float64       `koanf:"similarity_threshold"`
	TopK                int           `koanf:"top_k"`
	HistoryWindow       int           `koanf:"history_window"`
	MaxContextChars     int           `koanf:"max_context_chars"`
	ConfidenceCap       float64       `koanf:"confidence_cap"`
	ConfidenceFloor     float64       `koanf:"confidence_floor"`
	ConfidenceGeneral   float64       `koanf:"confidence_general"`
	RetrievalTimeout    time.Duration `koanf:"retrieval_timeout"`
	GenerationTimeout   time.Duration `koanf:"generation_timeout"`
}

// CacheConfig holds TTLs for the two best-effort caches.
type CacheConfig struct {
	QueryTTL      time.Duration `koanf:"query_ttl"`
	ProcessingTTL time.Duration `koanf:"processing_ttl"`
}

// EventsConfig configures analytics event emission.
type EventsConfig struct {
	// NATSURL enables the NATS emitter when non-empty; otherwise events go
	// to the in-process async emitter only.
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	Buffer        int    `koanf:"buffer"`
}

// ApplyDefaults sets default values for missing configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	c.Logging.ApplyDefaults()

	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "memory"
	}
	if c.VectorStore.VectorSize == 0 {
		c.VectorStore.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "answerd"
	}
	if c.VectorStore.Chromem.Path == "" {
		c.VectorStore.Chromem.Path = "./data/vectorstore"
	}
	if c.VectorStore.Qdrant.Host == "" {
		c.VectorStore.Qdrant.Host = "localhost"
	}
	if c.VectorStore.Qdrant.Port == 0 {
		c.VectorStore.Qdrant.Port = 6334
	}

	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = "http://localhost:8000"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "all-MiniLM-L6-v2"
	}
	if c.Embeddings.Timeout == 0 {
		c.Embeddings.Timeout = 10 * time.Second
	}

	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = "http://localhost:8001"
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = 60 * time.Second
	}
	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = 1024
	}

	if c.Engine.SimilarityThreshold == 0 {
		c.Engine.SimilarityThreshold = 0.7
	}
	if c.Engine.TopK == 0 {
		c.Engine.TopK = 5
	}
	if c.Engine.HistoryWindow == 0 {
		c.Engine.HistoryWindow = 8
	}
	if c.Engine.MaxContextChars == 0 {
		c.Engine.MaxContextChars = 8000
	}
	if c.Engine.ConfidenceCap == 0 {
		c.Engine.ConfidenceCap = 0.95
	}
	if c.Engine.ConfidenceFloor == 0 {
		c.Engine.ConfidenceFloor = 0.1
	}
	if c.Engine.ConfidenceGeneral == 0 {
		c.Engine.ConfidenceGeneral = 0.9
	}
	if c.Engine.RetrievalTimeout == 0 {
		c.Engine.RetrievalTimeout = 5 * time.Second
	}
	if c.Engine.GenerationTimeout == 0 {
		c.Engine.GenerationTimeout = 60 * time.Second
	}

	if c.Cache.QueryTTL == 0 {
		c.Cache.QueryTTL = 5 * time.Minute
	}
	if c.Cache.ProcessingTTL == 0 {
		c.Cache.ProcessingTTL = 24 * time.Hour
	}

	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "answerd.events"
	}
	if c.Events.Buffer == 0 {
		c.Events.Buffer = 256
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}

	switch c.VectorStore.Provider {
	case "memory", "chromem", "qdrant":
	default:
		return fmt.Errorf("invalid vectorstore provider: %q (expected memory, chromem, or qdrant)", c.VectorStore.Provider)
	}
	if c.VectorStore.VectorSize <= 0 {
		return fmt.Errorf("invalid vector size: %d", c.VectorStore.VectorSize)
	}

	if c.Engine.SimilarityThreshold < 0 || c.Engine.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0,1], got %v", c.Engine.SimilarityThreshold)
	}
	if c.Engine.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.Engine.TopK)
	}
	if c.Engine.ConfidenceFloor > c.Engine.ConfidenceCap {
		return fmt.Errorf("confidence floor %v exceeds cap %v", c.Engine.ConfidenceFloor, c.Engine.ConfidenceCap)
	}
	if c.Engine.MaxContextChars <= 0 {
		return fmt.Errorf("max_context_chars must be positive, got %d", c.Engine.MaxContextChars)
	}
	return nil
}
