// Package generation provides the completion call to the generation
// collaborator. Failures surface to the caller and are never retried here,
// to avoid duplicate cost and side effects.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid generation configuration")

	// ErrEmptyMessages indicates a generate call with no messages.
	ErrEmptyMessages = errors.New("messages cannot be empty")

	// ErrGenerationFailed indicates a failed completion call.
	ErrGenerationFailed = errors.New("generation failed")
)

// Message is one chat message in the completion request.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Params tunes a single completion call.
type Params struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Result is the outcome of a completion call.
type Result struct {
	Text       string
	TokensUsed int
	Model      string
}

// Config holds configuration for the generation client.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// Generator is the opaque "generate completion" capability the engine calls.
type Generator interface {
	Generate(ctx context.Context, messages []Message, params Params) (Result, error)
}

// Service is an HTTP Generator client.
type Service struct {
	config Config
	client *http.Client
}

// NewService creates a generation client.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Service{
		config: config,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type generateRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type generateResponse struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
	Model      string `json:"model"`
}

// Generate performs one completion call.
func (s *Service) Generate(ctx context.Context, messages []Message, params Params) (Result, error) {
	if len(messages) == 0 {
		return Result{}, ErrEmptyMessages
	}

	body, err := json.Marshal(generateRequest{
		Model:       s.config.Model,
		Messages:    messages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, string(respBody))
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decoding response: %w", err)
	}

	model := parsed.Model
	if model == "" {
		model = s.config.Model
	}
	return Result{
		Text:       parsed.Text,
		TokensUsed: parsed.TokensUsed,
		Model:      model,
	}, nil
}

var _ Generator = (*Service)(nil)
