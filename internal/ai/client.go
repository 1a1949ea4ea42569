package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Client provides embeddings and retrieval-grounded chat.
type Client interface {
	// Embed turns text into a fixed-dimension unit-norm vector. It fails
	// closed: on any backend fault the caller gets an error and no vector.
	Embed(text string) ([]float32, error)

	// Chat answers a query grounded on the given context documents in a
	// single shot; no session state is kept between calls.
	Chat(ctx context.Context, query string, contextDocs []string) (string, error)

	// Dim reports the embedding dimension, 0 when unknown.
	Dim() int
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderOllama   Provider = "ollama"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey     string
	EmbedModel string
	ChatModel  string
	Dim        int
	ProjectID  string
	Provider   Provider
	Location   string
	BaseURL    string // ollama only
}

// NewClient creates a new AI client based on configuration
func NewClient(config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	ctx := context.Background()
	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	case ProviderOllama:
		return NewOllamaClient(config), nil
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// systemPrompt renders the grounded-answer instruction with the retrieved
// documents inlined.
func systemPrompt(contextDocs []string) string {
	var b strings.Builder
	b.WriteString("You are an assistant that answers questions using the reference documents below. ")
	b.WriteString("If the documents do not contain the answer, say you do not know; never make information up.\n\nReference documents:\n")
	for i, doc := range contextDocs {
		fmt.Fprintf(&b, "Document %d: %s\n\n", i+1, doc)
	}
	return strings.TrimRight(b.String(), "\n")
}

// StubClient is a stub implementation of the Client interface for testing
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	return &StubClient{dim: dim}
}

// Embed returns a fixed unit vector of the configured dimension.
func (s *StubClient) Embed(text string) ([]float32, error) {
	if s.dim <= 0 {
		return nil, errors.New("stub dimension not set")
	}
	v := make([]float32, s.dim)
	v[0] = 1
	return v, nil
}

// Chat returns a canned answer naming how much context it was given.
func (s *StubClient) Chat(ctx context.Context, query string, contextDocs []string) (string, error) {
	return fmt.Sprintf("stub answer to %q over %d documents", query, len(contextDocs)), nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}
