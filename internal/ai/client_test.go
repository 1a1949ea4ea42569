package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  *ClientConfig
		wantErr bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "stub", config: &ClientConfig{Provider: ProviderStub, Dim: 4}},
		{name: "openai", config: &ClientConfig{Provider: ProviderOpenAI, APIKey: "sk-test"}},
		{name: "ollama", config: &ClientConfig{Provider: ProviderOllama}},
		{name: "unknown provider", config: &ClientConfig{Provider: Provider("bedrock")}, wantErr: true},
		{name: "empty provider", config: &ClientConfig{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			if c == nil {
				t.Fatal("NewClient returned a nil client")
			}
		})
	}
}

func TestStubClient(t *testing.T) {
	c := NewStubClient(4)

	vec, err := c.Embed("anything")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("vector length = %d, want 4", len(vec))
	}
	if vec[0] != 1 {
		t.Errorf("vec[0] = %v, want 1", vec[0])
	}
	for i := 1; i < len(vec); i++ {
		if vec[i] != 0 {
			t.Errorf("vec[%d] = %v, want 0", i, vec[i])
		}
	}
	if c.Dim() != 4 {
		t.Errorf("Dim = %d, want 4", c.Dim())
	}

	answer, err := c.Chat(context.Background(), "q", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer == "" {
		t.Error("Chat returned an empty answer")
	}
}

func TestStubClient_NoDim(t *testing.T) {
	c := NewStubClient(0)
	if _, err := c.Embed("anything"); err == nil {
		t.Fatal("expected an error when the dimension is unset")
	}
}

func TestSystemPrompt(t *testing.T) {
	prompt := systemPrompt([]string{"alpha facts", "beta facts"})

	if !strings.Contains(prompt, "Document 1: alpha facts") {
		t.Errorf("prompt missing first document: %q", prompt)
	}
	if !strings.Contains(prompt, "Document 2: beta facts") {
		t.Errorf("prompt missing second document: %q", prompt)
	}
	if !strings.Contains(prompt, "do not know") {
		t.Errorf("prompt missing the refusal instruction: %q", prompt)
	}
	if strings.HasSuffix(prompt, "\n") {
		t.Error("prompt has a trailing newline")
	}
}

func TestRegistry_CachesByKey(t *testing.T) {
	r := NewRegistry()

	a, err := r.Client(&ClientConfig{Provider: ProviderStub, Dim: 4})
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	b, err := r.Client(&ClientConfig{Provider: ProviderStub, Dim: 4})
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	if a != b {
		t.Error("same configuration constructed two clients")
	}

	c, err := r.Client(&ClientConfig{Provider: ProviderOllama, EmbedModel: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	if c == a {
		t.Error("different providers shared one client")
	}
}

func TestRegistry_ErrorNotCached(t *testing.T) {
	r := NewRegistry()

	bad := &ClientConfig{Provider: Provider("nope")}
	if _, err := r.Client(bad); err == nil {
		t.Fatal("expected an error for an unsupported provider")
	}
	// A later valid lookup under a different key still works.
	if _, err := r.Client(&ClientConfig{Provider: ProviderStub, Dim: 2}); err != nil {
		t.Fatalf("Client after failure: %v", err)
	}
}
