package ai

import "sync"

// Registry caches constructed clients by provider and model so repeated
// lookups share one backend handle. It is a caller-owned resource handle;
// construction through it is idempotent per key.
type Registry struct {
	mu      sync.Mutex
	clients map[string]Client
}

// NewRegistry returns an empty client cache.
func NewRegistry() *Registry {
	return &Registry{clients: map[string]Client{}}
}

func cacheKey(config *ClientConfig) string {
	return string(config.Provider) + "/" + config.EmbedModel + "/" + config.ChatModel
}

// Client returns the cached client for the configuration's provider and
// models, constructing it on first use.
func (r *Registry) Client(config *ClientConfig) (Client, error) {
	if config == nil {
		return NewClient(config) // surfaces the nil-config error
	}

	key := cacheKey(config)

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok {
		return c, nil
	}
	c, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	r.clients[key] = c
	return c, nil
}
