package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrProviderNotFound is returned for an unconfigured OAuth provider name
var ErrProviderNotFound = errors.New("oauth provider not configured")

// OAuthIdentity is the external identity a provider resolves a code to
type OAuthIdentity struct {
	Provider string `json:"provider"`
	Subject  string `json:"subject"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
}

// OAuthProvider exchanges an authorization code for an external identity.
// Providers are registered by name; none ship enabled by default.
type OAuthProvider interface {
	Name() string
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (*OAuthIdentity, error)
}

// OAuthRegistry holds the configured providers
type OAuthRegistry struct {
	mu        sync.RWMutex
	providers map[string]OAuthProvider
}

// NewOAuthRegistry creates an empty provider registry
func NewOAuthRegistry() *OAuthRegistry {
	return &OAuthRegistry{providers: make(map[string]OAuthProvider)}
}

// Register adds or replaces a provider
func (r *OAuthRegistry) Register(p OAuthProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name
func (r *OAuthRegistry) Get(name string) (OAuthProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// Names lists the configured provider names sorted
func (r *OAuthRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
