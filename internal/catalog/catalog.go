package catalog

import (
	"fmt"
	"os"
	"strings"
)

// Limits holds the four per-provider ceilings. A value of 0 means the
// dimension is unbounded.
type Limits struct {
	RequestsPerMinute int
	TokensPerMinute   int
	RequestsPerDay    int
	TokensPerDay      int
}

// Provider is an immutable descriptor for one chat backend.
type Provider struct {
	ID            string
	DisplayName   string
	ModelID       string
	CredentialKey string
	BaseURL       string
	Limits        Limits
	Description   string
}

// CredentialSource resolves named runtime secrets. Availability is derived
// from credential presence and recomputed per call, never cached.
type CredentialSource interface {
	Lookup(key string) (string, bool)
}

// EnvCredentials reads secrets from process environment variables.
type EnvCredentials struct{}

func (EnvCredentials) Lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Catalog is the static provider registry. It holds no mutable state.
type Catalog struct {
	providers map[string]Provider
	order     []string
	creds     CredentialSource
}

func New(creds CredentialSource) *Catalog {
	if creds == nil {
		creds = EnvCredentials{}
	}
	return newWith(creds, defaultProviders)
}

// NewWithProviders exists for tests that need a synthetic provider set.
func NewWithProviders(creds CredentialSource, providers []Provider) *Catalog {
	if creds == nil {
		creds = EnvCredentials{}
	}
	return newWith(creds, providers)
}

func newWith(creds CredentialSource, providers []Provider) *Catalog {
	c := &Catalog{
		providers: make(map[string]Provider, len(providers)),
		order:     make([]string, 0, len(providers)),
		creds:     creds,
	}
	for _, p := range providers {
		if _, dup := c.providers[p.ID]; dup {
			panic(fmt.Sprintf("catalog: duplicate provider id %q", p.ID))
		}
		c.providers[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c
}

// Get returns the descriptor for id. An unknown id is a programming error,
// not a runtime condition, so it panics rather than returning an error.
func (c *Catalog) Get(id string) Provider {
	p, ok := c.providers[id]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown provider id %q", id))
	}
	return p
}

// Has reports whether id names a known provider.
func (c *Catalog) Has(id string) bool {
	_, ok := c.providers[id]
	return ok
}

// AllIDs returns every provider id in registration order.
func (c *Catalog) AllIDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// IsAvailable reports whether the provider's credential resolves to a
// present runtime secret.
func (c *Catalog) IsAvailable(id string) bool {
	_, ok := c.creds.Lookup(c.Get(id).CredentialKey)
	return ok
}

// AvailableIDs filters AllIDs by credential presence.
func (c *Catalog) AvailableIDs() []string {
	out := make([]string, 0, len(c.order))
	for _, id := range c.order {
		if c.IsAvailable(id) {
			out = append(out, id)
		}
	}
	return out
}

// Credential returns the configured secret for the provider, if present.
func (c *Catalog) Credential(id string) (string, bool) {
	return c.creds.Lookup(c.Get(id).CredentialKey)
}
