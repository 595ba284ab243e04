package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// Cache holds every setting in memory behind an RWMutex so request paths
// never touch the database for configuration. Writes go through to the
// repository first and update the map only on success.
type Cache struct {
	repo   *Repository
	mu     sync.RWMutex
	values map[string]Setting
}

// NewCache creates an empty cache; call Load before serving
func NewCache(repo *Repository) *Cache {
	return &Cache{repo: repo, values: make(map[string]Setting)}
}

func cacheKey(category, key string) string {
	return category + "." + key
}

// Load replaces the cache contents with the current database state
func (c *Cache) Load(ctx context.Context) error {
	all, err := c.repo.List(ctx, "")
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	values := make(map[string]Setting, len(all))
	for _, s := range all {
		values[cacheKey(s.Category, s.Key)] = s
	}

	c.mu.Lock()
	c.values = values
	c.mu.Unlock()

	log.Info().Int("count", len(values)).Msg("Settings loaded")
	return nil
}

// Get returns the cached setting, if known
func (c *Cache) Get(category, key string) (Setting, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.values[cacheKey(category, key)]
	return s, ok
}

// List returns the cached settings of one category, or all when empty
func (c *Cache) List(category string) []Setting {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Setting, 0, len(c.values))
	for _, s := range c.values {
		if category == "" || s.Category == category {
			out = append(out, s)
		}
	}
	return out
}

// String returns the effective string value, or fallback when unset
func (c *Cache) String(category, key, fallback string) string {
	if s, ok := c.Get(category, key); ok {
		if v, ok := s.Effective(); ok {
			return v
		}
	}
	return fallback
}

// Int returns the effective integer value, or fallback when unset or unparsable
func (c *Cache) Int(category, key string, fallback int) int {
	if s, ok := c.Get(category, key); ok {
		if v, ok := s.Effective(); ok {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return fallback
}

// Float returns the effective float value, or fallback when unset or unparsable
func (c *Cache) Float(category, key string, fallback float64) float64 {
	if s, ok := c.Get(category, key); ok {
		if v, ok := s.Effective(); ok {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				return n
			}
		}
	}
	return fallback
}

// Bool returns the effective boolean value, or fallback when unset or unparsable
func (c *Cache) Bool(category, key string, fallback bool) bool {
	if s, ok := c.Get(category, key); ok {
		if v, ok := s.Effective(); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	return fallback
}

// JSON unmarshals the effective value into out; false when unset or invalid
func (c *Cache) JSON(category, key string, out interface{}) bool {
	s, ok := c.Get(category, key)
	if !ok {
		return false
	}
	v, ok := s.Effective()
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(v), out) == nil
}

// Set validates the value against the setting's declared type, writes it
// through, and refreshes the cache entry.
func (c *Cache) Set(ctx context.Context, category, key string, value *string) (*Setting, error) {
	current, ok := c.Get(category, key)
	if !ok {
		stored, err := c.repo.Get(ctx, category, key)
		if err != nil {
			return nil, err
		}
		current = *stored
	}

	if value != nil {
		if err := validateType(current.DataType, *value); err != nil {
			return nil, err
		}
	}

	updated, err := c.repo.SetValue(ctx, category, key, value)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.values[cacheKey(category, key)] = *updated
	c.mu.Unlock()

	log.Info().
		Str("category", category).
		Str("key", key).
		Bool("requires_restart", updated.RequiresRestart).
		Msg("Setting updated")
	return updated, nil
}

func validateType(dt DataType, value string) error {
	switch dt {
	case TypeInteger:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("%w: expected integer", ErrBadType)
		}
	case TypeFloat:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%w: expected float", ErrBadType)
		}
	case TypeBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: expected boolean", ErrBadType)
		}
	case TypeJSON:
		if !json.Valid([]byte(value)) {
			return fmt.Errorf("%w: expected valid JSON", ErrBadType)
		}
	}
	return nil
}
