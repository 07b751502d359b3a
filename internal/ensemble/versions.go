package ensemble

import (
	"context"
	"maps"
	"sync"

	"github.com/local/pdftrio/internal/classifier"
	"github.com/rs/zerolog/log"
)

// ModelVersionCache fetches each remote model's version once per process and keeps it.
// A failed fetch is not cached, so the next request tries again.
type ModelVersionCache struct {
	mu       sync.Mutex
	sources  []classifier.Versioned
	versions map[string]string
}

// NewModelVersionCache seeds the cache with static entries (build and local model
// versions) and the remote models to query.
func NewModelVersionCache(static map[string]string, sources ...classifier.Versioned) *ModelVersionCache {
	v := make(map[string]string, len(static)+len(sources))
	for k, s := range static {
		if s != "" {
			v[k] = s
		}
	}
	return &ModelVersionCache{sources: sources, versions: v}
}

// EnsureLoaded fetches every remote version not yet known. It is idempotent and
// serialized, so concurrent first requests issue a single fetch per model.
func (c *ModelVersionCache) EnsureLoaded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, src := range c.sources {
		name := src.ModelName()
		if _, ok := c.versions[name]; ok {
			continue
		}
		v, err := src.Version(ctx)
		if err != nil {
			return err
		}
		c.versions[name] = v
		log.Info().Str("model", name).Str("version", v).Msg("model version loaded")
	}
	return nil
}

// Snapshot copies the current map.
func (c *ModelVersionCache) Snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.versions)
}
