package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quotedrill/sim-engine/internal/model"
)

// CachedCatalog wraps a primary Catalog (PostgreSQL) with a Redis
// read-through cache. Writes go to the primary and refresh the cache;
// reads check Redis first then fall back to the primary.
type CachedCatalog struct {
	primary Catalog
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedCatalog creates a cached wrapper around a primary catalog.
func NewCachedCatalog(primary Catalog, rdb *redis.Client, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (c *CachedCatalog) GetScenario(ctx context.Context, id string) (*model.Scenario, error) {
	// Try cache.
	data, err := c.rdb.Get(ctx, scenarioKey(id)).Bytes()
	if err == nil {
		var scn model.Scenario
		if json.Unmarshal(data, &scn) == nil {
			return &scn, nil
		}
	}

	// Cache miss: read from primary.
	scn, err := c.primary.GetScenario(ctx, id)
	if err != nil {
		return nil, err
	}

	c.cacheScenario(ctx, scn)
	return scn, nil
}

// ListScenarios is a passthrough; the list changes rarely and the
// primary keeps ordering authoritative.
func (c *CachedCatalog) ListScenarios(ctx context.Context) ([]model.Scenario, error) {
	return c.primary.ListScenarios(ctx)
}

func (c *CachedCatalog) PutScenario(ctx context.Context, scn *model.Scenario) error {
	if err := c.primary.PutScenario(ctx, scn); err != nil {
		return err
	}
	c.cacheScenario(ctx, scn)
	return nil
}

func (c *CachedCatalog) cacheScenario(ctx context.Context, scn *model.Scenario) {
	if data, err := json.Marshal(scn); err == nil {
		c.rdb.Set(ctx, scenarioKey(scn.ID), data, c.ttl)
	}
}

func scenarioKey(id string) string { return fmt.Sprintf("scenario:%s", id) }
