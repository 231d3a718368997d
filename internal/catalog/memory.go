package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quotedrill/sim-engine/internal/model"
)

// MemoryCatalog implements Catalog with an in-memory map. Used for
// testing and for development setups without PostgreSQL.
type MemoryCatalog struct {
	mu        sync.RWMutex
	scenarios map[string]*model.Scenario
}

// NewMemoryCatalog creates a new in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		scenarios: make(map[string]*model.Scenario),
	}
}

func (c *MemoryCatalog) GetScenario(_ context.Context, id string) (*model.Scenario, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	scn, ok := c.scenarios[id]
	if !ok {
		return nil, fmt.Errorf("scenario %s not found", id)
	}
	cp := cloneScenario(scn)
	return &cp, nil
}

func (c *MemoryCatalog) ListScenarios(_ context.Context) ([]model.Scenario, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	scenarios := make([]model.Scenario, 0, len(c.scenarios))
	for _, scn := range c.scenarios {
		scenarios = append(scenarios, cloneScenario(scn))
	}
	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ID < scenarios[j].ID })
	return scenarios, nil
}

func (c *MemoryCatalog) PutScenario(_ context.Context, scn *model.Scenario) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := cloneScenario(scn)
	c.scenarios[scn.ID] = &cp
	return nil
}

// cloneScenario deep-copies a scenario so callers cannot reach into
// the catalog's tags slice or bound pointers.
func cloneScenario(s *model.Scenario) model.Scenario {
	out := *s
	if s.Tags != nil {
		out.Tags = append([]string(nil), s.Tags...)
	}
	if s.Min != nil {
		v := *s.Min
		out.Min = &v
	}
	if s.Max != nil {
		v := *s.Max
		out.Max = &v
	}
	return out
}
