// Package catalog manages the library of estimation scenarios sessions
// quote against. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache), and in-memory (for testing and running
// without a database). A bundled YAML pack seeds the catalog on first
// boot.
package catalog

import (
	"context"
	"fmt"
	"regexp"

	"github.com/quotedrill/sim-engine/internal/model"
)

// Catalog is the scenario persistence interface.
type Catalog interface {
	// GetScenario retrieves a scenario by its ID.
	GetScenario(ctx context.Context, id string) (*model.Scenario, error)

	// ListScenarios returns all scenarios ordered by ID.
	ListScenarios(ctx context.Context) ([]model.Scenario, error)

	// PutScenario inserts or replaces a scenario.
	PutScenario(ctx context.Context, scn *model.Scenario) error
}

var idPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Validate checks a scenario record before it enters the catalog.
func Validate(scn *model.Scenario) error {
	if !idPattern.MatchString(scn.ID) {
		return fmt.Errorf("id must be a lowercase slug")
	}
	if scn.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if scn.Unit == "" {
		return fmt.Errorf("unit is required")
	}
	if !scn.TrueValue.IsPositive() {
		return fmt.Errorf("true_value must be positive, got %s", scn.TrueValue)
	}
	if scn.Min != nil && scn.Max != nil && scn.Min.GreaterThan(*scn.Max) {
		return fmt.Errorf("min %s exceeds max %s", scn.Min, scn.Max)
	}
	return nil
}
