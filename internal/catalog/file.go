package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/quotedrill/sim-engine/internal/model"
)

//go:embed scenarios.yaml
var defaultScenariosYAML []byte

// scenarioRecord is the YAML shape of one catalog entry. Numeric
// fields are strings so values survive the trip into decimal exactly.
type scenarioRecord struct {
	ID        string   `yaml:"id"`
	Prompt    string   `yaml:"prompt"`
	Unit      string   `yaml:"unit"`
	TrueValue string   `yaml:"true_value"`
	Min       string   `yaml:"min"`
	Max       string   `yaml:"max"`
	Hint      string   `yaml:"hint"`
	Tags      []string `yaml:"tags"`
}

type scenarioFile struct {
	Scenarios []scenarioRecord `yaml:"scenarios"`
}

// DefaultScenarios returns the scenario pack bundled into the binary.
func DefaultScenarios() ([]model.Scenario, error) {
	return parseScenarios(defaultScenariosYAML)
}

// LoadFile reads a scenario pack from a YAML file on disk.
func LoadFile(path string) ([]model.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return parseScenarios(data)
}

func parseScenarios(data []byte) ([]model.Scenario, error) {
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenario file: %w", err)
	}
	if len(f.Scenarios) == 0 {
		return nil, fmt.Errorf("scenario file contains no scenarios")
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(f.Scenarios))
	out := make([]model.Scenario, 0, len(f.Scenarios))

	for i, rec := range f.Scenarios {
		scn, err := rec.toScenario(now)
		if err != nil {
			return nil, fmt.Errorf("scenario %d (%q): %w", i, rec.ID, err)
		}
		if seen[scn.ID] {
			return nil, fmt.Errorf("duplicate scenario id %q", scn.ID)
		}
		seen[scn.ID] = true
		out = append(out, scn)
	}
	return out, nil
}

func (r scenarioRecord) toScenario(now time.Time) (model.Scenario, error) {
	var scn model.Scenario

	tv, err := decimal.NewFromString(r.TrueValue)
	if err != nil {
		return scn, fmt.Errorf("invalid true_value %q", r.TrueValue)
	}

	scn = model.Scenario{
		ID:        r.ID,
		Prompt:    r.Prompt,
		Unit:      r.Unit,
		TrueValue: tv,
		Hint:      r.Hint,
		Tags:      r.Tags,
		CreatedAt: now,
	}

	if r.Min != "" {
		v, err := decimal.NewFromString(r.Min)
		if err != nil {
			return scn, fmt.Errorf("invalid min %q", r.Min)
		}
		scn.Min = &v
	}
	if r.Max != "" {
		v, err := decimal.NewFromString(r.Max)
		if err != nil {
			return scn, fmt.Errorf("invalid max %q", r.Max)
		}
		scn.Max = &v
	}

	if err := Validate(&scn); err != nil {
		return scn, err
	}
	return scn, nil
}
