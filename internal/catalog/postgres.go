package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quotedrill/sim-engine/internal/model"
)

// PostgresCatalog implements Catalog using PostgreSQL as the source of
// truth. True values are stored as NUMERIC for exact decimal precision.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog creates a new PostgreSQL-backed catalog.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

// EnsureSchema creates the scenarios table if it does not exist, so a
// fresh database is usable without a separate migration step.
func (c *PostgresCatalog) EnsureSchema(ctx context.Context) error {
	_, err := c.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS scenarios (
			id         TEXT PRIMARY KEY,
			prompt     TEXT NOT NULL,
			unit       TEXT NOT NULL,
			true_value NUMERIC NOT NULL,
			min_value  NUMERIC,
			max_value  NUMERIC,
			hint       TEXT NOT NULL DEFAULT '',
			tags       TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure scenarios schema: %w", err)
	}
	return nil
}

func (c *PostgresCatalog) GetScenario(ctx context.Context, id string) (*model.Scenario, error) {
	var scn model.Scenario
	var trueValue string
	var minValue, maxValue *string

	err := c.pool.QueryRow(ctx,
		`SELECT id, prompt, unit,
		        true_value::TEXT, min_value::TEXT, max_value::TEXT,
		        hint, tags, created_at
		 FROM scenarios WHERE id = $1`, id).
		Scan(&scn.ID, &scn.Prompt, &scn.Unit,
			&trueValue, &minValue, &maxValue,
			&scn.Hint, &scn.Tags, &scn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get scenario %s: %w", id, err)
	}

	scn.TrueValue, _ = decimal.NewFromString(trueValue)
	scn.Min = parseOptionalDecimal(minValue)
	scn.Max = parseOptionalDecimal(maxValue)

	return &scn, nil
}

func (c *PostgresCatalog) ListScenarios(ctx context.Context) ([]model.Scenario, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, prompt, unit,
		        true_value::TEXT, min_value::TEXT, max_value::TEXT,
		        hint, tags, created_at
		 FROM scenarios ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenarios []model.Scenario
	for rows.Next() {
		var scn model.Scenario
		var trueValue string
		var minValue, maxValue *string
		if err := rows.Scan(&scn.ID, &scn.Prompt, &scn.Unit,
			&trueValue, &minValue, &maxValue,
			&scn.Hint, &scn.Tags, &scn.CreatedAt); err != nil {
			return nil, err
		}
		scn.TrueValue, _ = decimal.NewFromString(trueValue)
		scn.Min = parseOptionalDecimal(minValue)
		scn.Max = parseOptionalDecimal(maxValue)
		scenarios = append(scenarios, scn)
	}
	return scenarios, rows.Err()
}

func (c *PostgresCatalog) PutScenario(ctx context.Context, scn *model.Scenario) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO scenarios (id, prompt, unit, true_value, min_value, max_value, hint, tags, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		 SET prompt = EXCLUDED.prompt, unit = EXCLUDED.unit,
		     true_value = EXCLUDED.true_value,
		     min_value = EXCLUDED.min_value, max_value = EXCLUDED.max_value,
		     hint = EXCLUDED.hint, tags = EXCLUDED.tags`,
		scn.ID, scn.Prompt, scn.Unit,
		scn.TrueValue.String(), optionalString(scn.Min), optionalString(scn.Max),
		scn.Hint, scn.Tags, scn.CreatedAt,
	)
	return err
}

func parseOptionalDecimal(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, _ := decimal.NewFromString(*s)
	return &d
}

func optionalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
