// Package model defines the core domain types shared across the simulator.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill sides, always from the maker's (player's) perspective:
// a customer lifting the ask makes the maker a seller.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Spread modes for session settings.
const (
	SpreadPredefined = "predefined" // spread value is an absolute width
	SpreadPercent    = "percent"    // spread value is a percentage of the estimate
)

// Scenario is one estimation drill: a prompt with a hidden true value.
// TrueValue is the settlement/mark value used for scoring; it is never
// shown to the player while a session is active.
type Scenario struct {
	ID        string           `json:"id" db:"id"`
	Prompt    string           `json:"prompt" db:"prompt"`
	Unit      string           `json:"unit" db:"unit"`
	TrueValue decimal.Decimal  `json:"true_value" db:"true_value"`
	Min       *decimal.Decimal `json:"min,omitempty" db:"min_value"`
	Max       *decimal.Decimal `json:"max,omitempty" db:"max_value"`
	Hint      string           `json:"hint,omitempty" db:"hint"`
	Tags      []string         `json:"tags,omitempty" db:"tags"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// Settings is the session configuration. Immutable once an engine is
// constructed from it; a reset builds a fresh engine from the same values.
type Settings struct {
	DurationSec    int             `json:"duration_sec"`
	SpreadMode     string          `json:"spread_mode"`
	SpreadValue    decimal.Decimal `json:"spread_value"`
	InventoryLimit int64           `json:"inventory_limit"`
	RiskAversion   decimal.Decimal `json:"risk_aversion"`
	InvSkew        decimal.Decimal `json:"inv_skew"`
	SpreadWiden    decimal.Decimal `json:"spread_widen"`

	// Seed fixes the counterparty RNG for reproducible sessions.
	// Zero means seed from the clock.
	Seed int64 `json:"seed,omitempty"`
}

// Quote is the player's two-sided market. Valid quotes satisfy
// 0 < bid < ask.
type Quote struct {
	Bid decimal.Decimal `json:"bid"`
	Ask decimal.Decimal `json:"ask"`
}

// Fill is an immutable record of an executed trade.
// Once created, these are never modified or deleted.
// Fair is the counterparty valuation sampled for this submission.
type Fill struct {
	ID         string          `json:"id"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Qty        int64           `json:"qty"`
	ScenarioID string          `json:"scenario_id"`
	Fair       decimal.Decimal `json:"fair"`
	At         time.Time       `json:"at"`
}

// EngineState is the engine's ledger: cash, signed inventory, and the
// append-only fill history. Cash and inventory move together, only
// through the fill-acceptance path. RealizedPnl is carried for
// reporting symmetry; no operation mutates it.
type EngineState struct {
	Cash        decimal.Decimal `json:"cash"`
	Inventory   int64           `json:"inventory"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
	LastMark    decimal.Decimal `json:"last_mark"`
	Fills       []Fill          `json:"fills"`
}

// Valuation is a mark-to-market snapshot of an EngineState against an
// externally supplied mark price.
type Valuation struct {
	Mark         decimal.Decimal `json:"mark"`
	Cash         decimal.Decimal `json:"cash"`
	Inventory    int64           `json:"inventory"`
	Unrealized   decimal.Decimal `json:"unrealized"`
	MarkToMarket decimal.Decimal `json:"mtm"`
	Penalty      decimal.Decimal `json:"penalty"`
	RiskAdjusted decimal.Decimal `json:"risk_adjusted"`
}
