// Package engine implements the market-making drill simulator: a
// stochastic counterparty that trades against the player's bid/ask
// quote, with inventory-limited fills and risk-adjusted mark-to-market
// accounting.
//
// The counterparty samples a log-normal fair value around the
// scenario's hidden true value, converts quote edge into trade
// probability through a logistic curve, and resolves fills with a
// probability-threshold gate plus a stochastic draw. Background
// "random flow" trades fire at a small damped baseline rate even when
// the quote offers no edge.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Internal transcendental math uses float64, with results immediately
// converted back to decimal.
package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quotedrill/sim-engine/internal/model"
)

var (
	// ErrInvalidQuote is returned when a submitted quote fails the
	// sanity contract: bid and ask positive, bid < ask, qty >= 1.
	ErrInvalidQuote = errors.New("engine: invalid quote")

	// ErrInvalidSettings is returned by New when session settings are
	// out of contract.
	ErrInvalidSettings = errors.New("engine: invalid settings")

	// MinTick is the smallest price increment. It floors generated
	// half-spreads and bids so suggested quotes stay positive and
	// ordered.
	MinTick = decimal.NewFromFloat(0.01)

	// PriceScale is the number of decimal places for values derived
	// from float64 math.
	PriceScale int32 = 8
)

const (
	// edgeScaleRatio ties the logistic steepness to the scenario's
	// magnitude: scale = max(minEdgeScale, edgeScaleRatio * trueValue).
	edgeScaleRatio = 0.06
	minEdgeScale   = 1.0

	// directionalGate is the activation threshold a damped trade
	// probability must exceed before the stochastic draw is consulted.
	// Both the gate and the draw matter; together they set the
	// directional fill frequency.
	directionalGate = 0.60

	// baseFlowRate is the undamped probability of a background
	// "random flow" trade when no directional trade fires.
	baseFlowRate = 0.06

	// Inventory pressure reduces trade probability linearly at
	// pressureSlope per unit of |inventory|/limit, floored at
	// pressureFloor.
	pressureSlope = 0.35
	pressureFloor = 0.35
)

// riskPenaltyRate scales the inventory penalty inside PnL:
// penalty = riskAversion * |inventory| * riskPenaltyRate * mark.
var riskPenaltyRate = decimal.NewFromFloat(0.01)

// Engine is the simulation core for one session. It is synchronous and
// single-threaded: every operation completes within the call, and the
// caller serializes access.
type Engine struct {
	settings model.Settings
	rng      Source
	state    model.EngineState
}

// New constructs an engine with the default seeded randomness source.
func New(settings model.Settings) (*Engine, error) {
	return NewWithSource(settings, newSource(settings.Seed))
}

// NewWithSource constructs an engine with an injected randomness
// source. Tests use this to drive exact draw sequences.
func NewWithSource(settings model.Settings, src Source) (*Engine, error) {
	if err := validateSettings(settings); err != nil {
		return nil, err
	}
	return &Engine{settings: settings, rng: src}, nil
}

func validateSettings(s model.Settings) error {
	if s.DurationSec < 1 {
		return fmt.Errorf("%w: duration must be at least 1 second, got %d",
			ErrInvalidSettings, s.DurationSec)
	}
	if s.InventoryLimit <= 0 {
		return fmt.Errorf("%w: inventory limit must be positive, got %d",
			ErrInvalidSettings, s.InventoryLimit)
	}
	if s.SpreadMode != model.SpreadPredefined && s.SpreadMode != model.SpreadPercent {
		return fmt.Errorf("%w: unknown spread mode %q", ErrInvalidSettings, s.SpreadMode)
	}
	if s.SpreadValue.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: spread value must be positive, got %s",
			ErrInvalidSettings, s.SpreadValue)
	}
	if s.RiskAversion.IsNegative() || s.InvSkew.IsNegative() || s.SpreadWiden.IsNegative() {
		return fmt.Errorf("%w: risk aversion, inventory skew and spread widen must be non-negative",
			ErrInvalidSettings)
	}
	return nil
}

func validateQuote(q model.Quote, qty int64) error {
	if q.Bid.LessThanOrEqual(decimal.Zero) || q.Ask.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: bid and ask must be positive, got bid=%s ask=%s",
			ErrInvalidQuote, q.Bid, q.Ask)
	}
	if q.Bid.GreaterThanOrEqual(q.Ask) {
		return fmt.Errorf("%w: bid %s must be below ask %s", ErrInvalidQuote, q.Bid, q.Ask)
	}
	if qty < 1 {
		return fmt.Errorf("%w: qty must be at least 1, got %d", ErrInvalidQuote, qty)
	}
	return nil
}

// Settings returns the immutable session settings.
func (e *Engine) Settings() model.Settings {
	return e.settings
}

// State returns a snapshot of the ledger. The fill history is copied
// so callers cannot mutate it.
func (e *Engine) State() model.EngineState {
	st := e.state
	st.Fills = make([]model.Fill, len(e.state.Fills))
	copy(st.Fills, e.state.Fills)
	return st
}

// SubmitQuote runs one round against the counterparty. It returns the
// accepted fill, or (nil, nil) when no trade happens. No-fill covers
// both "counterparty passed" and "rejected by the inventory limit";
// neither is an error.
//
// Draw order is part of the contract: u1 and u2 for the fair-value
// sample, r for the directional gate, then r2 for random flow and r3
// for the flow side only when those branches are reached. Seeded
// determinism depends on this order. Validation happens before any
// draw, so an invalid quote consumes no randomness.
func (e *Engine) SubmitQuote(scn model.Scenario, q model.Quote, qty int64) (*model.Fill, error) {
	if err := validateQuote(q, qty); err != nil {
		return nil, err
	}

	trueValue := scn.TrueValue.InexactFloat64()
	fair := sampleFair(e.rng, trueValue)

	scale := math.Max(minEdgeScale, edgeScaleRatio*trueValue)
	pBuy := logistic(fair-q.Ask.InexactFloat64(), scale)  // customer lifts the ask, maker sells
	pSell := logistic(q.Bid.InexactFloat64()-fair, scale) // customer hits the bid, maker buys

	damp := e.damping()
	dBuy := pBuy * damp
	dSell := pSell * damp

	var side string
	var price decimal.Decimal

	r := e.rng.Float64()
	switch {
	case dBuy > directionalGate && r < dBuy:
		side, price = model.SideSell, q.Ask
	case dSell > directionalGate && r < dSell:
		side, price = model.SideBuy, q.Bid
	default:
		// Background flow trades without edge, at a damped baseline
		// rate, side chosen uniformly.
		if e.rng.Float64() < baseFlowRate*damp {
			if e.rng.Float64() < 0.5 {
				side, price = model.SideBuy, q.Bid
			} else {
				side, price = model.SideSell, q.Ask
			}
		}
	}

	if side == "" {
		return nil, nil
	}

	next, ok := e.inventoryAfter(side, qty)
	if !ok {
		// Hard limit: the whole fill is rejected, nothing changes.
		return nil, nil
	}

	fill := model.Fill{
		ID:         uuid.New().String(),
		Side:       side,
		Price:      price,
		Qty:        qty,
		ScenarioID: scn.ID,
		Fair:       decimal.NewFromFloat(fair).Round(PriceScale),
		At:         time.Now().UTC(),
	}
	e.apply(fill, next, scn.TrueValue)
	return &fill, nil
}

// apply is the only mutation path: cash and inventory move together,
// the fill is appended, and the last mark is refreshed.
func (e *Engine) apply(fill model.Fill, nextInventory int64, trueValue decimal.Decimal) {
	notional := fill.Price.Mul(decimal.NewFromInt(fill.Qty))
	if fill.Side == model.SideBuy {
		e.state.Cash = e.state.Cash.Sub(notional)
	} else {
		e.state.Cash = e.state.Cash.Add(notional)
	}
	e.state.Inventory = nextInventory
	e.state.LastMark = trueValue
	e.state.Fills = append(e.state.Fills, fill)
}

// inventoryAfter computes the position after a fill of qty on side.
// The second return is false when the fill would breach the inventory
// limit. Remaining room is compared against qty directly, never via
// inventory plus qty, so quantities near the int64 range cannot wrap
// the check.
func (e *Engine) inventoryAfter(side string, qty int64) (int64, bool) {
	inv := e.state.Inventory
	held := absInt64(inv)
	towardZero := (side == model.SideBuy && inv < 0) || (side == model.SideSell && inv > 0)
	if towardZero {
		// Crossing back through zero: total room is limit + held.
		if qty-held > e.settings.InventoryLimit {
			return 0, false
		}
	} else if qty > e.settings.InventoryLimit-held {
		return 0, false
	}
	if side == model.SideSell {
		return inv - qty, true
	}
	return inv + qty, true
}

// damping converts inventory pressure into a probability multiplier in
// [pressureFloor, 1].
func (e *Engine) damping() float64 {
	pressure := float64(absInt64(e.state.Inventory)) / float64(e.settings.InventoryLimit)
	d := 1 - pressureSlope*pressure
	if d < pressureFloor {
		return pressureFloor
	}
	if d > 1 {
		return 1
	}
	return d
}

// PnL values the current ledger against an external mark, typically
// the scenario's true value. Pure: no state is touched and no
// randomness is consumed.
func (e *Engine) PnL(mark decimal.Decimal) model.Valuation {
	unrealized := decimal.NewFromInt(e.state.Inventory).Mul(mark)
	mtm := e.state.Cash.Add(unrealized)
	penalty := e.settings.RiskAversion.
		Mul(decimal.NewFromInt(absInt64(e.state.Inventory))).
		Mul(riskPenaltyRate).
		Mul(mark)
	return model.Valuation{
		Mark:         mark,
		Cash:         e.state.Cash,
		Inventory:    e.state.Inventory,
		Unrealized:   unrealized,
		MarkToMarket: mtm,
		Penalty:      penalty,
		RiskAdjusted: mtm.Sub(penalty),
	}
}

// BreakEven returns the mark at which current inventory exactly
// offsets current cash. A flat book has no break-even mark; the second
// return is false.
func (e *Engine) BreakEven() (decimal.Decimal, bool) {
	if e.state.Inventory == 0 {
		return decimal.Zero, false
	}
	be := e.state.Cash.Neg().Div(decimal.NewFromInt(e.state.Inventory))
	return be.Round(PriceScale), true
}

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// DefaultQuote suggests an inventory-aware two-sided market around the
// player's estimate. Long inventory shifts the mid down to encourage
// selling, short inventory shifts it up, and the spread widens as
// |inventory| approaches the limit. Read-only: neither ledger nor RNG
// state is touched.
func (e *Engine) DefaultQuote(estimate decimal.Decimal) model.Quote {
	limit := decimal.NewFromInt(e.settings.InventoryLimit)
	norm := clampDecimal(decimal.NewFromInt(e.state.Inventory).Div(limit), one.Neg(), one)

	half := e.settings.SpreadValue.Div(two)
	if e.settings.SpreadMode == model.SpreadPercent {
		half = estimate.Mul(e.settings.SpreadValue).Div(hundred).Div(two)
	}
	if half.LessThan(MinTick) {
		half = MinTick
	}
	half = half.Mul(one.Add(e.settings.SpreadWiden.Mul(norm.Abs())))

	mid := estimate.Sub(e.settings.InvSkew.Mul(norm).Mul(half))
	bid := mid.Sub(half)
	ask := mid.Add(half)
	if bid.LessThan(MinTick) {
		bid = MinTick
	}
	if ask.LessThanOrEqual(bid) {
		ask = bid.Add(MinTick)
	}
	return model.Quote{Bid: bid.Round(PriceScale), Ask: ask.Round(PriceScale)}
}

func clampDecimal(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
