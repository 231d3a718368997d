// Package odds implements the warm-up odds game: one-shot bets resolved
// against a stated win probability, priced with a fixed house edge.
// Fair decimal odds for probability p are 1/p; the house offers
// (1/p) * (1 - edge), so the expected payout of any round is
// stake * (1 - edge) regardless of p.
package odds

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ratioScale = 4 // decimal places for odds values
	moneyScale = 2 // decimal places for payouts
	drawScale  = 8
)

var (
	ErrInvalidRatio = errors.New("odds: invalid ratio format")
	ErrInvalidProb  = errors.New("odds: win probability must be in (0, 1)")
	ErrInvalidStake = errors.New("odds: stake must be positive")
	ErrInvalidEdge  = errors.New("odds: house edge must be in [0, 1)")
)

// DefaultHouseEdge is the bookmaker margin applied when none is
// configured.
var DefaultHouseEdge = decimal.NewFromFloat(0.04)

var one = decimal.NewFromInt(1)

// ratioRegex matches ratio odds of the form A:B, read as profit A per
// B staked. Example: 5:2 pays 5 profit on a 2 stake (decimal odds 3.5).
var ratioRegex = regexp.MustCompile(`^(\d+):(\d+)$`)

// ParseRatio parses ratio odds into decimal odds: "A:B" -> 1 + A/B.
func ParseRatio(s string) (decimal.Decimal, error) {
	matches := ratioRegex.FindStringSubmatch(s)
	if matches == nil {
		return decimal.Zero, fmt.Errorf("%w: %q (expected A:B)", ErrInvalidRatio, s)
	}

	num, _ := decimal.NewFromString(matches[1])
	den, _ := decimal.NewFromString(matches[2])
	if !num.IsPositive() || !den.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q (both sides must be positive)", ErrInvalidRatio, s)
	}

	return one.Add(num.Div(den)).Round(ratioScale), nil
}

// ImpliedProb converts ratio odds into the win probability they state:
// "A:B" pays A profit per B staked, so p = B/(A+B).
func ImpliedProb(s string) (decimal.Decimal, error) {
	dec, err := ParseRatio(s)
	if err != nil {
		return decimal.Zero, err
	}
	return one.Div(dec).Round(ratioScale), nil
}

// FairOdds returns the zero-margin decimal odds for a win probability.
func FairOdds(p decimal.Decimal) (decimal.Decimal, error) {
	if err := validProb(p); err != nil {
		return decimal.Zero, err
	}
	return one.Div(p).Round(ratioScale), nil
}

// Offered returns the decimal odds the house quotes for probability p
// after shaving its edge off the fair odds.
func Offered(p, edge decimal.Decimal) (decimal.Decimal, error) {
	if err := validProb(p); err != nil {
		return decimal.Zero, err
	}
	if err := validEdge(edge); err != nil {
		return decimal.Zero, err
	}
	return one.Div(p).Mul(one.Sub(edge)).Round(ratioScale), nil
}

// Source is the uniform randomness the resolver draws from.
type Source interface {
	Float64() float64
}

// Resolver resolves one-shot rounds at a fixed house edge.
type Resolver struct {
	edge decimal.Decimal
	src  Source
}

// NewResolver creates a resolver drawing from src.
func NewResolver(edge decimal.Decimal, src Source) (*Resolver, error) {
	if err := validEdge(edge); err != nil {
		return nil, err
	}
	return &Resolver{edge: edge, src: src}, nil
}

// NewSeededResolver creates a resolver with a math/rand source. Seed 0
// draws a time-based seed.
func NewSeededResolver(edge decimal.Decimal, seed int64) (*Resolver, error) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewResolver(edge, rand.New(rand.NewSource(seed)))
}

// Edge returns the configured house edge.
func (r *Resolver) Edge() decimal.Decimal {
	return r.edge
}

// Result is the outcome of one resolved round.
type Result struct {
	Win     bool            `json:"win"`
	Draw    decimal.Decimal `json:"draw"`
	Offered decimal.Decimal `json:"offered_odds"`
	Payout  decimal.Decimal `json:"payout"`
	Profit  decimal.Decimal `json:"profit"`
}

// Resolve plays one round: win iff the uniform draw lands under p.
// Payout is stake times the offered odds on a win, zero on a loss.
func (r *Resolver) Resolve(p, stake decimal.Decimal) (*Result, error) {
	if err := validProb(p); err != nil {
		return nil, err
	}
	if !stake.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStake, stake)
	}

	offered, err := Offered(p, r.edge)
	if err != nil {
		return nil, err
	}

	draw := r.src.Float64()
	res := &Result{
		Win:     draw < p.InexactFloat64(),
		Draw:    decimal.NewFromFloat(draw).Round(drawScale),
		Offered: offered,
	}
	if res.Win {
		res.Payout = stake.Mul(offered).Round(moneyScale)
		res.Profit = res.Payout.Sub(stake)
	} else {
		res.Payout = decimal.Zero
		res.Profit = stake.Neg()
	}
	return res, nil
}

func validProb(p decimal.Decimal) error {
	if p.LessThanOrEqual(decimal.Zero) || p.GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: %s", ErrInvalidProb, p)
	}
	return nil
}

func validEdge(edge decimal.Decimal) error {
	if edge.IsNegative() || edge.GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: %s", ErrInvalidEdge, edge)
	}
	return nil
}
