package engine

import "math"

const (
	// fairValueVol is the volatility of the counterparty's log-normal
	// fair-value perturbation.
	fairValueVol = 0.18

	// minUniform floors the first Box-Muller draw so the log stays
	// finite and the sampled value stays strictly positive.
	minUniform = 1e-12
)

// sampleFair draws one counterparty valuation around trueValue.
// Box-Muller: z = sqrt(-2 ln u1) * cos(2π u2), applied as a log-normal
// multiplier exp(σz). Consumes exactly two uniforms from src.
func sampleFair(src Source, trueValue float64) float64 {
	u1 := src.Float64()
	if u1 < minUniform {
		u1 = minUniform
	}
	u2 := src.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return trueValue * math.Exp(fairValueVol*z)
}

// logistic maps a price edge to a trade probability in (0, 1).
func logistic(edge, scale float64) float64 {
	return 1 / (1 + math.Exp(-edge/scale))
}
