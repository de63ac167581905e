package solver

import (
	"fmt"
	"math"

	apperrors "options-hedge/internal/errors"
)

// ShortfallTolerance is the slack below which a scenario counts as covered.
const ShortfallTolerance = 1e-4

// ShortfallPolicy chooses how scenario shortfall slack enters the model.
type ShortfallPolicy string

const (
	// ShortfallPenalized charges each unit of shortfall in the objective.
	// The model is always feasible.
	ShortfallPenalized ShortfallPolicy = "penalized"
	// ShortfallStrict has no slack, so an unreachable floor is reported as
	// infeasible.
	ShortfallStrict ShortfallPolicy = "strict"
)

// ParseShortfallPolicy maps a config string to a policy.
func ParseShortfallPolicy(s string) (ShortfallPolicy, error) {
	switch ShortfallPolicy(s) {
	case ShortfallPenalized, "":
		return ShortfallPenalized, nil
	case ShortfallStrict:
		return ShortfallStrict, nil
	default:
		return "", apperrors.NewValidationError("shortfall_policy", s, "must be penalized or strict")
	}
}

// FloorProblem is the fixed-floor insurance model. Strikes and Scenarios
// label the put candidates and market scenarios; K and P give each strike's
// level and premium, R gives each scenario's return.
type FloorProblem struct {
	Strikes   []string
	Scenarios []string
	K         map[string]float64
	P         map[string]float64
	R         map[string]float64
	Q         float64 // portfolio value
	L         float64 // maximum tolerated loss fraction
}

// Floor returns F = Q(1-L).
func (p FloorProblem) Floor() float64 {
	return p.Q * (1 - p.L)
}

// ScenarioValue returns the unhedged value V[s] = Q(1+r[s]).
func (p FloorProblem) ScenarioValue(s string) float64 {
	return p.Q * (1 + p.R[s])
}

// Payoff returns max(K[i] - V[s], 0).
func (p FloorProblem) Payoff(i, s string) float64 {
	return math.Max(p.K[i]-p.ScenarioValue(s), 0)
}

// Validate checks that every label has its inputs.
func (p FloorProblem) Validate() error {
	for _, i := range p.Strikes {
		if _, ok := p.K[i]; !ok {
			return apperrors.NewValidationError("K", i, "missing strike level")
		}
		if _, ok := p.P[i]; !ok {
			return apperrors.NewValidationError("P", i, "missing premium")
		}
	}
	for _, s := range p.Scenarios {
		if _, ok := p.R[s]; !ok {
			return apperrors.NewValidationError("R", s, "missing scenario return")
		}
	}
	if p.L < 0 || p.L > 1 {
		return apperrors.NewValidationError("L", p.L, "must be within [0, 1]")
	}
	return nil
}

// FloorResult is the outcome of SolveFixedFloor. On a non-optimal status
// the maps are zero-filled and TotalCost is zero.
type FloorResult struct {
	Status     Status             `json:"status"`
	Quantities map[string]float64 `json:"quantities"`
	Shortfalls map[string]float64 `json:"shortfalls"`
	TotalCost  float64            `json:"total_cost"`
	FloorMet   bool               `json:"floor_met"`
}

// SolveFixedFloor minimizes premium spend subject to
// V[s] + Σ_i Payoff[i,s]·x[i] + z[s] >= F for every scenario s.
func SolveFixedFloor(backend Backend, p FloorProblem, policy ShortfallPolicy) FloorResult {
	result := FloorResult{
		Status:     StatusError,
		Quantities: make(map[string]float64, len(p.Strikes)),
		Shortfalls: make(map[string]float64, len(p.Scenarios)),
	}
	for _, i := range p.Strikes {
		result.Quantities[i] = 0
	}
	for _, s := range p.Scenarios {
		result.Shortfalls[s] = 0
	}
	if backend == nil || p.Validate() != nil {
		return result
	}

	nx := len(p.Strikes)
	nz := 0
	if policy != ShortfallStrict {
		nz = len(p.Scenarios)
	}

	obj := make([]float64, nx+nz)
	for j, i := range p.Strikes {
		obj[j] = p.P[i]
	}
	for k := 0; k < nz; k++ {
		obj[nx+k] = 1
	}

	F := p.Floor()
	rows := make([]Row, 0, len(p.Scenarios))
	for k, s := range p.Scenarios {
		coeffs := make([]float64, nx+nz)
		for j, i := range p.Strikes {
			coeffs[j] = p.Payoff(i, s)
		}
		if nz > 0 {
			coeffs[nx+k] = 1
		}
		rows = append(rows, Row{
			Name:   fmt.Sprintf("downside_protection[%s]", s),
			Coeffs: coeffs,
			Sense:  GreaterEq,
			RHS:    F - p.ScenarioValue(s),
		})
	}

	sol, err := backend.Solve(Problem{Name: "fixed_floor", Objective: obj, Rows: rows})
	if err != nil || sol.Status != StatusOptimal {
		if err == nil {
			result.Status = sol.Status
		}
		return result
	}

	result.Status = StatusOptimal
	for j, i := range p.Strikes {
		result.Quantities[i] = sol.X[j]
		result.TotalCost += p.P[i] * sol.X[j]
	}
	result.FloorMet = true
	for k, s := range p.Scenarios {
		var z float64
		if nz > 0 {
			z = sol.X[nx+k]
		}
		result.Shortfalls[s] = z
		if z >= ShortfallTolerance {
			result.FloorMet = false
		}
	}
	return result
}
