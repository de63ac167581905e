package solver

import (
	"fmt"
	"math"
	"sort"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/models"
)

// Ladder budget constants.
const (
	BaseBudgetFraction = 0.01 // of portfolio value at VIX 20, beta 1
	BaselineVIX        = 20.0
	DefaultAlpha       = 0.05
)

// Rung is a half-open OTM band [OTMMin, OTMMax).
type Rung struct {
	Name   string
	OTMMin float64
	OTMMax float64
}

// Contains reports whether otm falls in the band.
func (r Rung) Contains(otm float64) bool {
	return r.OTMMin <= otm && otm < r.OTMMax
}

// DefaultRungs are the four ladder bands, in allocation order.
var DefaultRungs = []Rung{
	{Name: "shallow", OTMMin: 0.05, OTMMax: 0.15},
	{Name: "medium", OTMMin: 0.15, OTMMax: 0.25},
	{Name: "deep", OTMMin: 0.25, OTMMax: 0.40},
	{Name: "catastrophic", OTMMin: 0.40, OTMMax: 1.0},
}

// DefaultAllocations are the minimum-spend fractions per rung.
var DefaultAllocations = []float64{0.05, 0.15, 0.30, 0.50}

// LadderBudget returns V0 * 1% * (vix/20) * max(1, beta). The beta factor
// is floored at 1, so low-beta portfolios get the beta-1 budget.
func LadderBudget(v0, vix, beta float64) float64 {
	return v0 * BaseBudgetFraction * (vix / BaselineVIX) * math.Max(1.0, beta)
}

// ParseAllocations reads rung fractions given either as bare numbers or as
// (otm_min, otm_max, frac) triples, as decoded from a config file. Only the
// fraction of a triple is used; band edges always come from DefaultRungs.
func ParseAllocations(items []interface{}) ([]float64, error) {
	if len(items) == 0 {
		return append([]float64(nil), DefaultAllocations...), nil
	}
	if len(items) != len(DefaultRungs) {
		return nil, apperrors.NewValidationError("allocations", len(items),
			fmt.Sprintf("need %d rung allocations", len(DefaultRungs)))
	}
	out := make([]float64, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case []interface{}:
			if len(v) != 3 {
				return nil, apperrors.NewValidationError("allocations", v, fmt.Sprintf("rung %d: triple needs 3 values", i))
			}
			f, ok := toFloat(v[2])
			if !ok {
				return nil, apperrors.NewValidationError("allocations", v[2], fmt.Sprintf("rung %d: not a number", i))
			}
			out = append(out, f)
		case []float64:
			if len(v) != 3 {
				return nil, apperrors.NewValidationError("allocations", v, fmt.Sprintf("rung %d: triple needs 3 values", i))
			}
			out = append(out, v[2])
		default:
			f, ok := toFloat(item)
			if !ok {
				return nil, apperrors.NewValidationError("allocations", item, fmt.Sprintf("rung %d: not a number", i))
			}
			out = append(out, f)
		}
	}
	return out, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// LadderProblem is the input to a LadderSolver. Sigma, TYears and Alpha
// describe the stress horizon; the budget rule does not use them but they
// are carried for reporting.
type LadderProblem struct {
	Options     []models.PutCandidate
	V0          float64
	S0          float64
	Beta        float64
	Sigma       float64
	TYears      float64
	Alpha       float64
	VIX         float64
	Allocations []float64
	TxCostRate  float64
}

// LadderResult holds quantities aligned with LadderProblem.Options.
type LadderResult struct {
	Quantities []float64 `json:"quantities"`
	TotalCost  float64   `json:"total_cost"`
	Budget     float64   `json:"budget"`
	Method     string    `json:"method"`
}

// LadderSolver sizes a put ladder.
type LadderSolver interface {
	Name() string
	SolveLadder(p LadderProblem) LadderResult
}

// NewLadderSolver returns an exact solver over backend, or the greedy
// allocator when no backend is available.
func NewLadderSolver(backend Backend) LadderSolver {
	if backend == nil {
		return GreedyLadderSolver{}
	}
	return ExactLadderSolver{Backend: backend}
}

// prepared is the shared setup for both solvers.
type prepared struct {
	cost   []float64
	rungs  [][]int
	fracs  []float64
	budget float64
}

func prepare(p LadderProblem) prepared {
	fracs := p.Allocations
	if len(fracs) == 0 {
		fracs = DefaultAllocations
	}
	vix := p.VIX
	if vix == 0 {
		vix = BaselineVIX
	}
	pr := prepared{
		cost:   make([]float64, len(p.Options)),
		rungs:  make([][]int, len(DefaultRungs)),
		fracs:  fracs,
		budget: LadderBudget(p.V0, vix, p.Beta),
	}
	for j, opt := range p.Options {
		pr.cost[j] = opt.Premium * (1 + p.TxCostRate)
		otm := opt.OTM(p.S0)
		for k, r := range DefaultRungs {
			if r.Contains(otm) {
				pr.rungs[k] = append(pr.rungs[k], j)
				break
			}
		}
	}
	return pr
}

func (pr prepared) frac(k int) float64 {
	if k < len(pr.fracs) {
		return pr.fracs[k]
	}
	return 0
}

func (pr prepared) result(x []float64, method string) LadderResult {
	return LadderResult{
		Quantities: x,
		TotalCost:  evaluate(pr.cost, x),
		Budget:     pr.budget,
		Method:     method,
	}
}

// ExactLadderSolver minimizes Σ c·x subject to the total budget cap and a
// minimum spend in every non-empty rung. Any non-optimal outcome falls
// through to the greedy allocator.
type ExactLadderSolver struct {
	Backend Backend
}

func (s ExactLadderSolver) Name() string { return "lp" }

func (s ExactLadderSolver) SolveLadder(p LadderProblem) LadderResult {
	if len(p.Options) == 0 {
		return LadderResult{Quantities: []float64{}, Method: s.Name()}
	}
	pr := prepare(p)

	rows := []Row{{Name: "budget_limit", Coeffs: pr.cost, Sense: LessEq, RHS: pr.budget}}
	for k, idx := range pr.rungs {
		if len(idx) == 0 || pr.frac(k) <= 0 {
			continue
		}
		coeffs := make([]float64, len(pr.cost))
		for _, j := range idx {
			coeffs[j] = pr.cost[j]
		}
		rows = append(rows, Row{
			Name:   "ladder_" + DefaultRungs[k].Name,
			Coeffs: coeffs,
			Sense:  GreaterEq,
			RHS:    pr.budget * pr.frac(k),
		})
	}

	if s.Backend != nil {
		sol, err := s.Backend.Solve(Problem{Name: "vix_ladder", Objective: pr.cost, Rows: rows})
		if err == nil && sol.Status == StatusOptimal {
			return pr.result(sol.X, s.Name())
		}
	}
	return greedy(pr)
}

// GreedyLadderSolver fills each rung independently, cheapest option first,
// until the rung's minimum spend is reached. It ignores the aggregate cap, so
// its total may differ from the LP optimum when allocations do not sum to 1.
type GreedyLadderSolver struct{}

func (GreedyLadderSolver) Name() string { return "greedy" }

func (GreedyLadderSolver) SolveLadder(p LadderProblem) LadderResult {
	if len(p.Options) == 0 {
		return LadderResult{Quantities: []float64{}, Method: "greedy"}
	}
	return greedy(prepare(p))
}

func greedy(pr prepared) LadderResult {
	x := make([]float64, len(pr.cost))
	for k, idx := range pr.rungs {
		frac := pr.frac(k)
		if len(idx) == 0 || frac <= 0 {
			continue
		}
		target := pr.budget * frac

		order := append([]int(nil), idx...)
		sort.SliceStable(order, func(a, b int) bool { return pr.cost[order[a]] < pr.cost[order[b]] })

		var spent float64
		for _, j := range order {
			if spent >= target {
				break
			}
			if pr.cost[j] <= 0 {
				continue
			}
			x[j] = (target - spent) / pr.cost[j]
			spent += pr.cost[j] * x[j]
		}
	}
	return pr.result(x, "greedy")
}
