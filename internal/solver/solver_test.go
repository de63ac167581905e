package solver

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/models"
)

func TestSimplexBackendSolvesSmallLP(t *testing.T) {
	b := NewSimplexBackend()
	sol, err := b.Solve(Problem{
		Objective: []float64{1, 1},
		Rows: []Row{
			{Name: "cover", Coeffs: []float64{1, 2}, Sense: GreaterEq, RHS: 4},
			{Name: "cap", Coeffs: []float64{1, 0}, Sense: LessEq, RHS: 3},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 2.0, sol.Objective, 1e-9)
	assert.InDelta(t, 0.0, sol.X[0], 1e-9)
	assert.InDelta(t, 2.0, sol.X[1], 1e-9)
}

func TestSimplexBackendInfeasible(t *testing.T) {
	sol, err := NewSimplexBackend().Solve(Problem{
		Objective: []float64{1},
		Rows:      []Row{{Coeffs: []float64{1}, Sense: LessEq, RHS: -1}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)
	assert.Equal(t, []float64{0}, sol.X)
}

func TestSimplexBackendEmptyColumns(t *testing.T) {
	b := NewSimplexBackend()

	sol, err := b.Solve(Problem{
		Objective: []float64{2, 5},
		Rows:      []Row{{Coeffs: []float64{0, 1}, Sense: GreaterEq, RHS: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, 0.0, sol.X[0])
	assert.InDelta(t, 1.0, sol.X[1], 1e-9)

	sol, err = b.Solve(Problem{
		Objective: []float64{-1, 1},
		Rows:      []Row{{Coeffs: []float64{0, 1}, Sense: GreaterEq, RHS: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusError, sol.Status)

	sol, err = b.Solve(Problem{Objective: []float64{1}})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
}

func TestSimplexBackendRejectsMismatchedRows(t *testing.T) {
	_, err := NewSimplexBackend().Solve(Problem{
		Objective: []float64{1, 2},
		Rows:      []Row{{Name: "bad", Coeffs: []float64{1}}},
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrInputValidation))
}

func exampleFloorProblem() FloorProblem {
	return FloorProblem{
		Strikes:   []string{"K90", "K100"},
		Scenarios: []string{"crash", "mild", "up"},
		K:         map[string]float64{"K90": 90, "K100": 100},
		P:         map[string]float64{"K90": 1.5, "K100": 3.0},
		R:         map[string]float64{"crash": -0.40, "mild": -0.10, "up": 0.10},
		Q:         100,
		L:         0.20,
	}
}

func TestFixedFloorExample(t *testing.T) {
	p := exampleFloorProblem()
	assert.InDelta(t, 80.0, p.Floor(), 1e-12)
	assert.InDelta(t, 60.0, p.ScenarioValue("crash"), 1e-12)

	for _, policy := range []ShortfallPolicy{ShortfallPenalized, ShortfallStrict} {
		t.Run(string(policy), func(t *testing.T) {
			res := SolveFixedFloor(NewSimplexBackend(), p, policy)
			require.Equal(t, StatusOptimal, res.Status)
			assert.Greater(t, res.TotalCost, 0.0)
			assert.True(t, res.FloorMet)

			// K90 pays 30 per unit in the crash for 1.5; K100 pays 40 for 3.0.
			assert.InDelta(t, 20.0/30.0, res.Quantities["K90"], 1e-6)
			assert.InDelta(t, 0.0, res.Quantities["K100"], 1e-6)
			assert.InDelta(t, 1.0, res.TotalCost, 1e-6)

			hedged := p.ScenarioValue("crash") +
				p.Payoff("K90", "crash")*res.Quantities["K90"] +
				p.Payoff("K100", "crash")*res.Quantities["K100"] +
				res.Shortfalls["crash"]
			assert.GreaterOrEqual(t, hedged, p.Floor()-1e-6)
		})
	}
}

func TestFixedFloorUnreachable(t *testing.T) {
	p := exampleFloorProblem()
	p.Strikes = []string{"K50"}
	p.K = map[string]float64{"K50": 50}
	p.P = map[string]float64{"K50": 0.5}

	strict := SolveFixedFloor(NewSimplexBackend(), p, ShortfallStrict)
	assert.Equal(t, StatusInfeasible, strict.Status)
	assert.Zero(t, strict.TotalCost)
	assert.Equal(t, map[string]float64{"K50": 0}, strict.Quantities)
	assert.Len(t, strict.Shortfalls, 3)

	pen := SolveFixedFloor(NewSimplexBackend(), p, ShortfallPenalized)
	assert.Equal(t, StatusOptimal, pen.Status)
	assert.Zero(t, pen.TotalCost)
	assert.False(t, pen.FloorMet)
	assert.InDelta(t, 20.0, pen.Shortfalls["crash"], 1e-6)
}

func TestFixedFloorWithoutBackend(t *testing.T) {
	res := SolveFixedFloor(nil, exampleFloorProblem(), ShortfallPenalized)
	assert.Equal(t, StatusError, res.Status)
	assert.Zero(t, res.TotalCost)
	assert.Len(t, res.Quantities, 2)
}

func TestParseShortfallPolicy(t *testing.T) {
	p, err := ParseShortfallPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ShortfallPenalized, p)

	p, err = ParseShortfallPolicy("strict")
	require.NoError(t, err)
	assert.Equal(t, ShortfallStrict, p)

	_, err = ParseShortfallPolicy("soft")
	assert.Error(t, err)
}

func TestLadderBudgetScaling(t *testing.T) {
	assert.InDelta(t, 10000, LadderBudget(1_000_000, 20, 1.0), 1e-6)
	assert.InDelta(t, 20000, LadderBudget(1_000_000, 40, 1.0), 1e-6)
	assert.InDelta(t, 15000, LadderBudget(1_000_000, 20, 1.5), 1e-6)
	assert.InDelta(t, LadderBudget(1_000_000, 20, 1.0), LadderBudget(1_000_000, 20, 0.5), 1e-9)
}

func TestLadderEmptyInput(t *testing.T) {
	for _, s := range []LadderSolver{NewLadderSolver(NewSimplexBackend()), NewLadderSolver(nil)} {
		res := s.SolveLadder(LadderProblem{V0: 1_000_000, S0: 4000, VIX: 20, Beta: 1})
		assert.Empty(t, res.Quantities)
		assert.Zero(t, res.TotalCost)
		assert.Zero(t, res.Budget)
	}
}

func TestNewLadderSolverProbe(t *testing.T) {
	assert.Equal(t, "greedy", NewLadderSolver(nil).Name())
	assert.Equal(t, "lp", NewLadderSolver(NewSimplexBackend()).Name())
}

func candidates(s0 float64, otms ...float64) []models.PutCandidate {
	out := make([]models.PutCandidate, 0, len(otms))
	for _, otm := range otms {
		out = append(out, models.PutCandidate{
			Strike:      s0 * (1 - otm),
			Premium:     100 * otm,
			ExpiryYears: 90 / 365.25,
		})
	}
	return out
}

func TestLadderSingleRungGreedyMatchesLP(t *testing.T) {
	p := LadderProblem{
		Options: candidates(4000, 0.30, 0.35, 0.27),
		V0:      1_000_000,
		S0:      4000,
		Beta:    1,
		VIX:     20,
	}
	exact := NewLadderSolver(NewSimplexBackend()).SolveLadder(p)
	heur := NewLadderSolver(nil).SolveLadder(p)

	assert.Equal(t, "lp", exact.Method)
	assert.InDelta(t, 3000, exact.TotalCost, 1e-6)
	assert.InDelta(t, exact.TotalCost, heur.TotalCost, 1e-6)
	assert.Equal(t, exact.Budget, heur.Budget)

	// greedy puts everything on the cheapest leg
	assert.InDelta(t, 3000/27.0, heur.Quantities[2], 1e-9)
	assert.Zero(t, heur.Quantities[0])
}

func TestLadderFullChain(t *testing.T) {
	p := LadderProblem{
		Options:     candidates(4000, 0.02, 0.05, 0.10, 0.15, 0.20, 0.25, 0.30, 0.40, 0.55),
		V0:          1_000_000,
		S0:          4000,
		Beta:        1.2,
		VIX:         30,
		TxCostRate:  0.05,
		Allocations: []float64{0.05, 0.15, 0.30, 0.40},
	}
	res := NewLadderSolver(NewSimplexBackend()).SolveLadder(p)
	assert.Equal(t, "lp", res.Method)
	assert.InDelta(t, LadderBudget(1_000_000, 30, 1.2), res.Budget, 1e-9)
	// the minimum is the sum of the rung floors
	assert.InDelta(t, 0.9*res.Budget, res.TotalCost, 1e-4)

	// 2% OTM sits below the first rung and is never bought.
	assert.Zero(t, res.Quantities[0])
}

func TestLadderInfeasibleFallsBackToGreedy(t *testing.T) {
	p := LadderProblem{
		Options:     candidates(4000, 0.10, 0.20),
		V0:          1_000_000,
		S0:          4000,
		Beta:        1,
		VIX:         20,
		Allocations: []float64{0.8, 0.8, 0, 0},
	}
	res := NewLadderSolver(NewSimplexBackend()).SolveLadder(p)
	assert.Equal(t, "greedy", res.Method)
	assert.InDelta(t, 16000, res.TotalCost, 1e-6)
}

func TestParseAllocations(t *testing.T) {
	fr, err := ParseAllocations(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultAllocations, fr)

	fr, err = ParseAllocations([]interface{}{0.1, 0.2, int64(0), 0.7})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0, 0.7}, fr)

	fr, err = ParseAllocations([]interface{}{
		[]interface{}{0.05, 0.15, 0.05},
		[]interface{}{0.15, 0.25, 0.15},
		[]float64{0.25, 0.40, 0.30},
		[]interface{}{0.40, 1.0, 0.50},
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultAllocations, fr)

	_, err = ParseAllocations([]interface{}{0.5, 0.5})
	assert.Error(t, err)
	_, err = ParseAllocations([]interface{}{"a", 0.1, 0.1, 0.1})
	assert.Error(t, err)
}

// Property: the LP allocation never exceeds the budget and meets every
// non-empty rung's minimum spend.
func TestProperty_LadderLPRespectsRungs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("ladder constraints hold", prop.ForAll(
		func(otms []float64, vix, beta float64) bool {
			p := LadderProblem{
				Options: candidates(4000, otms...),
				V0:      1_000_000,
				S0:      4000,
				Beta:    beta,
				VIX:     vix,
			}
			res := ExactLadderSolver{Backend: NewSimplexBackend()}.SolveLadder(p)
			if res.TotalCost > res.Budget*(1+1e-9)+1e-6 {
				return false
			}
			for k, r := range DefaultRungs {
				var spend float64
				found := false
				for j, c := range p.Options {
					if r.Contains(c.OTM(p.S0)) {
						found = true
						spend += c.Premium * res.Quantities[j]
					}
				}
				if found && spend < res.Budget*DefaultAllocations[k]-1e-6 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(6, gen.Float64Range(0.01, 0.6)),
		gen.Float64Range(10, 60),
		gen.Float64Range(0.3, 2.0),
	))

	properties.TestingRun(t)
}
