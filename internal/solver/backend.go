// Package solver holds the linear programs used to size put hedges and the
// pluggable backend that solves them.
package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	apperrors "options-hedge/internal/errors"
)

// Status is the terminal state of a solve.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusError      Status = "error"
)

// Sense is the direction of a constraint row.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Row is one linear constraint: Coeffs·x (Sense) RHS.
type Row struct {
	Name   string
	Coeffs []float64
	Sense  Sense
	RHS    float64
}

// Problem is a minimization over nonnegative continuous variables.
type Problem struct {
	Name      string
	Objective []float64
	Rows      []Row
}

// Validate checks dimensions.
func (p Problem) Validate() error {
	n := len(p.Objective)
	for i, r := range p.Rows {
		if len(r.Coeffs) != n {
			return apperrors.NewValidationError("rows", r.Name,
				fmt.Sprintf("row %d has %d coefficients, want %d", i, len(r.Coeffs), n))
		}
	}
	return nil
}

// Solution is what a Backend returns. X is aligned with Problem.Objective and
// is all zeros unless Status is optimal.
type Solution struct {
	Status    Status
	Objective float64
	X         []float64
}

// Backend solves linear programs.
type Backend interface {
	Name() string
	Solve(p Problem) (Solution, error)
}

const DefaultSimplexTolerance = 1e-10

// SimplexBackend solves problems with gonum's simplex implementation.
type SimplexBackend struct {
	Tolerance float64
}

// NewSimplexBackend returns a backend with the default tolerance.
func NewSimplexBackend() *SimplexBackend {
	return &SimplexBackend{Tolerance: DefaultSimplexTolerance}
}

func (b *SimplexBackend) Name() string { return "simplex" }

// Solve converts p to standard form (min c·x, Ax = b, x >= 0) by adding one
// slack per inequality, flipping rows with negative right-hand sides, and
// dropping variables whose column is empty. A non-optimal outcome is reported
// through Solution.Status; the error is non-nil only for malformed input.
func (b *SimplexBackend) Solve(p Problem) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{}, err
	}
	n := len(p.Objective)
	zero := Solution{Status: StatusError, X: make([]float64, n)}

	// Variables that appear in no row are pinned at zero unless their cost is
	// negative, in which case the problem is unbounded.
	var cols []int
	for j := 0; j < n; j++ {
		used := false
		for _, r := range p.Rows {
			if r.Coeffs[j] != 0 {
				used = true
				break
			}
		}
		if used {
			cols = append(cols, j)
		} else if p.Objective[j] < 0 {
			return zero, nil
		}
	}

	var rows []Row
	for _, r := range p.Rows {
		empty := true
		for _, j := range cols {
			if r.Coeffs[j] != 0 {
				empty = false
				break
			}
		}
		if !empty {
			rows = append(rows, r)
			continue
		}
		if !trivially(r) {
			zero.Status = StatusInfeasible
			return zero, nil
		}
	}

	if len(rows) == 0 {
		return Solution{Status: StatusOptimal, X: make([]float64, n)}, nil
	}

	slacks := 0
	for _, r := range rows {
		if r.Sense != Equal {
			slacks++
		}
	}
	width := len(cols) + slacks
	A := mat.NewDense(len(rows), width, nil)
	rhs := make([]float64, len(rows))
	c := make([]float64, width)
	for k, j := range cols {
		c[k] = p.Objective[j]
	}

	slack := len(cols)
	for i, r := range rows {
		sign := 1.0
		if r.RHS < 0 {
			sign = -1.0
		}
		for k, j := range cols {
			A.Set(i, k, sign*r.Coeffs[j])
		}
		switch r.Sense {
		case LessEq:
			A.Set(i, slack, sign)
			slack++
		case GreaterEq:
			A.Set(i, slack, -sign)
			slack++
		}
		rhs[i] = sign * r.RHS
	}

	tol := b.Tolerance
	if tol <= 0 {
		tol = DefaultSimplexTolerance
	}
	opt, x, err := lp.Simplex(c, A, rhs, tol, nil)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			zero.Status = StatusInfeasible
		}
		return zero, nil
	}

	out := make([]float64, n)
	for k, j := range cols {
		out[j] = math.Max(x[k], 0)
	}
	return Solution{Status: StatusOptimal, Objective: opt, X: out}, nil
}

func trivially(r Row) bool {
	switch r.Sense {
	case LessEq:
		return r.RHS >= 0
	case GreaterEq:
		return r.RHS <= 0
	default:
		return r.RHS == 0
	}
}

// evaluate returns coeffs·x.
func evaluate(coeffs, x []float64) float64 {
	var sum float64
	for j := range coeffs {
		sum += coeffs[j] * x[j]
	}
	return sum
}
