// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package presolve

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

type substSpy struct {
	calls       int
	impliedFree []int
	fill        int
}

func (s *substSpy) Presolve(m *Matrix, impliedFree []int, log []Action, fillLevel int) []Action {
	s.calls++
	s.impliedFree = append([]int(nil), impliedFree...)
	s.fill = fillLevel
	return log
}

type isolatedSpy struct {
	rows []int
}

func (s *isolatedSpy) Presolve(m *Matrix, row int, log []Action) []Action {
	s.rows = append(s.rows, row)
	return log
}

// singletonFixture builds
//
//	x + y = 5    x ∈ [0,∞) singleton
//	y + z = 8    y ∈ [0,5], z ∈ [0,4]
//
// where x is implied free through the first row and z is kept by its own
// bounds.
func singletonFixture(t *testing.T, opts ...Option) *Matrix {
	t.Helper()
	return mustMatrix(t, 2,
		[]float64{0, 0, 0},
		[]float64{0, 0, 0}, []float64{math.Inf(1), 5, 4},
		[]float64{5, 8}, []float64{5, 8},
		[][]Entry{
			{{0, 1}},
			{{0, 1}, {1, 1}},
			{{1, 1}},
		}, opts...)
}

func TestSingletonEliminated(t *testing.T) {
	m := singletonFixture(t)
	var pass ImpliedFree

	log := pass.Presolve(m, nil, 0)
	require.Len(t, log, 1)
	require.False(t, m.Infeasible())

	act := log[0]
	assert.Equal(t, 0, act.Row)
	assert.Equal(t, 0, act.Col)
	assert.Equal(t, []int{0, 1}, act.RowCols)
	assert.Equal(t, []float64{1, 1}, act.RowElems)
	assert.Nil(t, act.Costs)
	assert.Equal(t, 0.0, act.Clo)
	assert.True(t, math.IsInf(act.Cup, 1))
	assert.Equal(t, 5.0, act.Rlo)
	assert.Equal(t, 5.0, act.Rup)

	// The row is gone from both views and both lists.
	assert.Equal(t, 0, m.ColLen(0))
	assert.Equal(t, 0, m.RowLen(0))
	assert.False(t, m.ColActive(0))
	assert.False(t, m.RowActive(0))
	assert.Equal(t, 1, m.ColLen(1))
	assert.Equal(t, 0.0, m.Coeff(0, 1))
	assert.Equal(t, 1.0, m.Coeff(1, 1))

	// Surviving columns of the dropped row are queued for the next pass.
	assert.Equal(t, []int{0, 1}, m.NextWorklist())
}

func TestSingletonRejectedByUnboundedContribution(t *testing.T) {
	// 2x + y ≤ 10 with x ∈ [0,∞) and y ∈ (-∞,3]: y's unbounded side leaves
	// the implied lower bound on x at -Inf, so x's bound at zero is not
	// implied. y fails symmetrically against its finite upper bound.
	m := mustMatrix(t, 1,
		[]float64{0, 0},
		[]float64{0, math.Inf(-1)}, []float64{math.Inf(1), 3},
		[]float64{math.Inf(-1)}, []float64{10},
		[][]Entry{{{0, 2}}, {{0, 1}}},
	)
	var pass ImpliedFree

	log := pass.Presolve(m, nil, 0)
	assert.Empty(t, log)
	assert.Equal(t, 1, m.ColLen(0))
	assert.Equal(t, 1, m.ColLen(1))
	assert.False(t, m.Infeasible())
}

func TestDefiningRowMinimality(t *testing.T) {
	// x0 is free with two candidate equality rows:
	//
	//	x0 + x1         = 6
	//	x0 +     e + g  = 3    e,g ∈ [0,1]
	//
	// Both coefficients are significant, so the smaller row must be chosen
	// and handed to the substitution collaborator.
	m := mustMatrix(t, 3,
		make([]float64, 6),
		[]float64{math.Inf(-1), math.Inf(-1), 0, 0, 0, 0},
		[]float64{math.Inf(1), math.Inf(1), 1, 1, 1, 1},
		[]float64{6, 3, 3}, []float64{6, 3, 3},
		[][]Entry{
			{{0, 1}, {1, 1}},
			{{0, 1}, {2, 1}},
			{{1, 1}},
			{{1, 1}},
			{{2, 1}},
			{{2, 1}},
		},
	)
	spy := &substSpy{}
	pass := ImpliedFree{Subst: spy}

	log := pass.Presolve(m, nil, 3)
	assert.Empty(t, log) // degree-2 columns are classified, not eliminated

	require.Equal(t, 1, spy.calls)
	assert.Equal(t, 3, spy.fill)
	assert.Equal(t, []int{0, -1, -1, -1, -1, -1}, spy.impliedFree)

	// The chosen row is consumed, so x1 (implied free through the same
	// row) must come away unclassified.
	assert.Equal(t, 1, m.ColLen(2)) // nothing was eliminated
	assert.False(t, m.Infeasible())
}

func TestConsumedRowRejectsLaterColumn(t *testing.T) {
	// Same fixture as above: x1 is free and its only equality rows are the
	// first (consumed by x0) and the third (where its bounds are not
	// implied, since x1 does not appear there). It must be rejected rather
	// than classified against stale activity figures.
	m := mustMatrix(t, 3,
		make([]float64, 6),
		[]float64{math.Inf(-1), math.Inf(-1), 0, 0, 0, 0},
		[]float64{math.Inf(1), math.Inf(1), 1, 1, 1, 1},
		[]float64{6, 3, 3}, []float64{6, 3, 3},
		[][]Entry{
			{{0, 1}, {1, 1}},
			{{0, 1}, {2, 1}},
			{{1, 1}},
			{{1, 1}},
			{{2, 1}},
			{{2, 1}},
		},
	)
	spy := &substSpy{}
	pass := ImpliedFree{Subst: spy}
	pass.Presolve(m, nil, 3)

	require.Equal(t, 1, spy.calls)
	assert.Equal(t, -1, spy.impliedFree[1])
}

func TestSecondSingletonLeftForNextPass(t *testing.T) {
	// x1 + x2 + z = 5 with two implied-free singletons x1, x2 sharing the
	// row. Only one elimination may consume the row; the other column is
	// left (possibly empty) for a later pass.
	m := mustMatrix(t, 2,
		make([]float64, 4),
		[]float64{0, 0, 0, 0}, []float64{5, 4, 1, 1},
		[]float64{5, math.Inf(-1)}, []float64{5, 100},
		[][]Entry{
			{{0, 1}},
			{{0, 1}},
			{{0, 1}, {1, 1}},
			{{1, 1}},
		},
	)
	var pass ImpliedFree

	log := pass.Presolve(m, nil, 0)
	require.Len(t, log, 1)
	assert.Equal(t, 0, log[0].Col)
	assert.Equal(t, 0, log[0].Row)

	// x2 lost its only coefficient when the row went away.
	assert.Equal(t, 0, m.ColLen(1))
	assert.True(t, m.ColActive(1))
	assert.Equal(t, 1, m.ColLen(2))
}

func TestIsolatedRowHandedOff(t *testing.T) {
	// x1 + x2 = 5 where neither column appears elsewhere: dropping the row
	// would strand x2 with no constraint at all, so the row goes to the
	// isolated-row collaborator untouched.
	m := mustMatrix(t, 1,
		[]float64{0, 0},
		[]float64{0, 0}, []float64{5, 5},
		[]float64{5}, []float64{5},
		[][]Entry{{{0, 1}}, {{0, 1}}},
	)
	spy := &isolatedSpy{}
	pass := ImpliedFree{Isolated: spy}

	log := pass.Presolve(m, nil, 0)
	assert.Empty(t, log)
	assert.Equal(t, []int{0}, spy.rows)
	assert.Equal(t, 2, m.RowLen(0))
	assert.Equal(t, 1, m.ColLen(0))
	assert.Equal(t, 1, m.ColLen(1))
}

func TestCostRedistribution(t *testing.T) {
	// min 3x + 5y  s.t.  2x + y = 8, x ∈ [0,10] singleton, y ∈ [0,1].
	// Substituting x = (8-y)/2 out rewrites the objective as 3.5y + 12.
	m := mustMatrix(t, 2,
		[]float64{3, 5, 0},
		[]float64{0, 0, 0}, []float64{10, 1, 1},
		[]float64{8, math.Inf(-1)}, []float64{8, 50},
		[][]Entry{
			{{0, 2}},
			{{0, 1}, {1, 1}},
			{{1, 1}},
		},
	)
	var pass ImpliedFree

	log := pass.Presolve(m, nil, 0)
	require.Len(t, log, 1)
	require.Equal(t, []float64{3, 5}, log[0].Costs)

	assert.True(t, scalar.EqualWithinAbs(m.Bias(), 12, delta))
	assert.True(t, scalar.EqualWithinAbs(m.Cost(1), 3.5, delta))
	assert.Equal(t, 0.0, m.Cost(0))

	// The rewritten objective agrees with the original along the feasible
	// line x = (8-y)/2.
	for _, y := range []float64{0, 0.5, 1} {
		x := (8 - y) / 2
		orig := 3*x + 5*y
		reduced := m.Cost(1)*y + m.Bias()
		assert.True(t, scalar.EqualWithinAbs(orig, reduced, delta))
	}
}

func TestIntegerColumnSkipped(t *testing.T) {
	m := singletonFixture(t, WithIntegerColumns(0))
	var pass ImpliedFree

	log := pass.Presolve(m, nil, 0)
	assert.Empty(t, log)
	assert.Equal(t, 1, m.ColLen(0))
}

func TestInfeasibleRowAbortsScan(t *testing.T) {
	// x + y = 10 with x ∈ [0,2] and y ∈ [0,3]: the activity tops out at 5.
	m := mustMatrix(t, 2,
		[]float64{0, 0, 0},
		[]float64{0, 0, 0}, []float64{2, 3, 1},
		[]float64{10, math.Inf(-1)}, []float64{10, 50},
		[][]Entry{
			{{0, 1}},
			{{0, 1}, {1, 1}},
			{{1, 1}},
		},
	)
	var pass ImpliedFree

	log := pass.Presolve(m, nil, 0)
	assert.Empty(t, log)
	assert.True(t, m.Infeasible())
}

func TestWorklistAndFillLevel(t *testing.T) {
	// An empty worklist scans nothing...
	m := singletonFixture(t)
	m.SetWorklist()
	spy := &substSpy{}
	pass := ImpliedFree{Subst: spy}
	log := pass.Presolve(m, nil, 0)
	assert.Empty(t, log)
	assert.Equal(t, 0, spy.calls) // fill level zero skips substitution

	// ...unless a negative fill level forces a full scan.
	m = singletonFixture(t)
	m.SetWorklist()
	spy = &substSpy{}
	pass = ImpliedFree{Subst: spy}
	log = pass.Presolve(m, nil, -1)
	assert.Len(t, log, 1)
	require.Equal(t, 1, spy.calls)
	assert.Equal(t, -1, spy.fill)
}

func TestRoundTrip(t *testing.T) {
	// min x0 + 2x1 + x2  s.t.
	//
	//	x0 + x1      = 10    x0 ∈ [0,10] singleton, cost 1
	//	     x1 + x2 ≤ 12    x1 ∈ [2,8], x2 ∈ [0,5]
	//	     x2 + x3 =  6    x3 ∈ [0,6] singleton, cost 0
	//
	// Both singletons are implied free. After their elimination the reduced
	// problem is solved at x1 = 2, x2 = 0; postsolve must rebuild a primal
	// solution feasible for the original constraints with the original
	// objective value.
	origCost := []float64{1, 2, 1, 0}
	m := mustMatrix(t, 3,
		origCost,
		[]float64{0, 2, 0, 0}, []float64{10, 8, 5, 6},
		[]float64{10, math.Inf(-1), 6}, []float64{10, 12, 6},
		[][]Entry{
			{{0, 1}},
			{{0, 1}, {1, 1}},
			{{1, 1}, {2, 1}},
			{{2, 1}},
		},
	)
	origA := m.Dense()
	origRlo := []float64{10, math.Inf(-1), 6}
	origRup := []float64{10, 12, 6}

	var pass ImpliedFree
	log := pass.Presolve(m, nil, 0)
	require.Len(t, log, 2)
	require.False(t, m.Infeasible())
	assert.True(t, scalar.EqualWithinAbs(m.Bias(), 10, delta))

	// Solve the reduced problem by inspection: min x1 + x2 over
	// x1 + x2 ≤ 12, x1 ∈ [2,8], x2 ∈ [0,5].
	s := &Solution{
		Sol:     []float64{0, 2, 0, 0},
		RCost:   []float64{0, m.Cost(1), m.Cost(2), 0},
		Act:     []float64{0, 2, 0},
		RowDual: []float64{0, 0, 0},
		ColStat: []Status{Free, AtLower, AtLower, Free},
		RowStat: []Status{Free, Basic, Free},
	}
	redCost := []float64{m.Cost(0), m.Cost(1), m.Cost(2), m.Cost(3)}
	redObj := floats.Dot(redCost, s.Sol) + m.Bias()

	p, err := NewPostMatrix(m, s)
	require.NoError(t, err)
	Postsolve(p, log)

	assert.True(t, p.ColRestored(0))
	assert.True(t, p.ColRestored(3))
	assert.True(t, p.RowRestored(0))
	assert.True(t, p.RowRestored(2))

	assert.True(t, floats.EqualApprox([]float64{8, 2, 0, 6}, s.Sol, delta))
	assert.Equal(t, Basic, s.ColStat[0])
	assert.Equal(t, Basic, s.ColStat[3])

	// Primal feasibility against the original constraints.
	var av mat.VecDense
	av.MulVec(origA, mat.NewVecDense(4, s.Sol))
	for i := 0; i < 3; i++ {
		assert.LessOrEqual(t, origRlo[i]-delta, av.AtVec(i))
		assert.LessOrEqual(t, av.AtVec(i), origRup[i]+delta)
		assert.True(t, scalar.EqualWithinAbs(av.AtVec(i), s.Act[i], delta))
	}

	// The reduced objective plus the folded constant matches the original
	// objective at the reconstructed point.
	assert.True(t, scalar.EqualWithinAbs(floats.Dot(origCost, s.Sol), redObj, delta))
}
