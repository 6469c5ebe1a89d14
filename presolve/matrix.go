// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package presolve implements a presolve/postsolve transformation pass for
// sparse linear programs: it detects columns whose declared bounds are
// already implied by the constraints referencing them, eliminates such
// columns together with a defining equality row, and later reconstructs the
// eliminated rows and columns, with exact primal values, reduced costs and
// basis status, from a replayable action log.
package presolve

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Entry is one sparse coefficient of a column.
type Entry struct {
	Row int
	Val float64
}

// Matrix is the shared mutable problem state threaded through presolve
// passes.
//
// Coefficients are held twice, row-major and column-major, in loosely packed
// parallel slices: the entries of column j live at
// colRow/colElem[colStart[j] : colStart[j]+colLen[j]] and symmetrically for
// rows. The two views must stay consistent under mutation: deleting a
// coefficient from a row requires the matching delete from its column.
// Rows and columns that become empty keep their storage slots but leave the
// active doubly-linked lists, so postsolve can reuse the slots later.
//
// The cost vector is a minimization objective; a maximization sense only
// matters on the postsolve side (see Solution).
type Matrix struct {
	nrows, ncols int

	// column-major view
	colStart []int
	colLen   []int
	colRow   []int
	colElem  []float64

	// row-major view
	rowStart []int
	rowLen   []int
	rowCol   []int
	rowElem  []float64

	clo, cup []float64 // column bounds
	rlo, rup []float64 // row activity bounds
	cost     []float64 // objective coefficients
	bias     float64   // constant folded out of the objective
	integer  []bool

	rowLink, colLink linkList

	// colsToDo is the worklist of candidate columns for the current pass;
	// nextToDo collects columns touched by eliminations for the next one.
	colsToDo []int
	nextToDo []int
	queued   []bool

	feasTol float64
	ztolZB  float64
	ztolDJ  float64

	infeasible bool
	logger     Logger
}

// NewMatrix builds the presolve problem state from column-wise coefficients.
// cost, clo, cup and cols share the column dimension; rlo and rup share the
// row dimension nrows. The default worklist holds every column in index
// order.
func NewMatrix(nrows int, cost, clo, cup, rlo, rup []float64, cols [][]Entry, opts ...Option) (*Matrix, error) {
	ncols := len(cost)
	switch {
	case nrows < 0:
		return nil, errors.Errorf("negative row count %d", nrows)
	case len(clo) != ncols || len(cup) != ncols:
		return nil, errors.Errorf("column bounds sized %d,%d do not match %d columns", len(clo), len(cup), ncols)
	case len(rlo) != nrows || len(rup) != nrows:
		return nil, errors.Errorf("row bounds sized %d,%d do not match %d rows", len(rlo), len(rup), nrows)
	case len(cols) != ncols:
		return nil, errors.Errorf("coefficient columns sized %d do not match %d columns", len(cols), ncols)
	}

	nel := 0
	for j, col := range cols {
		for _, e := range col {
			if e.Row < 0 || e.Row >= nrows {
				return nil, errors.Errorf("column %d references row %d of %d", j, e.Row, nrows)
			}
		}
		nel += len(col)
	}

	m := &Matrix{
		nrows: nrows, ncols: ncols,
		colStart: make([]int, ncols),
		colLen:   make([]int, ncols),
		colRow:   make([]int, nel),
		colElem:  make([]float64, nel),
		rowStart: make([]int, nrows),
		rowLen:   make([]int, nrows),
		rowCol:   make([]int, nel),
		rowElem:  make([]float64, nel),
		clo:      dup(clo), cup: dup(cup),
		rlo: dup(rlo), rup: dup(rup),
		cost:    dup(cost),
		integer: make([]bool, ncols),
		rowLink: newLinkList(nrows),
		colLink: newLinkList(ncols),
		queued:  make([]bool, ncols),
		feasTol: 1.0e-8,
		ztolZB:  1.0e-11,
		ztolDJ:  1.0e-12,
		logger:  noopLogger{},
	}

	// column-major fill
	k := 0
	for j, col := range cols {
		m.colStart[j] = k
		m.colLen[j] = len(col)
		for _, e := range col {
			m.colRow[k] = e.Row
			m.colElem[k] = e.Val
			k++
		}
	}

	// row-major fill from the column view
	for _, col := range cols {
		for _, e := range col {
			m.rowLen[e.Row]++
		}
	}
	k = 0
	for i := 0; i < nrows; i++ {
		m.rowStart[i] = k
		k += m.rowLen[i]
		m.rowLen[i] = 0
	}
	for j, col := range cols {
		for _, e := range col {
			at := m.rowStart[e.Row] + m.rowLen[e.Row]
			m.rowCol[at] = j
			m.rowElem[at] = e.Val
			m.rowLen[e.Row]++
		}
	}

	m.colsToDo = make([]int, ncols)
	for j := range m.colsToDo {
		m.colsToDo[j] = j
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, errors.Wrap(err, "applying matrix option")
		}
	}
	return m, nil
}

func dup(s []float64) []float64 {
	d := make([]float64, len(s))
	copy(d, s)
	return d
}

// Dims returns the declared problem dimensions, counting rows and columns
// that later passes may have emptied.
func (m *Matrix) Dims() (rows, cols int) { return m.nrows, m.ncols }

// Bias is the constant folded out of the objective by eliminations so far.
func (m *Matrix) Bias() float64 { return m.bias }

// Infeasible reports whether any pass proved the problem infeasible.
// The flag is sticky: committed eliminations stay valid, but the overall
// result must be treated as a failure.
func (m *Matrix) Infeasible() bool { return m.infeasible }

// Cost returns the current objective coefficient of column j.
func (m *Matrix) Cost(j int) float64 { return m.cost[j] }

// ColBounds returns the current bounds of column j.
func (m *Matrix) ColBounds(j int) (lo, up float64) { return m.clo[j], m.cup[j] }

// RowBounds returns the current activity bounds of row i.
func (m *Matrix) RowBounds(i int) (lo, up float64) { return m.rlo[i], m.rup[i] }

// ColLen returns the number of nonzeros remaining in column j.
func (m *Matrix) ColLen(j int) int { return m.colLen[j] }

// RowLen returns the number of nonzeros remaining in row i.
func (m *Matrix) RowLen(i int) int { return m.rowLen[i] }

// RowActive reports whether row i is still on the active list.
func (m *Matrix) RowActive(i int) bool { return m.rowLink.active(i) }

// ColActive reports whether column j is still on the active list.
func (m *Matrix) ColActive(j int) bool { return m.colLink.active(j) }

// Coeff returns the coefficient of (row i, column j), or zero when absent.
func (m *Matrix) Coeff(i, j int) float64 {
	ks, ke := m.colStart[j], m.colStart[j]+m.colLen[j]
	for k := ks; k < ke; k++ {
		if m.colRow[k] == i {
			return m.colElem[k]
		}
	}
	return zero
}

// Dense exports the coefficient matrix as a dense gonum matrix. Rows and
// columns removed by eliminations come out as zero.
func (m *Matrix) Dense() *mat.Dense {
	d := mat.NewDense(max(m.nrows, 1), max(m.ncols, 1), nil)
	for i := 0; i < m.nrows; i++ {
		ks, ke := m.rowStart[i], m.rowStart[i]+m.rowLen[i]
		for k := ks; k < ke; k++ {
			d.Set(i, m.rowCol[k], m.rowElem[k])
		}
	}
	return d
}

// SetWorklist replaces the candidate-column worklist for the next pass
// invocation. Visiting order is part of the observable contract: it decides
// which rows earlier eliminations consume.
func (m *Matrix) SetWorklist(cols ...int) {
	m.colsToDo = cols
}

// NextWorklist returns the columns queued for revisiting by eliminations.
func (m *Matrix) NextWorklist() []int { return m.nextToDo }

// queue marks column j for revisiting in a later pass.
func (m *Matrix) queue(j int) {
	if !m.queued[j] {
		m.queued[j] = true
		m.nextToDo = append(m.nextToDo, j)
	}
}

// deleteFromCol removes the coefficient of row i from column j's storage,
// keeping the column loosely packed. The matching row-view update is the
// caller's responsibility.
func (m *Matrix) deleteFromCol(j, i int) {
	ks, ke := m.colStart[j], m.colStart[j]+m.colLen[j]
	for k := ks; k < ke; k++ {
		if m.colRow[k] == i {
			m.colRow[k] = m.colRow[ke-1]
			m.colElem[k] = m.colElem[ke-1]
			m.colLen[j]--
			return
		}
	}
	panic("presolve: coefficient missing from column view")
}

// flagRowInfeasible records the sticky infeasibility status together with a
// diagnostic naming the offending row.
func (m *Matrix) flagRowInfeasible(i int) {
	m.infeasible = true
	m.logger.Print(fmt.Sprintf("presolve: row %d infeasible: activity cannot reach bounds [%g, %g]", i, m.rlo[i], m.rup[i]))
}

// linkList is an intrusive doubly-linked membership list over integer
// indices. Removal is O(1) and final: removed members never rejoin.
type linkList struct {
	head     int
	pre, suc []int
}

func newLinkList(n int) linkList {
	l := linkList{head: -1, pre: make([]int, n), suc: make([]int, n)}
	for i := 0; i < n; i++ {
		l.pre[i] = i - 1
		l.suc[i] = i + 1
	}
	if n > 0 {
		l.head = 0
		l.suc[n-1] = -1
	}
	return l
}

func (l *linkList) active(i int) bool { return l.pre[i] != noLink }

func (l *linkList) remove(i int) {
	if !l.active(i) {
		return
	}
	pre, suc := l.pre[i], l.suc[i]
	if pre >= 0 {
		l.suc[pre] = suc
	} else {
		l.head = suc
	}
	if suc >= 0 {
		l.pre[suc] = pre
	}
	l.pre[i], l.suc[i] = noLink, noLink
}
