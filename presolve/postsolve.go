// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package presolve

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Solution holds the solved reduced problem's primal and dual data, sized to
// the original dimensions with the eliminated slots ignored. Postsolve
// mutates every slice in place until it describes the original problem.
type Solution struct {
	Sol      []float64 // primal value per column
	RCost    []float64 // reduced cost per column
	Act      []float64 // activity per row
	RowDual  []float64 // dual value per row
	ColStat  []Status
	RowStat  []Status
	Maximize bool
}

// PostMatrix is the postsolve-side problem state: column-major coefficient
// storage threaded through an explicit link slice with a free list of
// reclaimed slots, so reinstating a row's coefficients is slot reuse rather
// than reallocation.
type PostMatrix struct {
	nrows, ncols int

	colStart []int
	colLen   []int
	colRow   []int
	colElem  []float64
	link     []int
	freeList int

	clo, cup []float64
	rlo, rup []float64
	cost     []float64

	sol, rcost   []float64
	act, rowDual []float64
	colStat      []Status
	rowStat      []Status

	maxMin float64 // +1 minimize, -1 maximize
	ztolZB float64
	ztolDJ float64

	cdone, rdone []bool
	logger       Logger
}

// NewPostMatrix builds the postsolve state from the presolved matrix and the
// solved reduced problem's solution. The Solution slices are referenced, not
// copied: postsolve writes the reconstructed values straight into them.
func NewPostMatrix(m *Matrix, s *Solution) (*PostMatrix, error) {
	switch {
	case len(s.Sol) != m.ncols || len(s.RCost) != m.ncols || len(s.ColStat) != m.ncols:
		return nil, errors.Errorf("column solution arrays must be sized %d", m.ncols)
	case len(s.Act) != m.nrows || len(s.RowDual) != m.nrows || len(s.RowStat) != m.nrows:
		return nil, errors.Errorf("row solution arrays must be sized %d", m.nrows)
	}

	nel := 0
	for _, n := range m.colLen {
		nel += n
	}

	p := &PostMatrix{
		nrows: m.nrows, ncols: m.ncols,
		colStart: make([]int, m.ncols),
		colLen:   make([]int, m.ncols),
		colRow:   make([]int, 0, nel),
		colElem:  make([]float64, 0, nel),
		link:     make([]int, 0, nel),
		freeList: noLink,
		clo:      dup(m.clo), cup: dup(m.cup),
		rlo: dup(m.rlo), rup: dup(m.rup),
		cost: dup(m.cost),
		sol:  s.Sol, rcost: s.RCost,
		act: s.Act, rowDual: s.RowDual,
		colStat: s.ColStat, rowStat: s.RowStat,
		maxMin: one,
		ztolZB: m.ztolZB,
		ztolDJ: m.ztolDJ,
		cdone:  make([]bool, m.ncols),
		rdone:  make([]bool, m.nrows),
		logger: m.logger,
	}
	if s.Maximize {
		p.maxMin = -one
	}

	for j := 0; j < m.ncols; j++ {
		p.colStart[j] = noLink
		p.colLen[j] = m.colLen[j]
		ks, ke := m.colStart[j], m.colStart[j]+m.colLen[j]
		for k := ke - 1; k >= ks; k-- {
			kk := len(p.link)
			p.colRow = append(p.colRow, m.colRow[k])
			p.colElem = append(p.colElem, m.colElem[k])
			p.link = append(p.link, p.colStart[j])
			p.colStart[j] = kk
		}
	}
	return p, nil
}

// ColRestored reports whether this pass's postsolve reinstated column j.
func (p *PostMatrix) ColRestored(j int) bool { return p.cdone[j] }

// RowRestored reports whether this pass's postsolve reinstated row i.
func (p *PostMatrix) RowRestored(i int) bool { return p.rdone[i] }

// Coeff returns the coefficient of (row i, column j), or zero when absent.
func (p *PostMatrix) Coeff(i, j int) float64 {
	k := p.colStart[j]
	for n := 0; n < p.colLen[j]; n++ {
		if p.colRow[k] == i {
			return p.colElem[k]
		}
		k = p.link[k]
	}
	return zero
}

// allocSlot takes a slot from the free list, growing the storage when the
// list is empty.
func (p *PostMatrix) allocSlot() int {
	if p.freeList == noLink {
		p.colRow = append(p.colRow, 0)
		p.colElem = append(p.colElem, 0)
		p.link = append(p.link, noLink)
		return len(p.link) - 1
	}
	k := p.freeList
	p.freeList = p.link[k]
	return k
}

// Postsolve replays the action log strictly back-to-front against the solved
// reduced problem, restoring every eliminated row and column and assigning
// the reinstated column a consistent value, reduced cost and basis status.
// Reverse order guarantees that every other column of a replayed row already
// carries valid values. Feasibility violations during replay indicate a
// corrupted log or an upstream bug and panic rather than produce a silently
// wrong solution.
func Postsolve(p *PostMatrix, log []Action) {
	for n := len(log) - 1; n >= 0; n-- {
		p.replay(&log[n])
	}
}

func (p *PostMatrix) replay(f *Action) {
	irow, icol := f.Row, f.Col

	// Reinsert every saved coefficient, recreating the eliminated column,
	// and roll the saved costs back in (the reduced costs absorb the delta).
	for k, jcol := range f.RowCols {
		coeff := f.RowElems[k]
		if f.Costs != nil {
			p.rcost[jcol] += p.maxMin * (f.Costs[k] - p.cost[jcol])
			p.cost[jcol] = f.Costs[k]
		}
		kk := p.allocSlot()
		p.link[kk] = p.colStart[jcol]
		p.colStart[jcol] = kk
		p.colElem[kk] = coeff
		p.colRow[kk] = irow
		if jcol == icol {
			p.colLen[jcol] = 1
			p.clo[icol] = f.Clo
			p.cup[icol] = f.Cup
			p.cdone[icol] = true
		} else {
			p.colLen[jcol]++
		}
	}
	p.rdone[irow] = true
	p.rlo[irow] = f.Rlo
	p.rup[irow] = f.Rup

	// Activity of the already-solved columns, and the pivot coefficient.
	act, coeff := zero, zero
	for k, jcol := range f.RowCols {
		if jcol == icol {
			coeff = f.RowElems[k]
		} else {
			act += f.RowElems[k] * p.sol[jcol]
		}
	}
	if math.Abs(coeff) <= ztolDP {
		panic("postsolve: eliminated column lost its pivot coefficient")
	}

	// The two candidate positions for the column: row at its lower bound and
	// row at its upper bound, both clipped to the column's own bounds.
	thisCost := p.maxMin * p.cost[icol]
	var loAct, upAct float64
	if coeff > zero {
		loAct = (p.rlo[irow] - act) / coeff
		upAct = (p.rup[irow] - act) / coeff
	} else {
		loAct = (p.rup[irow] - act) / coeff
		upAct = (p.rlo[irow] - act) / coeff
	}
	loAct = math.Max(loAct, p.clo[icol])
	upAct = math.Min(upAct, p.cup[icol])

	// where: 0 in basis, -1 at lower bound, +1 at upper bound.
	where := 0
	tolCheck := 0.1 * p.ztolZB
	switch {
	case loAct < p.clo[icol]+tolCheck/math.Abs(coeff) && thisCost >= zero:
		where = -1
	case upAct > p.cup[icol]-tolCheck/math.Abs(coeff) && thisCost < zero:
		where = 1
	}

	// Pinning the column to a bound keeps the row dual at zero; if that
	// leaves some other column's reduced cost dual-infeasible by more than
	// making this column basic would, prefer the basis.
	possibleDual := thisCost / coeff
	if where != 0 {
		worst := p.ztolDJ
		for _, jcol := range f.RowCols {
			if jcol != icol {
				worst = math.Max(worst, p.dualViolation(jcol, p.rcost[jcol]))
			}
		}
		if worst > p.ztolDJ {
			worst2 := p.ztolDJ
			for k, jcol := range f.RowCols {
				if jcol != icol {
					newDj := p.rcost[jcol] - possibleDual*f.RowElems[k]
					worst2 = math.Max(worst2, p.dualViolation(jcol, newDj))
				}
			}
			if worst2 < worst {
				where = 0
			}
		}
	}

	if where == 0 {
		// Basic: pick the row-bound side whose dual sign is consistent with
		// the row type. Equality rows permit either side; a one-sided row
		// only its finite one.
		p.rowDual[irow] = possibleDual
		if (p.rlo[irow] < p.rup[irow] && p.rowDual[irow] < zero) || p.rlo[irow] < -inf {
			if p.rlo[irow] < -inf && p.rowDual[irow] > ztolDP {
				p.logger.Print(fmt.Sprintf("postsolve: row %d lacks a lower bound but carries dual %g", irow, p.rowDual[irow]))
			}
			p.sol[icol] = (p.rup[irow] - act) / coeff
			p.act[irow] = p.rup[irow]
			p.rowStat[irow] = AtUpper
		} else {
			p.sol[icol] = (p.rlo[irow] - act) / coeff
			p.act[irow] = p.rlo[irow]
			p.rowStat[irow] = AtLower
		}
		if p.sol[icol] < p.clo[icol]-1.0e-5 || p.sol[icol] > p.cup[icol]+1.0e-5 {
			panic("postsolve: restored column value outside its bounds")
		}
		p.colStat[icol] = Basic
		for k, jcol := range f.RowCols {
			p.rcost[jcol] -= possibleDual * f.RowElems[k]
		}
		p.rcost[icol] = zero
	} else {
		p.rowDual[irow] = zero
		p.rcost[icol] = thisCost
		p.rowStat[irow] = Basic
		if where < 0 {
			p.colStat[icol] = AtLower
			p.sol[icol] = p.clo[icol]
		} else {
			p.colStat[icol] = AtUpper
			p.sol[icol] = p.cup[icol]
		}
		p.act[irow] = act + p.sol[icol]*coeff
		if p.act[irow] < p.rlo[irow]-1.0e-5 || p.act[irow] > p.rup[irow]+1.0e-5 {
			panic("postsolve: restored row activity outside its bounds")
		}
	}
}

// dualViolation measures how far dj would violate dual feasibility for
// column jcol given its basis status; only basic reduced costs are trusted
// in both directions.
func (p *PostMatrix) dualViolation(jcol int, dj float64) float64 {
	switch {
	case p.colStat[jcol] == Basic:
		return math.Abs(dj)
	case p.sol[jcol] < p.clo[jcol]+ztolDP:
		return -dj
	case p.sol[jcol] > p.cup[jcol]-ztolDP:
		return dj
	}
	return zero
}
