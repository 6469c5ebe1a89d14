// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package presolve

import (
	"fmt"
	"math"
)

// Action records one eliminated (row, column) pair with everything postsolve
// needs to reverse it: the saved column and row bounds, the full coefficient
// list of the row, and (when the column carried a nonzero cost into an
// equality row) the pre-redistribution costs of every column in the row.
//
// Actions are appended to an ordered log and replayed strictly back-to-front.
// The log exclusively owns the saved slices for the presolve→postsolve round
// trip; it is dropped once the replay completes.
type Action struct {
	Row, Col int
	Clo, Cup float64
	Rlo, Rup float64
	RowCols  []int
	RowElems []float64
	Costs    []float64 // nil unless costs were redistributed
}

// SubstPass is the equality-substitution collaborator: it substitutes
// implied-free columns of degree > 1 out of the problem using their defining
// rows, within the given fill budget.
type SubstPass interface {
	Presolve(m *Matrix, impliedFree []int, log []Action, fillLevel int) []Action
}

// IsolatedPass handles a row whose columns appear in no other row. Such a row
// needs different postsolve bookkeeping than a plain implied-free
// elimination.
type IsolatedPass interface {
	Presolve(m *Matrix, row int, log []Action) []Action
}

// ImpliedFree is the implied-free column pass.
//
// A column is implied free when the constraints referencing it already force
// it inside its declared bounds. A singleton implied-free column and its row
// can then be dropped outright: postsolve recomputes the column's value from
// the reinstated row. Columns with 2-3 nonzeros are only classified here:
// the classification array maps each to its best defining equality row (the
// one of smallest degree among those with a significant coefficient, to
// minimize fill-in) and is handed to the Subst collaborator.
//
// Each defining row is consumed by at most one column per pass; later
// columns touching a consumed row are rejected outright.
type ImpliedFree struct {
	Subst    SubstPass
	Isolated IsolatedPass
}

// Presolve runs the forward pass over m's candidate worklist and returns the
// action log with this pass's eliminations appended. A negative fillLevel
// forces scanning of every column regardless of the worklist; a zero
// fillLevel skips the Subst collaborator; a positive one is passed through to
// it as the fill budget.
//
// Infeasibility is reported through m's sticky status flag, never an error:
// eliminations committed before the detection remain valid.
func (a *ImpliedFree) Presolve(m *Matrix, log []Action, fillLevel int) []Action {
	impliedFree := make([]int, m.ncols)
	for j := range impliedFree {
		impliedFree[j] = -1
	}

	cache := newActivityCache(m)

	look := m.colsToDo
	if fillLevel < 0 {
		look = make([]int, m.ncols)
		for j := range look {
			look[j] = j
		}
	}

scan:
	for _, j := range look {
		if m.colLen[j] > 3 || m.colLen[j] == 0 || m.integer[j] {
			continue
		}
		if m.colLen[j] > 1 {
			// A candidate needs an equality row with a significant
			// coefficient, and no singleton row: a row containing only this
			// column cannot cross-check its bounds.
			possible, hasSingleton := false, false
			largest := zero
			ks, ke := m.colStart[j], m.colStart[j]+m.colLen[j]
			for k := ks; k < ke; k++ {
				row, coeffj := m.colRow[k], m.colElem[k]
				if m.rowLen[row] > 1 {
					if math.Abs(m.rlo[row]-m.rup[row]) < m.feasTol && math.Abs(coeffj) > ztolDP {
						possible = true
					}
					largest = math.Max(largest, math.Abs(coeffj))
				} else {
					hasSingleton = true
				}
			}
			if !possible || hasSingleton {
				continue
			}

			low, high, ok := scanColumn(m, cache, j)
			if !ok || m.clo[j] > low || high > m.cup[j] {
				continue
			}

			// Both column bounds are implied by the constraints. Pick the
			// defining equality row with the fewest nonzeros among those
			// with a coefficient above 10% of the column's largest.
			largest *= 0.1
			krow, ninrow := -1, m.ncols+1
			for k := ks; k < ke; k++ {
				row, coeffj := m.colRow[k], m.colElem[k]
				if math.Abs(m.rlo[row]-m.rup[row]) < m.feasTol && math.Abs(coeffj) > largest {
					if m.rowLen[row] < ninrow {
						ninrow = m.rowLen[row]
						krow = row
					}
				}
			}
			if krow >= 0 {
				impliedFree[j] = krow
				cache.consume(krow)
			}
		} else {
			// Singleton column: test directly against its one row, using the
			// bound range implied by the other columns. Eliminating a costly
			// singleton is only sound when the row is an equality.
			k := m.colStart[j]
			row, coeffj := m.colRow[k], m.colElem[k]
			equality := m.rlo[row] == m.rup[row]
			if (m.cost[j] == zero || equality) && m.rowLen[row] > 1 &&
				math.Abs(coeffj) > ztolDP && cache.state(row) >= actNotComputed {
				maxUp, maxDown, ilow, iup := impliedRowBounds(m, row, j)
				switch {
				case !math.IsInf(maxUp, 1) && maxUp+m.feasTol < m.rlo[row]:
					m.flagRowInfeasible(row)
					break scan
				case !math.IsInf(maxDown, -1) && m.rup[row] < maxDown-m.feasTol:
					m.flagRowInfeasible(row)
					break scan
				case m.clo[j] <= ilow && iup <= m.cup[j]:
					impliedFree[j] = row
					cache.consume(row)
				}
			}
		}
	}

	// Pick off the singleton columns. Columns of degree 2-3 stay behind for
	// the substitution collaborator; doubletons that become singletons as a
	// result of dropped rows wait for the next pass.
	nactions := 0
	isolatedRow := -1
	for _, j := range look {
		if m.colLen[j] != 1 || impliedFree[j] < 0 {
			continue
		}
		row := m.colRow[m.colStart[j]]
		coeffj := m.colElem[m.colStart[j]]
		krs, kre := m.rowStart[row], m.rowStart[row]+m.rowLen[row]

		// A row whose columns appear nowhere else needs its own postsolve
		// handling.
		n := 0
		for k := krs; k < kre; k++ {
			n += m.colLen[m.rowCol[k]]
		}
		if n == m.rowLen[row] {
			isolatedRow = row
			break
		}

		nonzeroCost := m.cost[j] != zero && math.Abs(m.rup[row]-m.rlo[row]) <= m.feasTol

		act := Action{
			Row: row, Col: j,
			Clo: m.clo[j], Cup: m.cup[j],
			Rlo: m.rlo[row], Rup: m.rup[row],
			RowCols:  append([]int(nil), m.rowCol[krs:kre]...),
			RowElems: append([]float64(nil), m.rowElem[krs:kre]...),
		}

		if nonzeroCost {
			// Redistribute j's cost over the row so that substituting j out
			// through the equality preserves the objective:
			//   cost_j x_j = cost_j (rhs - Σ coeff_o x_o) / coeff_j
			rhs := m.rlo[row]
			costj := m.cost[j]
			saved := make([]float64, kre-krs)
			for k := krs; k < kre; k++ {
				jcol := m.rowCol[k]
				saved[k-krs] = m.cost[jcol]
				if jcol != j {
					m.cost[jcol] += costj * (-m.rowElem[k] / coeffj)
				}
			}
			m.bias += costj * rhs / coeffj
			m.cost[j] = zero
			act.Costs = saved
		}

		log = append(log, act)
		nactions++

		// Remove the row from every column it touches, then retire both the
		// row and the eliminated column.
		for k := krs; k < kre; k++ {
			jcol := m.rowCol[k]
			m.queue(jcol)
			m.deleteFromCol(jcol, row)
		}
		m.rowLink.remove(row)
		m.rowLen[row] = 0
		m.rlo[row] = zero
		m.rup[row] = zero

		m.colLink.remove(j)
		m.colLen[j] = 0
		impliedFree[j] = -1
	}

	if nactions > 0 {
		m.logger.Print(fmt.Sprintf("presolve: implied free: %d singleton columns eliminated", nactions))
	}

	if isolatedRow >= 0 && a.Isolated != nil {
		log = a.Isolated.Presolve(m, isolatedRow, log)
	}
	if fillLevel != 0 && a.Subst != nil {
		log = a.Subst.Presolve(m, impliedFree, log, fillLevel)
	}
	return log
}

// scanColumn walks the rows of column j accumulating the tightest implied
// lower and upper bounds on j. Candidate bounds that beat the column's
// current working bound are propagated back into the row's cached activity
// figures, so later columns sharing the row see the tightened range; the
// tightening converges within this single walk. A row that is redundant,
// consumed, or proves the problem infeasible rejects the column outright.
func scanColumn(m *Matrix, c *activityCache, j int) (low, high float64, ok bool) {
	low, high = math.Inf(-1), math.Inf(1)
	ks, ke := m.colStart[j], m.colStart[j]+m.colLen[j]
	for k := ks; k < ke; k++ {
		row, value := m.colRow[k], m.colElem[k]
		if math.Abs(value) <= ztolDP {
			continue
		}
		if !c.compute(m, row) {
			return low, high, false
		}
		if c.state(row) < 0 {
			return low, high, false
		}

		lower, upper := m.rlo[row], m.rup[row]
		// Each row restarts from the declared column bounds; only the cached
		// activity figures carry tightenings across rows.
		nowLower, nowUpper := m.clo[j], m.cup[j]
		var newBound float64
		if value > zero {
			if lower > -inf {
				switch {
				case c.infUp[row] == 0:
					newBound = nowUpper + (lower-c.maxUp[row])/value
					newBound -= relax(c.maxUp[row])
				case c.infUp[row] == 1 && nowUpper > inf:
					newBound = (lower - c.maxUp[row]) / value
					newBound -= relax(c.maxUp[row])
				default:
					newBound = math.Inf(-1)
				}
				if newBound > nowLower+1.0e-12 {
					now, wasInf := nowLower, nowLower < -inf
					if wasInf {
						now = zero
					}
					c.tightenMaxDown(row, (newBound-now)*value, wasInf)
					nowLower = newBound
				}
				low = math.Max(low, newBound)
			}
			if upper < inf {
				switch {
				case c.infDown[row] == 0:
					newBound = nowLower + (upper-c.maxDown[row])/value
					newBound += relax(c.maxDown[row])
				case c.infDown[row] == 1 && nowLower < -inf:
					newBound = (upper - c.maxDown[row]) / value
					newBound += relax(c.maxDown[row])
				default:
					newBound = math.Inf(1)
				}
				if newBound < nowUpper-1.0e-12 {
					now, wasInf := nowUpper, nowUpper > inf
					if wasInf {
						now = zero
					}
					c.tightenMaxUp(row, (newBound-now)*value, wasInf)
					nowUpper = newBound
				}
				high = math.Min(high, newBound)
			}
		} else {
			if lower > -inf {
				switch {
				case c.infUp[row] == 0:
					newBound = nowLower + (lower-c.maxUp[row])/value
					newBound += relax(c.maxUp[row])
				case c.infUp[row] == 1 && nowLower < -inf:
					newBound = (lower - c.maxUp[row]) / value
					newBound += relax(c.maxUp[row])
				default:
					newBound = math.Inf(1)
				}
				if newBound < nowUpper-1.0e-12 {
					now, wasInf := nowUpper, nowUpper > inf
					if wasInf {
						now = zero
					}
					c.tightenMaxDown(row, (newBound-now)*value, wasInf)
					nowUpper = newBound
				}
				high = math.Min(high, newBound)
			}
			if upper < inf {
				switch {
				case c.infDown[row] == 0:
					newBound = nowUpper + (upper-c.maxDown[row])/value
					newBound -= relax(c.maxDown[row])
				case c.infDown[row] == 1 && nowUpper > inf:
					newBound = (upper - c.maxDown[row]) / value
					newBound -= relax(c.maxDown[row])
				default:
					newBound = math.Inf(-1)
				}
				if newBound > nowLower+1.0e-12 {
					now, wasInf := nowLower, nowLower < -inf
					if wasInf {
						now = zero
					}
					c.tightenMaxUp(row, (newBound-now)*value, wasInf)
					nowLower = newBound
				}
				low = math.Max(low, newBound)
			}
		}
	}
	return low, high, true
}

// relax gives back the numerical slack applied to a candidate bound derived
// from a large excluded sum.
func relax(sum float64) float64 {
	if math.Abs(sum) > 1.0e8 {
		return 1.0e-12 * math.Abs(sum)
	}
	return zero
}
