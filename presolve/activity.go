// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package presolve

import "math"

// activityCache holds, per row, the implied activity range derivable from the
// current column bounds: the largest and smallest value the row's linear
// expression can take, with unbounded contributions tracked as counts rather
// than folded into the running sums. Entries are computed lazily and
// tightened in place while a column scan deduces sharper bounds, so later
// columns sharing a row see the tightened figures. Tightening is monotonic on
// the (count, sum) pair: a finite contribution may replace an infinite one,
// and the sums only ever shrink the implied range.
type activityCache struct {
	maxUp, maxDown []float64
	// infUp doubles as the entry state: a sentinel (actNotComputed,
	// actSingleton, actGiveUp, actRedundant) when negative, the count of
	// unbounded upward contributions otherwise.
	infUp, infDown []int
}

func newActivityCache(m *Matrix) *activityCache {
	c := &activityCache{
		maxUp:   make([]float64, m.nrows),
		maxDown: make([]float64, m.nrows),
		infUp:   make([]int, m.nrows),
		infDown: make([]int, m.nrows),
	}
	for i := 0; i < m.nrows; i++ {
		if m.rowLen[i] > 1 {
			c.infUp[i] = actNotComputed
		} else {
			c.infUp[i] = actSingleton
		}
	}
	return c
}

func (c *activityCache) state(i int) int { return c.infUp[i] }

// consume marks row i unusable for any further elimination in this pass.
func (c *activityCache) consume(i int) { c.infUp[i] = actGiveUp }

// compute classifies row i against its declared bounds and caches the implied
// activity range. It reports false when the range proves the problem
// infeasible; in that case the row is marked give-up and the sticky status
// flag of m is raised. Recomputing an already-classified row is a no-op with
// the same classification.
func (c *activityCache) compute(m *Matrix, i int) bool {
	if c.infUp[i] != actNotComputed {
		return true
	}

	infUpper, infLower := 0, 0
	maxUp, maxDown := zero, zero
	ks, ke := m.rowStart[i], m.rowStart[i]+m.rowLen[i]
	for k := ks; k < ke; k++ {
		value, col := m.rowElem[k], m.rowCol[k]
		if value > zero {
			if m.cup[col] >= inf {
				infUpper++
			} else {
				maxUp += m.cup[col] * value
			}
			if m.clo[col] <= -inf {
				infLower++
			} else {
				maxDown += m.clo[col] * value
			}
		} else if value < zero {
			if m.cup[col] >= inf {
				infLower++
			} else {
				maxDown += m.cup[col] * value
			}
			if m.clo[col] <= -inf {
				infUpper++
			} else {
				maxUp += m.clo[col] * value
			}
		}
	}

	// Synthetic magnitudes for the comparisons below; the counts alone decide
	// whether a side is unbounded.
	maxUpx := maxUp + float64(infUpper)*infWeight
	maxDownx := maxDown - float64(infLower)*infWeight
	tol := m.feasTol

	switch {
	case maxUpx <= m.rup[i]+tol && maxDownx >= m.rlo[i]-tol:
		// The implied range sits inside the declared one: the row cannot
		// tighten any column bound.
		c.infUp[i] = actRedundant
	case maxUpx < m.rlo[i]-tol, maxDownx > m.rup[i]+tol:
		// One of the declared bounds can never be reached.
		m.flagRowInfeasible(i)
		c.infUp[i] = actGiveUp
		return false
	default:
		c.infUp[i] = infUpper
		c.infDown[i] = infLower
		c.maxUp[i] = maxUp
		c.maxDown[i] = maxDown
	}
	return true
}

// tightenMaxDown raises the cached minimum activity of row i by delta after a
// contributing column bound moved inward; wasInfinite drops one unbounded
// downward contribution that just became finite.
func (c *activityCache) tightenMaxDown(i int, delta float64, wasInfinite bool) {
	if wasInfinite {
		c.infDown[i]--
	}
	c.maxDown[i] += delta
}

// tightenMaxUp lowers the cached maximum activity of row i by delta, the
// mirror of tightenMaxDown.
func (c *activityCache) tightenMaxUp(i int, delta float64, wasInfinite bool) {
	if wasInfinite {
		c.infUp[i]--
	}
	c.maxUp[i] += delta
}

// impliedRowBounds reports the activity range of row i and the bounds the row
// implies on column excl: the tightest interval excl can take while every
// other column stays inside its own bounds and the activity stays inside the
// row bounds. Unbounded sides come out as ±Inf, never as a folded finite sum.
func impliedRowBounds(m *Matrix, i, excl int) (maxUp, maxDown, low, high float64) {
	var coeff float64
	othUp, othDown := zero, zero // activity range excluding excl
	othInfUp, othInfDown := 0, 0
	exclInfUp, exclInfDown := false, false

	ks, ke := m.rowStart[i], m.rowStart[i]+m.rowLen[i]
	for k := ks; k < ke; k++ {
		value, col := m.rowElem[k], m.rowCol[k]
		up, infU := contribution(m.cup[col], m.clo[col], value)
		down, infD := contribution(m.clo[col], m.cup[col], value)
		if col == excl {
			coeff = value
			exclInfUp, exclInfDown = infU, infD
			continue
		}
		if infU {
			othInfUp++
		} else {
			othUp += up
		}
		if infD {
			othInfDown++
		} else {
			othDown += down
		}
	}

	maxUp, maxDown = othUp, othDown
	if othInfUp > 0 || exclInfUp {
		maxUp = math.Inf(1)
	} else {
		up, _ := contribution(m.cup[excl], m.clo[excl], coeff)
		maxUp += up
	}
	if othInfDown > 0 || exclInfDown {
		maxDown = math.Inf(-1)
	} else {
		down, _ := contribution(m.clo[excl], m.cup[excl], coeff)
		maxDown += down
	}

	low, high = math.Inf(-1), math.Inf(1)
	if math.Abs(coeff) <= ztolDP {
		return
	}
	if coeff > zero {
		if m.rup[i] < inf && othInfDown == 0 {
			high = (m.rup[i] - othDown) / coeff
		}
		if m.rlo[i] > -inf && othInfUp == 0 {
			low = (m.rlo[i] - othUp) / coeff
		}
	} else {
		if m.rlo[i] > -inf && othInfUp == 0 {
			high = (m.rlo[i] - othUp) / coeff
		}
		if m.rup[i] < inf && othInfDown == 0 {
			low = (m.rup[i] - othDown) / coeff
		}
	}
	return
}

// contribution is the value bound b contributes to a row activity side for a
// coefficient v, with alt the bound used when v is negative. The second
// result reports an unbounded contribution.
func contribution(b, alt, v float64) (float64, bool) {
	switch {
	case v > zero:
		return b * v, b >= inf || b <= -inf
	case v < zero:
		return alt * v, alt >= inf || alt <= -inf
	}
	return zero, false
}
