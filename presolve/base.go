// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package presolve

const (
	zero = 0.0
	one  = 1.0

	// Bounds at or beyond this magnitude are treated as infinite.
	inf = 1.0e20

	// Display magnitude of one unbounded contribution to a row activity sum.
	// Never used to accept or reject anything: the infinite-contribution
	// counts gate the logic.
	infWeight = 1.0e31

	// Coefficients below this magnitude are numerically insignificant.
	ztolDP = 1.0e-12

	// noLink marks a slot that is outside its doubly-linked list.
	noLink = -(1 << 30)
)

// Status is the basis status of a row or column in a solved LP.
type Status uint8

const (
	// Free is a non-basic variable with no finite bound to rest on.
	Free Status = iota
	// Basic variables take whatever value the active constraints determine.
	Basic
	// AtUpper pins a non-basic variable (or row activity) to its upper bound.
	AtUpper
	// AtLower pins a non-basic variable (or row activity) to its lower bound.
	AtLower
)

// Sentinel states of a cached row activity entry, stored in place of the
// infinite-upper count. Non-negative values mean the entry is valid.
const (
	// actNotComputed marks a row whose activity range was not needed yet.
	actNotComputed = -1
	// actSingleton marks a row with a single nonzero: it provides no
	// cross-checkable information for the column it contains.
	actSingleton = -2
	// actGiveUp marks a row that is infeasible or already consumed by an
	// earlier elimination in this pass.
	actGiveUp = -3
	// actRedundant marks a row whose implied activity range already sits
	// inside its declared bounds: it adds no bound information.
	actRedundant = -4
)
