// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package presolve

import "github.com/pkg/errors"

// Option configures a Matrix at construction time.
type Option func(*Matrix) error

// WithLogger routes diagnostic messages to the given logger.
func WithLogger(logger Logger) Option {
	return func(m *Matrix) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		m.logger = logger
		return nil
	}
}

// WithFeasibilityTolerance sets the tolerance used when comparing row
// activities against row bounds.
func WithFeasibilityTolerance(tol float64) Option {
	return func(m *Matrix) error {
		if tol <= zero {
			return errors.Errorf("feasibility tolerance %g must be positive", tol)
		}
		m.feasTol = tol
		return nil
	}
}

// WithIntegerColumns marks the given columns as integer. Integer columns are
// never eliminated by the implied-free pass.
func WithIntegerColumns(cols ...int) Option {
	return func(m *Matrix) error {
		for _, j := range cols {
			if j < 0 || j >= m.ncols {
				return errors.Errorf("integer column %d out of range", j)
			}
			m.integer[j] = true
		}
		return nil
	}
}
