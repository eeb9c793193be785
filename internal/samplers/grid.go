/*

Parameter grid sampler.

A Grid enumerates the Cartesian product of named parameter value lists in a
fixed order: the first declared parameter varies slowest. Run indices are
positions in this order, which is what makes parallel and sequential
orchestration comparable.

*/

package samplers

import (
	"fmt"
	"math"

	"github.com/ammlabs/poolsim/internal/types"
)

// Variable is one named parameter axis of the grid.
type Variable struct {
	Name   string
	Values []int64
}

// Grid is a deterministic Cartesian product over parameter axes.
type Grid struct {
	vars []Variable
}

// NewGrid validates the axes and returns the grid. A grid with no axes has
// exactly one run with no overrides.
func NewGrid(vars []Variable) (*Grid, error) {
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if v.Name == "" {
			return nil, fmt.Errorf("parameter axis with empty name")
		}
		if len(v.Values) == 0 {
			return nil, fmt.Errorf("parameter %q has no values", v.Name)
		}
		if seen[v.Name] {
			return nil, fmt.Errorf("parameter %q declared twice", v.Name)
		}
		seen[v.Name] = true
	}
	return &Grid{vars: vars}, nil
}

// Size returns the number of parameter sets the grid produces.
func (g *Grid) Size() int {
	size := 1
	for _, v := range g.vars {
		size *= len(v.Values)
	}
	return size
}

// ParamSets materializes the full grid in iteration order.
func (g *Grid) ParamSets() []types.ParamSet {
	if len(g.vars) == 0 {
		return []types.ParamSet{nil}
	}
	total := g.Size()
	out := make([]types.ParamSet, 0, total)
	idx := make([]int, len(g.vars))
	for k := 0; k < total; k++ {
		ps := make(types.ParamSet, len(g.vars))
		for d, v := range g.vars {
			ps[d] = types.Param{Name: v.Name, Value: v.Values[idx[d]]}
		}
		out = append(out, ps)

		// Odometer increment, last axis fastest.
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < len(g.vars[d].Values) {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

// DefaultA is the standard amplification sweep: powers of sqrt(2) from 2^6
// through 2^13.5, truncated to integers.
func DefaultA() []int64 {
	out := make([]int64, 0, 16)
	for a := 12; a <= 27; a++ {
		out = append(out, int64(math.Pow(2, float64(a)/2)))
	}
	return out
}

// DefaultFee is the standard fee sweep: 1 through 4 basis points.
func DefaultFee() []int64 {
	out := make([]int64, 0, 4)
	for fee := int64(1_000_000); fee <= 4_000_000; fee += 1_000_000 {
		out = append(out, fee)
	}
	return out
}

// TestA and TestFee are the small grids used by fast end-to-end checks.
func TestA() []int64   { return []int64{100, 1000} }
func TestFee() []int64 { return []int64{3_000_000, 4_000_000} }
