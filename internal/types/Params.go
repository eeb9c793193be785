/*

Named pool parameter overrides produced by the grid sampler, one set per run.

*/

package types

import (
	"fmt"
	"strings"
)

// Param is a single named pool parameter override. Values are integers in the
// pool's native scale (fees out of 10^10, A unscaled, D in 10^18 units).
type Param struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// ParamSet is an ordered list of overrides applied to a pool template before
// a run. Order follows the scenario's declaration order, which fixes the grid
// iteration order.
type ParamSet []Param

// Get returns the value for name, and whether it is present.
func (ps ParamSet) Get(name string) (int64, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

// String renders the set as "A=100 fee=3000000" for logs and result rows.
func (ps ParamSet) String() string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = fmt.Sprintf("%s=%d", p.Name, p.Value)
	}
	return strings.Join(parts, " ")
}
