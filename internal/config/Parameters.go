/*

Default parameter sweeps applied when a scenario declares no variable
parameters of its own.

*/

package config

import (
	"github.com/ammlabs/poolsim/internal/samplers"
)

// DefaultVariableParams is the standard stableswap sweep: amplification in
// powers of sqrt(2) against fees of 1 through 4 basis points.
func DefaultVariableParams() []VariableSpec {
	return []VariableSpec{
		{Name: "A", Values: samplers.DefaultA()},
		{Name: "fee", Values: samplers.DefaultFee()},
	}
}

// TestVariableParams is the small sweep used by fast end-to-end checks.
func TestVariableParams() []VariableSpec {
	return []VariableSpec{
		{Name: "A", Values: samplers.TestA()},
		{Name: "fee", Values: samplers.TestFee()},
	}
}

// EffectiveVariableParams returns the scenario's declared axes, falling back
// to the standard sweep for stableswap-family pools. Cryptoswap pools have
// no generic default sweep; with no declared axes they run once.
func (s *Scenario) EffectiveVariableParams() []VariableSpec {
	if len(s.Variable) > 0 {
		return s.Variable
	}
	switch s.Pool.Type {
	case PoolTypeStableswap, PoolTypeMetapool:
		return DefaultVariableParams()
	default:
		return nil
	}
}
