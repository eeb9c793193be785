package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ammlabs/poolsim/internal/pool/cryptoswap"
	"github.com/ammlabs/poolsim/internal/pool/stableswap"
	"github.com/ammlabs/poolsim/internal/types"
)

const stableScenarioYAML = `
name: 2pool sweep
data_file: prices.csv
pool:
  type: stableswap
  a: 250
  n: 2
  fee: 4000000
  d: "1000000000000000000000000"
  rates: ["1000000000000000000000000000000", "1000000000000000000000000000000"]
variable_params:
  - name: A
    values: [100, 1000]
  - name: fee
    values: [3000000, 4000000]
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, stableScenarioYAML))
	require.NoError(t, err)
	require.Equal(t, "2pool sweep", sc.Name)
	require.Equal(t, StrategyVolumeLimited, sc.Strategy.Type)
	require.Equal(t, DefaultVolMult, sc.Strategy.VolMult)

	grid, err := sc.Grid()
	require.NoError(t, err)
	require.Equal(t, 4, grid.Size())
}

func TestScenarioDefaultGrid(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, `
data_file: prices.csv
pool:
  type: stableswap
  a: 250
  n: 2
  d: "1000000000000000000000000"
`))
	require.NoError(t, err)

	// No declared axes: the standard 16x4 stableswap sweep applies.
	grid, err := sc.Grid()
	require.NoError(t, err)
	require.Equal(t, 64, grid.Size())
}

func TestBuildPoolAppliesOverrides(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, stableScenarioYAML))
	require.NoError(t, err)

	built, err := sc.Pool.BuildPool(types.ParamSet{
		{Name: "A", Value: 1000},
		{Name: "fee", Value: 3_000_000},
	})
	require.NoError(t, err)
	p, ok := built.(*stableswap.Pool)
	require.True(t, ok)
	require.Equal(t, int64(1000), p.A())
	require.Equal(t, int64(3_000_000), p.Fee())
}

func TestBuildPoolDOverrideRederivesBalances(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, stableScenarioYAML))
	require.NoError(t, err)

	built, err := sc.Pool.BuildPool(types.ParamSet{{Name: "D", Value: 2_000_000}})
	require.NoError(t, err)
	p := built.(*stableswap.Pool)

	// 10^30 rates: each of the two coins holds half of D in 6-decimal units.
	balances := p.Balances()
	require.Equal(t, int64(1_000_000_000_000), balances[0].Int64())
	require.Equal(t, int64(1_000_000_000_000), balances[1].Int64())
}

func TestBuildPoolRejectsUnknownParameter(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, stableScenarioYAML))
	require.NoError(t, err)

	_, err = sc.Pool.BuildPool(types.ParamSet{{Name: "gamma", Value: 1}})
	require.ErrorContains(t, err, "unknown stableswap parameter")
}

func TestBuildMetapoolBaseSuffix(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, `
data_file: prices.csv
pool:
  type: metapool
  a: 1000
  n: 2
  d: "1000000000000000000000000"
  base:
    a: 250
    n: 2
    d: "1000000000000000000000000"
variable_params:
  - name: A_base
    values: [100, 200]
`))
	require.NoError(t, err)

	built, err := sc.Pool.BuildPool(types.ParamSet{{Name: "A_base", Value: 200}})
	require.NoError(t, err)
	m, ok := built.(*stableswap.MetaPool)
	require.True(t, ok)
	require.Equal(t, int64(1000), m.A())
	require.Equal(t, int64(200), m.Base().A())
}

func TestBuildCryptoswapReshapeResolvesD(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, `
data_file: prices.csv
pool:
  type: cryptoswap
  a: 400000
  gamma: 145000000000000
  n: 2
  mid_fee: 26000000
  out_fee: 45000000
  fee_gamma: 230000000000000
  allowed_extra_profit: 2000000000000
  adjustment_step: 146000000000000
  admin_fee: 5000000000
  price_scale: ["2000000000000000000000"]
  balances: ["1000000000000000000000000", "500000000000000000000"]
`))
	require.NoError(t, err)

	built, err := sc.Pool.BuildPool(types.ParamSet{{Name: "A", Value: 540_000}})
	require.NoError(t, err)
	p, ok := built.(*cryptoswap.Pool)
	require.True(t, ok)

	// Fresh construction re-solves D against the balances; the virtual
	// price starts at exactly 1.
	vp, err := p.VirtualPrice()
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", vp.String())
}

func TestScenarioValidation(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, "pool:\n  type: stableswap\n"))
	require.ErrorContains(t, err, "data_file")

	_, err = LoadScenario(writeScenario(t, `
data_file: prices.csv
strategy:
  type: martingale
pool:
  type: stableswap
  a: 250
  n: 2
  d: "1000000000000000000000000"
`))
	require.ErrorContains(t, err, "unknown strategy type")

	_, err = LoadScenario(writeScenario(t, `
data_file: prices.csv
pool:
  type: stableswap
  a: 250
  n: 2
`))
	require.ErrorContains(t, err, "pool template")
}
