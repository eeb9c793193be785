/*

YAML scenario file: the complete definition of one simulation campaign.

A scenario names the pool template, the market data file, the strategy, and
the variable parameter axes swept by the grid sampler. Balances, D, rates and
price scales are written as decimal strings because they routinely exceed 64
bits.

*/

package config

import (
	"fmt"
	"os"
	"strings"

	sdkmath "cosmossdk.io/math"
	"gopkg.in/yaml.v3"

	"github.com/ammlabs/poolsim/internal/pool"
	"github.com/ammlabs/poolsim/internal/pool/cryptoswap"
	"github.com/ammlabs/poolsim/internal/pool/stableswap"
	"github.com/ammlabs/poolsim/internal/samplers"
	"github.com/ammlabs/poolsim/internal/types"
)

// Pool type names accepted in scenario files.
const (
	PoolTypeStableswap = "stableswap"
	PoolTypeMetapool   = "metapool"
	PoolTypeCryptoswap = "cryptoswap"
)

// Strategy type names accepted in scenario files.
const (
	StrategyVolumeLimited = "volume_limited"
	StrategySimple        = "simple"
)

// DefaultVolMult is the fraction of sampled market volume the trader may use
// per pair and timestep when the scenario does not set one.
const DefaultVolMult = 0.5

// baseSuffix marks a parameter override that targets a metapool's base pool.
const baseSuffix = "_base"

// Scenario is one simulation campaign.
type Scenario struct {
	Name     string         `yaml:"name"`
	DataFile string         `yaml:"data_file"`
	Strategy StrategySpec   `yaml:"strategy"`
	Pool     PoolSpec       `yaml:"pool"`
	Variable []VariableSpec `yaml:"variable_params"`
}

// StrategySpec selects the per-run trading strategy.
type StrategySpec struct {
	Type    string  `yaml:"type"`
	VolMult float64 `yaml:"vol_mult"`
}

// VariableSpec is one parameter axis of the sweep.
type VariableSpec struct {
	Name   string  `yaml:"name"`
	Values []int64 `yaml:"values"`
}

// PoolSpec is the pool template a run starts from. Which fields apply
// depends on Type; unset numeric strings mean "not provided".
type PoolSpec struct {
	Type string `yaml:"type"`

	A        int64    `yaml:"a"`
	N        int      `yaml:"n"`
	Fee      int64    `yaml:"fee"`
	FeeMul   int64    `yaml:"fee_mul"`
	AdminFee int64    `yaml:"admin_fee"`
	D        string   `yaml:"d"`
	Balances []string `yaml:"balances"`
	Rates    []string `yaml:"rates"`

	// Cryptoswap only.
	Gamma              int64    `yaml:"gamma"`
	MidFee             int64    `yaml:"mid_fee"`
	OutFee             int64    `yaml:"out_fee"`
	FeeGamma           int64    `yaml:"fee_gamma"`
	AllowedExtraProfit int64    `yaml:"allowed_extra_profit"`
	AdjustmentStep     int64    `yaml:"adjustment_step"`
	MAHalfTime         int64    `yaml:"ma_half_time"`
	Precisions         []int64  `yaml:"precisions"`
	PriceScale         []string `yaml:"price_scale"`

	// Metapool only.
	Base *PoolSpec `yaml:"base"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks the scenario and fills defaults.
func (s *Scenario) Validate() error {
	if s.DataFile == "" {
		return fmt.Errorf("data_file is required")
	}
	switch s.Strategy.Type {
	case "":
		s.Strategy.Type = StrategyVolumeLimited
	case StrategyVolumeLimited, StrategySimple:
	default:
		return fmt.Errorf("unknown strategy type %q", s.Strategy.Type)
	}
	if s.Strategy.Type == StrategyVolumeLimited && s.Strategy.VolMult == 0 {
		s.Strategy.VolMult = DefaultVolMult
	}
	if s.Strategy.VolMult < 0 {
		return fmt.Errorf("vol_mult must not be negative")
	}
	switch s.Pool.Type {
	case PoolTypeStableswap, PoolTypeCryptoswap:
	case PoolTypeMetapool:
		if s.Pool.Base == nil {
			return fmt.Errorf("metapool scenario needs a base pool")
		}
	default:
		return fmt.Errorf("unknown pool type %q", s.Pool.Type)
	}
	// Building with no overrides surfaces template problems before the
	// sweep starts.
	if _, err := s.Pool.BuildPool(nil); err != nil {
		return fmt.Errorf("pool template: %w", err)
	}
	return nil
}

// Grid returns the scenario's parameter grid, falling back to the standard
// sweep when no axes are declared.
func (s *Scenario) Grid() (*samplers.Grid, error) {
	specs := s.EffectiveVariableParams()
	vars := make([]samplers.Variable, len(specs))
	for k, v := range specs {
		vars[k] = samplers.Variable{Name: v.Name, Values: v.Values}
	}
	return samplers.NewGrid(vars)
}

// BuildPool constructs a fresh pool from the template with the parameter
// overrides applied. Every run gets its own pool.
func (ps *PoolSpec) BuildPool(params types.ParamSet) (pool.SimPool, error) {
	switch ps.Type {
	case PoolTypeStableswap:
		cfg, err := ps.stableConfig(params, "")
		if err != nil {
			return nil, err
		}
		return stableswap.New(cfg)
	case PoolTypeMetapool:
		return ps.buildMeta(params)
	case PoolTypeCryptoswap:
		cfg, err := ps.cryptoConfig(params)
		if err != nil {
			return nil, err
		}
		return cryptoswap.New(cfg)
	default:
		return nil, fmt.Errorf("unknown pool type %q", ps.Type)
	}
}

// stableConfig assembles a stableswap config from the pool template and the overrides
// carrying the given name suffix ("" for a plain pool or the meta level,
// "_base" for a metapool's base).
func (ps *PoolSpec) stableConfig(params types.ParamSet, suffix string) (stableswap.Config, error) {
	cfg := stableswap.Config{
		A:        ps.A,
		N:        ps.N,
		Fee:      ps.Fee,
		FeeMul:   ps.FeeMul,
		AdminFee: ps.AdminFee,
	}
	var err error
	if cfg.D, err = parseBigInt(ps.D, "d"); err != nil {
		return cfg, err
	}
	if cfg.Balances, err = parseBigInts(ps.Balances, "balances"); err != nil {
		return cfg, err
	}
	if cfg.Rates, err = parseBigInts(ps.Rates, "rates"); err != nil {
		return cfg, err
	}

	for _, p := range params {
		name, ok := matchSuffix(p.Name, suffix)
		if !ok {
			continue
		}
		switch name {
		case "A":
			cfg.A = p.Value
		case "fee":
			cfg.Fee = p.Value
		case "fee_mul":
			cfg.FeeMul = p.Value
		case "admin_fee":
			cfg.AdminFee = p.Value
		case "D":
			// D overrides are in whole tokens; balances and supply
			// re-derive from the new invariant.
			cfg.D = sdkmath.NewIntWithDecimal(p.Value, 18)
			cfg.Balances = nil
			cfg.LPSupply = sdkmath.Int{}
		default:
			return cfg, fmt.Errorf("unknown stableswap parameter %q", p.Name)
		}
	}
	return cfg, nil
}

// buildMeta builds the base pool first so the meta level can price its LP.
// Overrides named with the "_base" suffix go to the base pool, the rest to
// the meta level.
func (ps *PoolSpec) buildMeta(params types.ParamSet) (pool.SimPool, error) {
	baseCfg, err := ps.Base.stableConfig(params, baseSuffix)
	if err != nil {
		return nil, fmt.Errorf("base pool: %w", err)
	}
	base, err := stableswap.New(baseCfg)
	if err != nil {
		return nil, fmt.Errorf("base pool: %w", err)
	}

	metaCfg, err := ps.stableConfig(params, "")
	if err != nil {
		return nil, err
	}
	return stableswap.NewMeta(stableswap.MetaConfig{
		A:        metaCfg.A,
		N:        metaCfg.N,
		D:        metaCfg.D,
		Balances: metaCfg.Balances,
		Rates:    metaCfg.Rates,
		LPSupply: metaCfg.LPSupply,
		Fee:      metaCfg.Fee,
		FeeMul:   metaCfg.FeeMul,
		AdminFee: metaCfg.AdminFee,
		Base:     base,
	})
}

func (ps *PoolSpec) cryptoConfig(params types.ParamSet) (cryptoswap.Config, error) {
	cfg := cryptoswap.Config{
		A:                  ps.A,
		Gamma:              ps.Gamma,
		N:                  ps.N,
		Precisions:         ps.Precisions,
		MidFee:             ps.MidFee,
		OutFee:             ps.OutFee,
		FeeGamma:           ps.FeeGamma,
		AllowedExtraProfit: ps.AllowedExtraProfit,
		AdjustmentStep:     ps.AdjustmentStep,
		AdminFee:           ps.AdminFee,
		MAHalfTime:         ps.MAHalfTime,
	}
	var err error
	if cfg.D, err = parseBigInt(ps.D, "d"); err != nil {
		return cfg, err
	}
	if cfg.Balances, err = parseBigInts(ps.Balances, "balances"); err != nil {
		return cfg, err
	}
	if cfg.PriceScale, err = parseBigInts(ps.PriceScale, "price_scale"); err != nil {
		return cfg, err
	}

	reshape := false
	for _, p := range params {
		switch p.Name {
		case "A":
			cfg.A = p.Value
			reshape = true
		case "gamma":
			cfg.Gamma = p.Value
			reshape = true
		case "mid_fee":
			cfg.MidFee = p.Value
		case "out_fee":
			cfg.OutFee = p.Value
		case "fee_gamma":
			cfg.FeeGamma = p.Value
		case "allowed_extra_profit":
			cfg.AllowedExtraProfit = p.Value
		case "adjustment_step":
			cfg.AdjustmentStep = p.Value
		case "admin_fee":
			cfg.AdminFee = p.Value
		case "ma_half_time":
			cfg.MAHalfTime = p.Value
		case "D":
			cfg.D = sdkmath.NewIntWithDecimal(p.Value, 18)
			cfg.Balances = nil
			cfg.Tokens = sdkmath.Int{}
		default:
			return cfg, fmt.Errorf("unknown cryptoswap parameter %q", p.Name)
		}
	}
	// A new curve shape invalidates a stated invariant: drop it so the
	// constructor re-solves D from the balances.
	if reshape && cfg.Balances != nil {
		cfg.D = sdkmath.Int{}
	}
	return cfg, nil
}

// matchSuffix reports whether an override name targets this pool level and
// strips the suffix. Level "" must not swallow "_base" overrides.
func matchSuffix(name, suffix string) (string, bool) {
	if suffix == "" {
		if strings.HasSuffix(name, baseSuffix) {
			return "", false
		}
		return name, true
	}
	if !strings.HasSuffix(name, suffix) {
		return "", false
	}
	return strings.TrimSuffix(name, suffix), true
}

func parseBigInt(s, field string) (sdkmath.Int, error) {
	if s == "" {
		return sdkmath.Int{}, nil
	}
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%s: invalid integer %q", field, s)
	}
	return v, nil
}

func parseBigInts(ss []string, field string) ([]sdkmath.Int, error) {
	if ss == nil {
		return nil, nil
	}
	out := make([]sdkmath.Int, len(ss))
	for k, s := range ss {
		v, ok := sdkmath.NewIntFromString(s)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: invalid integer %q", field, k, s)
		}
		out[k] = v
	}
	return out, nil
}
