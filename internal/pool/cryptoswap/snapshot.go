package cryptoswap

import (
	"fmt"
	"math/big"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
	"github.com/ammlabs/poolsim/internal/pool"
)

// snapshot captures every mutable field of a Pool. Fees, gamma and coin
// count are immutable after construction and are not captured.
type snapshot struct {
	balances     []*big.Int
	d            *big.Int
	lpSupply     *big.Int
	virtualPrice *big.Int
	xcpProfit    *big.Int
	xcpProfitA   *big.Int
	notAdjusted  bool

	priceScale          []*big.Int
	priceOracle         []*big.Int
	lastPrices          []*big.Int
	lastPricesTimestamp int64
	now                 int64
}

// Snapshot captures the pool's full mutable state.
func (p *Pool) Snapshot() pool.Snapshot {
	return &snapshot{
		balances:            fp.CloneSlice(p.balances),
		d:                   fp.Clone(p.d),
		lpSupply:            fp.Clone(p.lpSupply),
		virtualPrice:        fp.Clone(p.virtualPrice),
		xcpProfit:           fp.Clone(p.xcpProfit),
		xcpProfitA:          fp.Clone(p.xcpProfitA),
		notAdjusted:         p.notAdjusted,
		priceScale:          fp.CloneSlice(p.priceScale),
		priceOracle:         fp.CloneSlice(p.priceOracle),
		lastPrices:          fp.CloneSlice(p.lastPrices),
		lastPricesTimestamp: p.lastPricesTimestamp,
		now:                 p.now,
	}
}

// Revert restores state captured by Snapshot on this pool type.
func (p *Pool) Revert(s pool.Snapshot) error {
	snap, ok := s.(*snapshot)
	if !ok {
		return fmt.Errorf("snapshot type %T does not belong to a cryptoswap pool", s)
	}
	if len(snap.balances) != p.n {
		return fmt.Errorf("snapshot holds %d coins, pool has %d", len(snap.balances), p.n)
	}
	p.balances = fp.CloneSlice(snap.balances)
	p.d = fp.Clone(snap.d)
	p.lpSupply = fp.Clone(snap.lpSupply)
	p.virtualPrice = fp.Clone(snap.virtualPrice)
	p.xcpProfit = fp.Clone(snap.xcpProfit)
	p.xcpProfitA = fp.Clone(snap.xcpProfitA)
	p.notAdjusted = snap.notAdjusted
	p.priceScale = fp.CloneSlice(snap.priceScale)
	p.priceOracle = fp.CloneSlice(snap.priceOracle)
	p.lastPrices = fp.CloneSlice(snap.lastPrices)
	p.lastPricesTimestamp = snap.lastPricesTimestamp
	p.now = snap.now
	return nil
}
