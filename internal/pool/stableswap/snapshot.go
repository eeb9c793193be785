package stableswap

import (
	"fmt"
	"math/big"

	fp "github.com/ammlabs/poolsim/internal/fixedpoint"
	"github.com/ammlabs/poolsim/internal/pool"
)

// snapshot captures every mutable field of a Pool. Rates, fees and coin
// count are immutable after construction and are not captured.
type snapshot struct {
	balances      []*big.Int
	adminBalances []*big.Int
	lpSupply      *big.Int
	initialA      int64
	futureA       int64
	initialATime  int64
	futureATime   int64
	now           int64
	nonConverged  uint64
}

// Snapshot captures the pool's full mutable state.
func (p *Pool) Snapshot() pool.Snapshot {
	return &snapshot{
		balances:      fp.CloneSlice(p.balances),
		adminBalances: fp.CloneSlice(p.adminBalances),
		lpSupply:      fp.Clone(p.lpSupply),
		initialA:      p.initialA,
		futureA:       p.futureA,
		initialATime:  p.initialATime,
		futureATime:   p.futureATime,
		now:           p.now,
		nonConverged:  p.nonConverged,
	}
}

// Revert restores state captured by Snapshot on this pool type.
func (p *Pool) Revert(s pool.Snapshot) error {
	snap, ok := s.(*snapshot)
	if !ok {
		return fmt.Errorf("snapshot type %T does not belong to a stableswap pool", s)
	}
	if len(snap.balances) != p.n {
		return fmt.Errorf("snapshot holds %d coins, pool has %d", len(snap.balances), p.n)
	}
	p.balances = fp.CloneSlice(snap.balances)
	p.adminBalances = fp.CloneSlice(snap.adminBalances)
	p.lpSupply = fp.Clone(snap.lpSupply)
	p.initialA = snap.initialA
	p.futureA = snap.futureA
	p.initialATime = snap.initialATime
	p.futureATime = snap.futureATime
	p.now = snap.now
	p.nonConverged = snap.nonConverged
	return nil
}
