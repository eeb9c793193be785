/*

Trade types exchanged between the trader, the pools, and the metrics log.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// Trade is an intended swap on a pool: sell AmountIn of coin CoinIn for coin
// CoinOut.
type Trade struct {
	CoinIn   int         `json:"coin_in"`
	CoinOut  int         `json:"coin_out"`
	AmountIn sdkmath.Int `json:"amount_in"`
}

// TradeResult is an executed Trade together with its realized output and fee,
// both in native units of the out coin.
type TradeResult struct {
	Trade
	AmountOut sdkmath.Int `json:"amount_out"`
	Fee       sdkmath.Int `json:"fee"`
	Timestamp int64       `json:"timestamp"`
}
