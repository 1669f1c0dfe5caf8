/*

This file contains the account snapshot types the engine evaluates each cycle.
Snapshots come from the external market/position provider and are never
persisted; every cycle computes from fresh data.

*/

package types

// InfiniteHealthFactor is the sentinel health factor for accounts and
// positions carrying no debt. Kept finite so downstream score math stays
// well-defined.
const InfiniteHealthFactor float64 = 1e9

// Position is a single supplied/borrowed market position.
type Position struct {
	Market               string  `json:"market"` // venue market identifier, e.g. "aave-v3:USDC"
	Symbol               string  `json:"symbol"`
	SuppliedUSD          float64 `json:"supplied_usd"`
	BorrowedUSD          float64 `json:"borrowed_usd"`
	SupplyAPY            float64 `json:"supply_apy"` // percent
	BorrowAPY            float64 `json:"borrow_apy"` // percent
	UtilizationRate      float64 `json:"utilization_rate"` // 0.0 to 1.0
	HealthFactor         float64 `json:"health_factor"`
	MarketLiquidityUSD   float64 `json:"market_liquidity_usd"`
	MarketTotalSupplyUSD float64 `json:"market_total_supply_usd"`
}

// HasDebt reports whether the position carries a borrow balance.
func (p Position) HasDebt() bool {
	return p.BorrowedUSD > 0
}

// AccountSnapshot is the point-in-time view of an owner's holdings.
type AccountSnapshot struct {
	Owner        string             `json:"owner"`
	ChainID      string             `json:"chain_id"`
	Positions    []Position         `json:"positions"`
	HealthFactor float64            `json:"health_factor"`
	BalancesUSD  map[string]float64 `json:"balances_usd"` // liquid, un-deployed balances by symbol
}

// LiquidUSD sums the un-deployed balances.
func (a AccountSnapshot) LiquidUSD() float64 {
	total := 0.0
	for _, v := range a.BalancesUSD {
		total += v
	}
	return total
}

// YieldOpportunity is a deployable market ranked by the rebalancer.
type YieldOpportunity struct {
	Market       string    `json:"market"`
	Symbol       string    `json:"symbol"`
	APY          float64   `json:"apy"` // percent
	LiquidityUSD float64   `json:"liquidity_usd"`
	Risk         RiskLevel `json:"risk"`
}

// stableSymbols are assets treated as pegged for risk purposes.
var stableSymbols = map[string]struct{}{
	"USDC": {}, "USDT": {}, "DAI": {}, "USDE": {}, "FRAX": {}, "LUSD": {},
}

// majorSymbols are native gas tokens and major wrapped assets, volatile but
// deeply liquid.
var majorSymbols = map[string]struct{}{
	"ETH": {}, "WETH": {}, "BTC": {}, "WBTC": {}, "SOL": {}, "ATOM": {}, "BNB": {},
}

// IsStableSymbol reports whether the symbol is a recognized stablecoin.
func IsStableSymbol(symbol string) bool {
	_, ok := stableSymbols[symbol]
	return ok
}

// IsMajorSymbol reports whether the symbol is a major non-stable asset.
func IsMajorSymbol(symbol string) bool {
	_, ok := majorSymbols[symbol]
	return ok
}
