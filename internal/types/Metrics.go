/*

This file contains the derived portfolio and risk metric types. Both are
recomputed every cycle from an account snapshot and never persisted on their
own.

*/

package types

// RiskLevel is a qualitative risk classification.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Penalty returns the yield discount factor applied when ranking
// opportunities by risk-adjusted yield.
func (r RiskLevel) Penalty() float64 {
	switch r {
	case RiskHigh:
		return 0.7
	case RiskMedium:
		return 0.85
	default:
		return 1.0
	}
}

// Numeric maps the level onto the 0-100 scale used when averaging risk
// factors.
func (r RiskLevel) Numeric() float64 {
	switch r {
	case RiskHigh:
		return 80
	case RiskMedium:
		return 50
	default:
		return 20
	}
}

// PortfolioMetrics are the scores derived from an account snapshot.
// All *Score fields lie in [0,100].
type PortfolioMetrics struct {
	TotalValueUSD        float64 `json:"total_value_usd"`
	NetAPY               float64 `json:"net_apy"` // percent
	HealthFactor         float64 `json:"health_factor"`
	DiversificationScore float64 `json:"diversification_score"`
	RiskScore            float64 `json:"risk_score"`
	LiquidityScore       float64 `json:"liquidity_score"`
}

// RiskMetrics is the qualitative verdict derived from PortfolioMetrics.
type RiskMetrics struct {
	HealthFactor      float64   `json:"health_factor"`
	LiquidationRisk   RiskLevel `json:"liquidation_risk"`
	ConcentrationRisk float64   `json:"concentration_risk"` // 0-100
	ProtocolRisk      float64   `json:"protocol_risk"`      // 0-100
	MarketRisk        float64   `json:"market_risk"`        // 0-100
	OverallRisk       RiskLevel `json:"overall_risk"`
	Recommendations   []string  `json:"recommendations,omitempty"`
}
