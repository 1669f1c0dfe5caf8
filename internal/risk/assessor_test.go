package risk

import (
	"testing"

	"github.com/axiom-fi/sae/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLiquidationRisk(t *testing.T) {
	tests := []struct {
		healthFactor float64
		want         types.RiskLevel
	}{
		{1.1, types.RiskHigh},
		{1.49, types.RiskHigh},
		{1.5, types.RiskMedium},
		{1.99, types.RiskMedium},
		{2.0, types.RiskLow},
		{types.InfiniteHealthFactor, types.RiskLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyLiquidationRisk(tt.healthFactor), "hf=%f", tt.healthFactor)
	}
}

// The averaged example: liquidation low (20), concentration 40, protocol 30,
// market 10 gives a mean of 25, classified low.
func TestAssessRiskAveragedExample(t *testing.T) {
	account := types.AccountSnapshot{
		Owner:        "owner-1",
		HealthFactor: 2.5, // low liquidation risk, numeric 20
		Positions: []types.Position{
			{Symbol: "USDC", SuppliedUSD: 500}, // stable, volatility 10
		},
	}
	portfolio := types.PortfolioMetrics{
		HealthFactor:         2.5,
		DiversificationScore: 60, // concentration = 40
		RiskScore:            30, // protocol = 30
		LiquidityScore:       80,
	}

	rm, err := AssessRisk(account, portfolio)
	require.NoError(t, err)

	assert.Equal(t, types.RiskLow, rm.LiquidationRisk)
	assert.InDelta(t, 40, rm.ConcentrationRisk, 1e-9)
	assert.InDelta(t, 30, rm.ProtocolRisk, 1e-9)
	assert.InDelta(t, 10, rm.MarketRisk, 1e-9)
	assert.Equal(t, types.RiskLow, rm.OverallRisk)
	assert.Empty(t, rm.Recommendations)
}

func TestAssessRiskHighOverall(t *testing.T) {
	account := types.AccountSnapshot{
		Owner:        "owner-1",
		HealthFactor: 1.2, // high liquidation risk, numeric 80
		Positions: []types.Position{
			{Symbol: "PEPE", SuppliedUSD: 900}, // volatile, 80
			{Symbol: "DOGE", SuppliedUSD: 100}, // volatile, 80
		},
	}
	portfolio := types.PortfolioMetrics{
		HealthFactor:         1.2,
		DiversificationScore: 20, // concentration 80
		RiskScore:            70,
		LiquidityScore:       20,
	}

	rm, err := AssessRisk(account, portfolio)
	require.NoError(t, err)

	// Mean of 80, 80, 70, 80 = 77.5 > 70.
	assert.Equal(t, types.RiskHigh, rm.OverallRisk)

	// Every factor breaches its advice threshold.
	assert.Contains(t, rm.Recommendations, adviceLiquidation)
	assert.Contains(t, rm.Recommendations, adviceConcentration)
	assert.Contains(t, rm.Recommendations, adviceProtocol)
	assert.Contains(t, rm.Recommendations, adviceMarket)
}

func TestAssessRiskMediumBand(t *testing.T) {
	account := types.AccountSnapshot{
		Owner:        "owner-1",
		HealthFactor: 1.8, // medium, numeric 50
		Positions: []types.Position{
			{Symbol: "ETH", SuppliedUSD: 500}, // major, 50
		},
	}
	portfolio := types.PortfolioMetrics{
		HealthFactor:         1.8,
		DiversificationScore: 50, // concentration 50
		RiskScore:            50,
	}

	rm, err := AssessRisk(account, portfolio)
	require.NoError(t, err)

	// Mean of 50, 50, 50, 50 = 50: medium band.
	assert.Equal(t, types.RiskMedium, rm.OverallRisk)
}

func TestCalculateMarketRiskMix(t *testing.T) {
	positions := []types.Position{
		{Symbol: "USDC"}, // 10
		{Symbol: "WBTC"}, // 50
		{Symbol: "SHIB"}, // 80
	}
	assert.InDelta(t, (10.0+50.0+80.0)/3.0, calculateMarketRisk(positions), 1e-9)

	assert.Zero(t, calculateMarketRisk(nil))
}

func TestAssessRiskRejectsOutOfRangeMetrics(t *testing.T) {
	account := types.AccountSnapshot{Owner: "owner-1", HealthFactor: 2}

	_, err := AssessRisk(account, types.PortfolioMetrics{DiversificationScore: 130})
	require.ErrorIs(t, err, ErrInvalidMetrics)

	_, err = AssessRisk(account, types.PortfolioMetrics{RiskScore: -5})
	require.ErrorIs(t, err, ErrInvalidMetrics)
}
