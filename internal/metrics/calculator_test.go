package metrics

import (
	"math"
	"testing"

	"github.com/axiom-fi/sae/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateNetAPY(t *testing.T) {
	tests := []struct {
		name      string
		positions []types.Position
		want      float64
	}{
		{
			name: "supply only, weighted",
			positions: []types.Position{
				{SuppliedUSD: 600, SupplyAPY: 8},
				{SuppliedUSD: 400, SupplyAPY: 6},
			},
			want: 7.2,
		},
		{
			name: "borrowing drags the net down",
			positions: []types.Position{
				{SuppliedUSD: 1000, SupplyAPY: 10, BorrowedUSD: 500, BorrowAPY: 4},
			},
			want: 6,
		},
		{
			name:      "no positions",
			positions: nil,
			want:      0,
		},
		{
			name: "zero supplied, borrow only",
			positions: []types.Position{
				{BorrowedUSD: 100, BorrowAPY: 5},
			},
			want: -5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateNetAPY(tt.positions), 1e-9)
		})
	}
}

func TestCalculateDiversificationScore(t *testing.T) {
	t.Run("empty portfolio scores zero", func(t *testing.T) {
		score, err := CalculateDiversificationScore(nil)
		require.NoError(t, err)
		assert.Zero(t, score)
	})

	t.Run("single position scores the fixed floor", func(t *testing.T) {
		score, err := CalculateDiversificationScore([]types.Position{{SuppliedUSD: 1000}})
		require.NoError(t, err)
		assert.Equal(t, singlePositionDiversification, score)
	})

	t.Run("two equal positions", func(t *testing.T) {
		score, err := CalculateDiversificationScore([]types.Position{
			{SuppliedUSD: 500}, {SuppliedUSD: 500},
		})
		require.NoError(t, err)
		// Herfindahl 0.5 -> 100 * (1 - 0.5) = 50.
		assert.InDelta(t, 50, score, 1e-9)
	})

	t.Run("always within bounds", func(t *testing.T) {
		positions := []types.Position{
			{SuppliedUSD: 990}, {SuppliedUSD: 5}, {SuppliedUSD: 5},
		}
		score, err := CalculateDiversificationScore(positions)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
	})
}

func TestCalculateRiskScore(t *testing.T) {
	tests := []struct {
		name      string
		positions []types.Position
		want      float64
	}{
		{
			name:      "empty portfolio",
			positions: nil,
			want:      0,
		},
		{
			// Utilization 0.95 (+40), HF 1.1 (+40), non-stable (+20) = 100.
			name: "worst case position caps at 100",
			positions: []types.Position{
				{Symbol: "PEPE", UtilizationRate: 0.95, HealthFactor: 1.1},
			},
			want: 100,
		},
		{
			// Stable, low utilization, comfortable HF: no penalties.
			name: "clean stable position",
			positions: []types.Position{
				{Symbol: "USDC", UtilizationRate: 0.3, HealthFactor: 5},
			},
			want: 0,
		},
		{
			// (0) and (25 + 10 + 20) averaged.
			name: "mixed positions average",
			positions: []types.Position{
				{Symbol: "USDC", UtilizationRate: 0.3, HealthFactor: 5},
				{Symbol: "ETH", UtilizationRate: 0.85, HealthFactor: 1.8},
			},
			want: 27.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := CalculateRiskScore(tt.positions)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, score, 1e-9)
		})
	}
}

func TestCalculateLiquidityScore(t *testing.T) {
	tests := []struct {
		name     string
		position types.Position
		want     float64
	}{
		{"deep market", types.Position{MarketLiquidityUSD: 600, MarketTotalSupplyUSD: 1000}, 100},
		{"healthy market", types.Position{MarketLiquidityUSD: 350, MarketTotalSupplyUSD: 1000}, 80},
		{"moderate market", types.Position{MarketLiquidityUSD: 150, MarketTotalSupplyUSD: 1000}, 60},
		{"thin market", types.Position{MarketLiquidityUSD: 60, MarketTotalSupplyUSD: 1000}, 40},
		{"illiquid market", types.Position{MarketLiquidityUSD: 10, MarketTotalSupplyUSD: 1000}, 20},
		{"zero supply treated as illiquid", types.Position{MarketLiquidityUSD: 10, MarketTotalSupplyUSD: 0}, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := CalculateLiquidityScore([]types.Position{tt.position})
			require.NoError(t, err)
			assert.Equal(t, tt.want, score)
		})
	}
}

func TestCalculatePortfolioMetrics(t *testing.T) {
	account := types.AccountSnapshot{
		Owner:        "owner-1",
		HealthFactor: 2.4,
		BalancesUSD:  map[string]float64{"USDC": 150},
		Positions: []types.Position{
			{Symbol: "USDC", SuppliedUSD: 600, SupplyAPY: 8, HealthFactor: 3.2, UtilizationRate: 0.5, MarketLiquidityUSD: 600, MarketTotalSupplyUSD: 1000},
			{Symbol: "ETH", SuppliedUSD: 400, BorrowedUSD: 100, SupplyAPY: 6, BorrowAPY: 3, HealthFactor: 2.4, UtilizationRate: 0.4, MarketLiquidityUSD: 350, MarketTotalSupplyUSD: 1000},
		},
	}

	m, err := CalculatePortfolioMetrics(account)
	require.NoError(t, err)

	assert.InDelta(t, 150+600+400-100, m.TotalValueUSD, 1e-9)
	assert.InDelta(t, 7.2-3.0, m.NetAPY, 1e-9)
	assert.Equal(t, 2.4, m.HealthFactor)
	assert.GreaterOrEqual(t, m.DiversificationScore, 0.0)
	assert.LessOrEqual(t, m.DiversificationScore, 100.0)
	assert.InDelta(t, 90, m.LiquidityScore, 1e-9)
}

func TestCalculatePortfolioMetricsRejectsBadData(t *testing.T) {
	account := types.AccountSnapshot{
		Owner:     "owner-1",
		Positions: []types.Position{{SuppliedUSD: math.NaN()}},
	}

	_, err := CalculatePortfolioMetrics(account)
	assert.ErrorIs(t, err, ErrInvalidPositionData)
}
