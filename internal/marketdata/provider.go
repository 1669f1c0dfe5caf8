/*

This file defines the market/position provider consumed by the engine and an
HTTP JSON implementation of it. The provider is the engine's only source of
live account, price and yield data; everything downstream treats its failures
as a per-scenario skip, never a cycle abort.

*/

package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/types"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

var ErrDataFetch = errors.New("market data fetch failed")
var ErrInvalidMarketData = errors.New("invalid market data received")

var providerLogger = logger.GetForComponent("market_data")

// Provider supplies live account snapshots, yield opportunities and asset
// prices.
type Provider interface {
	// GetAccount returns the current snapshot for an owner.
	GetAccount(ctx context.Context, owner string) (types.AccountSnapshot, error)

	// GetYieldOpportunities returns deployable markets above the liquidity
	// floor, filtered to the given risk tolerance.
	GetYieldOpportunities(ctx context.Context, minLiquidityUSD float64, riskTolerance types.RiskLevel) ([]types.YieldOpportunity, error)

	// GetAssetPrice returns the USD price of an asset symbol.
	GetAssetPrice(ctx context.Context, symbol string) (float64, error)
}

const (
	cacheTTL        = 30 * time.Second
	requestsPerSec  = 5
	breakerFailures = 5
)

// HTTPProvider implements Provider against a JSON REST API. Responses are
// cached briefly so the trigger evaluator and the scheduler do not hammer the
// upstream within one cycle, a rate limiter smooths request bursts, and a
// circuit breaker stops the engine from stalling every scenario when the
// upstream is down.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   *gocache.Cache
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPProvider creates a provider client for the given API base URL.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) (*HTTPProvider, error) {
	if baseURL == "" {
		return nil, errors.New("market data base URL cannot be empty")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "market_data",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		Timeout: 30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			providerLogger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		cache:   gocache.New(cacheTTL, 2*cacheTTL),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), requestsPerSec),
		breaker: breaker,
	}, nil
}

type accountResponse struct {
	Owner        string             `json:"owner"`
	ChainID      string             `json:"chain_id"`
	HealthFactor float64            `json:"health_factor"`
	Positions    []types.Position   `json:"positions"`
	BalancesUSD  map[string]float64 `json:"balances_usd"`
}

// GetAccount fetches the owner's positions and balances.
func (p *HTTPProvider) GetAccount(ctx context.Context, owner string) (types.AccountSnapshot, error) {
	cacheKey := "account:" + owner
	if cached, found := p.cache.Get(cacheKey); found {
		return cached.(types.AccountSnapshot), nil
	}

	var resp accountResponse
	if err := p.getJSON(ctx, "/v1/accounts/"+url.PathEscape(owner), nil, &resp); err != nil {
		return types.AccountSnapshot{}, err
	}

	snapshot := types.AccountSnapshot{
		Owner:        owner,
		ChainID:      resp.ChainID,
		Positions:    resp.Positions,
		HealthFactor: resp.HealthFactor,
		BalancesUSD:  resp.BalancesUSD,
	}
	if err := validateSnapshot(snapshot); err != nil {
		return types.AccountSnapshot{}, err
	}
	normalizeSnapshot(&snapshot)

	p.cache.Set(cacheKey, snapshot, gocache.DefaultExpiration)
	return snapshot, nil
}

type opportunitiesResponse struct {
	Opportunities []types.YieldOpportunity `json:"opportunities"`
}

// GetYieldOpportunities fetches deployable markets ranked by the upstream.
func (p *HTTPProvider) GetYieldOpportunities(ctx context.Context, minLiquidityUSD float64, riskTolerance types.RiskLevel) ([]types.YieldOpportunity, error) {
	cacheKey := fmt.Sprintf("opps:%.0f:%s", minLiquidityUSD, riskTolerance)
	if cached, found := p.cache.Get(cacheKey); found {
		return cached.([]types.YieldOpportunity), nil
	}

	query := url.Values{}
	query.Set("min_liquidity_usd", strconv.FormatFloat(minLiquidityUSD, 'f', 0, 64))
	query.Set("risk_tolerance", string(riskTolerance))

	var resp opportunitiesResponse
	if err := p.getJSON(ctx, "/v1/opportunities", query, &resp); err != nil {
		return nil, err
	}

	for _, opp := range resp.Opportunities {
		if math.IsNaN(opp.APY) || math.IsInf(opp.APY, 0) || opp.LiquidityUSD < 0 {
			return nil, fmt.Errorf("%w: opportunity %s has invalid fields", ErrInvalidMarketData, opp.Market)
		}
	}

	p.cache.Set(cacheKey, resp.Opportunities, gocache.DefaultExpiration)
	return resp.Opportunities, nil
}

type priceResponse struct {
	Symbol   string  `json:"symbol"`
	PriceUSD float64 `json:"price_usd"`
}

// GetAssetPrice fetches the USD price of a symbol.
func (p *HTTPProvider) GetAssetPrice(ctx context.Context, symbol string) (float64, error) {
	if symbol == "" {
		return 0, fmt.Errorf("%w: empty symbol", ErrInvalidMarketData)
	}

	cacheKey := "price:" + symbol
	if cached, found := p.cache.Get(cacheKey); found {
		return cached.(float64), nil
	}

	var resp priceResponse
	if err := p.getJSON(ctx, "/v1/prices/"+url.PathEscape(symbol), nil, &resp); err != nil {
		return 0, err
	}
	if math.IsNaN(resp.PriceUSD) || math.IsInf(resp.PriceUSD, 0) || resp.PriceUSD <= 0 {
		return 0, fmt.Errorf("%w: price for %s is %f", ErrInvalidMarketData, symbol, resp.PriceUSD)
	}

	p.cache.Set(cacheKey, resp.PriceUSD, gocache.DefaultExpiration)
	return resp.PriceUSD, nil
}

// getJSON performs a rate-limited, breaker-guarded GET and decodes the body.
func (p *HTTPProvider) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDataFetch, err)
	}

	endpoint := p.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	body, err := p.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	})
	if err != nil {
		providerLogger.Error().Err(err).Str("path", path).Msg("Market data request failed")
		return fmt.Errorf("%w: %w", ErrDataFetch, err)
	}

	if err := json.Unmarshal(body.([]byte), out); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", ErrInvalidMarketData, path, err)
	}
	return nil
}

// normalizeSnapshot establishes the debt-free sentinel. Providers commonly
// omit health_factor for positions carrying no debt; the zero value would
// otherwise read as near-liquidation and freeze withdrawals downstream.
func normalizeSnapshot(snapshot *types.AccountSnapshot) {
	accountHasDebt := false
	for i := range snapshot.Positions {
		if snapshot.Positions[i].HasDebt() {
			accountHasDebt = true
		} else if snapshot.Positions[i].HealthFactor == 0 {
			snapshot.Positions[i].HealthFactor = types.InfiniteHealthFactor
		}
	}
	if !accountHasDebt && snapshot.HealthFactor == 0 {
		snapshot.HealthFactor = types.InfiniteHealthFactor
	}
}

func validateSnapshot(snapshot types.AccountSnapshot) error {
	if math.IsNaN(snapshot.HealthFactor) || math.IsInf(snapshot.HealthFactor, 0) {
		return fmt.Errorf("%w: account health factor is not finite", ErrInvalidMarketData)
	}
	for i, pos := range snapshot.Positions {
		for name, v := range map[string]float64{
			"supplied_usd":     pos.SuppliedUSD,
			"borrowed_usd":     pos.BorrowedUSD,
			"supply_apy":       pos.SupplyAPY,
			"borrow_apy":       pos.BorrowAPY,
			"utilization_rate": pos.UtilizationRate,
			"health_factor":    pos.HealthFactor,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: position %d field %s is not finite", ErrInvalidMarketData, i, name)
			}
		}
		if pos.SuppliedUSD < 0 || pos.BorrowedUSD < 0 {
			return fmt.Errorf("%w: position %d has negative balances", ErrInvalidMarketData, i)
		}
	}
	return nil
}
