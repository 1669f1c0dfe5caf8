/*

This file contains the Gemini-backed strategy advisor. The model receives the
scenario, the account snapshot and the risk verdict as JSON and must answer
with a JSON advice object; anything else is rejected and surfaces as a
scenario failure, never as an executed action.

*/

package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const geminiRequestsPerMinute = 10

// GeminiAdvisor asks a Gemini model for scenario advice. Proposed actions are
// validated and re-priced before they reach the scheduler.
type GeminiAdvisor struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewGemini creates an advisor backed by the given API key and model name.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiAdvisor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing Gemini API key", ErrAdvisorUnavailable)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAdvisorUnavailable, err)
	}
	return &GeminiAdvisor{
		client:  client,
		model:   model,
		limiter: rate.NewLimiter(rate.Every(time.Minute/geminiRequestsPerMinute), 1),
		logger:  logger.GetForComponent("gemini_advisor"),
	}, nil
}

type advicePayload struct {
	Message string          `json:"message"`
	Actions []actionPayload `json:"actions"`
}

type actionPayload struct {
	Type            string `json:"type"`
	Market          string `json:"market"`
	AmountUSD       string `json:"amount_usd"`
	Reason          string `json:"reason"`
	ExpectedGainUSD string `json:"expected_gain_usd"`
	Risk            string `json:"risk"`
}

// Run sends the scenario context to the model and parses its advice.
func (g *GeminiAdvisor) Run(ctx context.Context, req Request) (Advice, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Advice{}, fmt.Errorf("%w: %w", ErrAdvisorUnavailable, err)
	}

	prompt, err := buildPrompt(req)
	if err != nil {
		return Advice{}, err
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, "user")}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		g.logger.Error().Err(err).Str("scenario", req.Scenario.ID).Msg("Gemini request failed")
		return Advice{}, fmt.Errorf("%w: %w", ErrAdvisorUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Advice{}, fmt.Errorf("%w: empty response", ErrMalformedAdvice)
	}

	raw := strings.Trim(resp.Candidates[0].Content.Parts[0].Text, "`json\n`")

	var payload advicePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		g.logger.Error().Err(err).Str("response", raw).Msg("Gemini advice did not parse")
		return Advice{}, fmt.Errorf("%w: %w", ErrMalformedAdvice, err)
	}

	advice := Advice{Message: payload.Message}
	for i, ap := range payload.Actions {
		action, err := convertAction(ap)
		if err != nil {
			return Advice{}, fmt.Errorf("%w: action %d: %w", ErrMalformedAdvice, i, err)
		}
		advice.Actions = append(advice.Actions, action)
	}

	g.logger.Debug().
		Str("scenario", req.Scenario.ID).
		Int("actions", len(advice.Actions)).
		Msg("Gemini advice accepted")
	return advice, nil
}

func convertAction(ap actionPayload) (types.RebalanceAction, error) {
	actionType := types.ActionType(strings.ToUpper(ap.Type))
	switch actionType {
	case types.ActionWithdraw, types.ActionDeposit, types.ActionBorrow, types.ActionRepay, types.ActionSwap:
	default:
		return types.RebalanceAction{}, fmt.Errorf("unknown action type %q", ap.Type)
	}

	risk := types.RiskLevel(strings.ToLower(ap.Risk))
	switch risk {
	case types.RiskLow, types.RiskMedium, types.RiskHigh:
	default:
		return types.RebalanceAction{}, fmt.Errorf("unknown risk level %q", ap.Risk)
	}

	amount, err := sdkmath.LegacyNewDecFromStr(ap.AmountUSD)
	if err != nil {
		return types.RebalanceAction{}, fmt.Errorf("amount %q: %w", ap.AmountUSD, err)
	}
	if amount.IsNegative() {
		return types.RebalanceAction{}, fmt.Errorf("amount %q is negative", ap.AmountUSD)
	}
	gain := sdkmath.LegacyZeroDec()
	if ap.ExpectedGainUSD != "" {
		gain, err = sdkmath.LegacyNewDecFromStr(ap.ExpectedGainUSD)
		if err != nil {
			return types.RebalanceAction{}, fmt.Errorf("expected gain %q: %w", ap.ExpectedGainUSD, err)
		}
	}

	return types.RebalanceAction{
		Type:            actionType,
		AmountUSD:       amount,
		Market:          ap.Market,
		Reason:          ap.Reason,
		ExpectedGainUSD: gain,
		Risk:            risk,
	}, nil
}

// buildPrompt serializes the request into the instruction the model answers.
func buildPrompt(req Request) (string, error) {
	scenario, err := json.Marshal(req.Scenario)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedAdvice, err)
	}
	account, err := json.Marshal(req.Account)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedAdvice, err)
	}
	risk, err := json.Marshal(req.Risk)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedAdvice, err)
	}

	var b strings.Builder
	b.WriteString("You are a DeFi portfolio automation advisor. Decide what this scenario should do right now.\n\n")
	b.WriteString("Scenario:\n")
	b.Write(scenario)
	b.WriteString("\n\nAccount snapshot:\n")
	b.Write(account)
	b.WriteString("\n\nRisk assessment:\n")
	b.Write(risk)
	b.WriteString("\n\nAnswer with a single JSON object and nothing else:\n")
	b.WriteString(`{"message": "<one sentence rationale>", "actions": [{"type": "WITHDRAW|DEPOSIT|BORROW|REPAY|SWAP", "market": "<market id>", "amount_usd": "<decimal string>", "reason": "<why>", "expected_gain_usd": "<decimal string>", "risk": "low|medium|high"}]}`)
	b.WriteString("\nReturn an empty actions array when no action is warranted.")
	return b.String(), nil
}
