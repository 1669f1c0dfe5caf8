/*

This file defines the transaction submitter boundary. The engine proposes
TransactionRequests; turning them into signed on-chain transactions is the
submitter's problem. The dry-run implementation is the default and the only
one shipped here.

*/

package submitter

import (
	"context"

	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Submitter hands proposed transactions to an execution backend and returns
// one reference per request.
type Submitter interface {
	Submit(ctx context.Context, requests []types.TransactionRequest) ([]string, error)
}

// DryRunSubmitter logs every proposal and submits nothing. Running dry is the
// default mode; live submission requires wiring a real backend deliberately.
type DryRunSubmitter struct {
	logger zerolog.Logger
}

// NewDryRun creates the logging-only submitter.
func NewDryRun() *DryRunSubmitter {
	return &DryRunSubmitter{logger: logger.GetForComponent("dry_run_submitter")}
}

// Submit logs each request and returns synthetic references.
func (s *DryRunSubmitter) Submit(_ context.Context, requests []types.TransactionRequest) ([]string, error) {
	refs := make([]string, 0, len(requests))
	for _, req := range requests {
		ref := "dryrun-" + uuid.New().String()
		s.logger.Info().
			Str("owner", req.Owner).
			Str("chainID", req.ChainID).
			Str("type", string(req.Action.Type)).
			Str("market", req.Action.Market).
			Str("amountUSD", req.Action.AmountUSD.String()).
			Str("reason", req.Action.Reason).
			Str("ref", ref).
			Msg("DRY RUN: transaction proposed, not submitted")
		refs = append(refs, ref)
	}
	return refs, nil
}
