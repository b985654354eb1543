package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/novassure/graph-fraud-engine/internal/domain/rule"
	"github.com/novassure/graph-fraud-engine/internal/domain/transaction"
	"github.com/novassure/graph-fraud-engine/internal/graph"
)

// RT2 fires when either endpoint has a flagged 2-hop transactional
// neighbor: an account it has transacted with that itself carries
// fraud_flag=true.
type RT2 struct {
	client *graph.Client
}

func NewRT2(client *graph.Client) *RT2 {
	return &RT2{client: client}
}

func (r *RT2) Metadata() rule.State {
	return rule.State{
		Name:          "RT2",
		Description:   "Flagged 2-hop transactional neighbor",
		KeyIndicators: []string{"neighbor fraud_flag via TRANSACTS"},
		UseCase:       "Catches layering through an account one hop away from a known bad actor",
		Complexity:    rule.ComplexityMedium,
		Enabled:       true,
		RunAsync:      true,
	}
}

func (r *RT2) Evaluate(ctx context.Context, info transaction.Info) transaction.Verdict {
	start := time.Now()

	fromNeighbors, err := r.client.FlaggedNeighbors(ctx, info.FromAccountID)
	if err != nil {
		return rt2Exception(start, err)
	}
	toNeighbors, err := r.client.FlaggedNeighbors(ctx, info.ToAccountID)
	if err != nil {
		return rt2Exception(start, err)
	}

	flagged := dedupeStrings(append(fromNeighbors, toNeighbors...))

	verdict := transaction.Verdict{
		RuleName: "RT2",
		Status:   transaction.StatusCleared,
		Perf:     transaction.PerformanceInfo{Start: start, Duration: time.Since(start), OK: true},
	}

	if len(flagged) == 0 {
		return verdict
	}

	score := 75 + 5*len(flagged)
	if score > 95 {
		score = 95
	}
	status := transaction.StatusReview
	if score >= 90 {
		status = transaction.StatusBlocked
	}

	verdict.IsFraud = true
	verdict.Score = score
	verdict.Status = status
	verdict.Reason = "flagged 2-hop transactional neighbor"
	verdict.Details = transaction.Evidence{
		FlaggedEntities:          flagged,
		Sender:                   info.FromAccountID,
		Receiver:                 info.ToAccountID,
		ConnectedAccountsChecked: len(fromNeighbors) + len(toNeighbors),
		DetectionTime:            time.Now(),
		RuleName:                 "RT2",
		Complexity:               rule.ComplexityMedium,
	}
	return verdict
}

func rt2Exception(start time.Time, err error) transaction.Verdict {
	v := exceptionVerdict("RT2", fmt.Sprintf("neighbor projection failed: %v", err))
	v.Perf.Start = start
	v.Perf.Duration = time.Since(start)
	return v
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
