package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/novassure/graph-fraud-engine/internal/domain/rule"
	"github.com/novassure/graph-fraud-engine/internal/domain/transaction"
	"github.com/novassure/graph-fraud-engine/internal/graph"
)

// RT1 fires when either transaction endpoint is itself flagged
// fraudulent. Each account id is looked up with its own element-map
// round trip; the two lookups are not combined into one.
type RT1 struct {
	client *graph.Client
}

func NewRT1(client *graph.Client) *RT1 {
	return &RT1{client: client}
}

func (r *RT1) Metadata() rule.State {
	return rule.State{
		Name:          "RT1",
		Description:   "Direct counterparty flagged",
		KeyIndicators: []string{"sender fraud_flag", "receiver fraud_flag"},
		UseCase:       "Blocks transactions touching a known-fraudulent account directly",
		Complexity:    rule.ComplexityLow,
		Enabled:       true,
		RunAsync:      true,
	}
}

func (r *RT1) Evaluate(ctx context.Context, info transaction.Info) transaction.Verdict {
	start := time.Now()

	fields, err := r.client.GetElementMap(ctx, []string{info.FromAccountID, info.ToAccountID}, []string{"fraud_flag"})
	if err != nil {
		v := exceptionVerdict("RT1", fmt.Sprintf("element lookup failed: %v", err))
		v.Perf.Start = start
		v.Perf.Duration = time.Since(start)
		return v
	}

	var flagged []string
	if graph.FraudFlag(fields[info.FromAccountID]) {
		flagged = append(flagged, info.FromAccountID)
	}
	if graph.FraudFlag(fields[info.ToAccountID]) {
		flagged = append(flagged, info.ToAccountID)
	}

	verdict := transaction.Verdict{
		RuleName: "RT1",
		Status:   transaction.StatusCleared,
		Perf:     transaction.PerformanceInfo{Start: start, Duration: time.Since(start), OK: true},
	}

	if len(flagged) > 0 {
		verdict.IsFraud = true
		verdict.Score = 100
		verdict.Status = transaction.StatusBlocked
		verdict.Reason = "direct counterparty flagged"
		verdict.Details = transaction.Evidence{
			FlaggedEntities:          flagged,
			Sender:                   info.FromAccountID,
			Receiver:                 info.ToAccountID,
			ConnectedAccountsChecked: 2,
			DetectionTime:            time.Now(),
			RuleName:                 "RT1",
			Complexity:               rule.ComplexityLow,
		}
	}

	return verdict
}
