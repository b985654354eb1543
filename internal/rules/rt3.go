package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/novassure/graph-fraud-engine/internal/domain/rule"
	"github.com/novassure/graph-fraud-engine/internal/domain/transaction"
	"github.com/novassure/graph-fraud-engine/internal/graph"
)

// RT3 fires when a device reachable through the endpoints' ownership
// and transaction network carries fraud_flag=true.
type RT3 struct {
	client *graph.Client
}

func NewRT3(client *graph.Client) *RT3 {
	return &RT3{client: client}
}

func (r *RT3) Metadata() rule.State {
	return rule.State{
		Name:          "RT3",
		Description:   "Flagged device via ownership/transaction network",
		KeyIndicators: []string{"device fraud_flag reachable via OWNS/TRANSACTS/USES"},
		UseCase:       "Catches device-sharing fraud rings that rotate accounts",
		Complexity:    rule.ComplexityHigh,
		Enabled:       true,
		RunAsync:      true,
	}
}

func (r *RT3) Evaluate(ctx context.Context, info transaction.Info) transaction.Verdict {
	start := time.Now()

	devices, checked, err := r.client.DeviceNetworkProjection(ctx, []string{info.FromAccountID, info.ToAccountID})
	if err != nil {
		v := exceptionVerdict("RT3", fmt.Sprintf("device network projection failed: %v", err))
		v.Perf.Start = start
		v.Perf.Duration = time.Since(start)
		return v
	}

	verdict := transaction.Verdict{
		RuleName: "RT3",
		Status:   transaction.StatusCleared,
		Perf:     transaction.PerformanceInfo{Start: start, Duration: time.Since(start), OK: true},
	}

	if len(devices) == 0 {
		return verdict
	}

	verdict.IsFraud = true
	verdict.Score = 85
	verdict.Status = transaction.StatusReview
	verdict.Reason = "flagged device via ownership/transaction network"
	verdict.Details = transaction.Evidence{
		FlaggedEntities:          devices,
		Sender:                   info.FromAccountID,
		Receiver:                 info.ToAccountID,
		ConnectedAccountsChecked: checked,
		DetectionTime:            time.Now(),
		RuleName:                 "RT3",
		Complexity:               rule.ComplexityHigh,
	}
	return verdict
}
