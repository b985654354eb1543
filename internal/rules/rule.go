// Package rules implements the pluggable fraud rule framework: a
// uniform Rule contract, the three reference rules, and a registry
// that tracks each rule's enabled state under a read-write lock.
package rules

import (
	"context"

	"github.com/novassure/graph-fraud-engine/internal/domain/rule"
	"github.com/novassure/graph-fraud-engine/internal/domain/transaction"
)

// Rule evaluates one transaction and must never panic: any internal
// failure is captured as an exception verdict rather than propagated.
type Rule interface {
	Metadata() rule.State
	Evaluate(ctx context.Context, info transaction.Info) transaction.Verdict
}

// exceptionVerdict builds the verdict a rule returns when it cannot
// complete its traversal — cleared status, no fraud claim, flagged so
// the engine can distinguish it from a clean result in telemetry.
func exceptionVerdict(ruleName, reason string) transaction.Verdict {
	return transaction.Verdict{
		RuleName:  ruleName,
		IsFraud:   false,
		Status:    transaction.StatusCleared,
		Reason:    reason,
		Exception: true,
		Perf:      transaction.PerformanceInfo{OK: false},
	}
}
