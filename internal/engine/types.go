// Package engine implements FraudEngine: the bounded worker pool that
// fans a submitted transaction out to every enabled rule, consolidates
// their verdicts, and persists the result.
package engine

import (
	"context"
	"time"

	"github.com/novassure/graph-fraud-engine/internal/config"
	"github.com/novassure/graph-fraud-engine/internal/domain/transaction"
	"github.com/novassure/graph-fraud-engine/internal/rules"
)

// Config mirrors the engine section of the loaded configuration; kept
// as its own type so callers outside internal/config need not import it
// just to construct an Engine.
type Config struct {
	FraudWorkerPoolSize         int
	FraudWorkerMaxPoolSize      int
	PerTransactionDeadline      time.Duration
	AutoFlagEnabled             bool
	AutoFlagFraudScoreThreshold int
	AutoFlagMode                config.AutoFlagMode
}

// FromEngineConfig adapts the loaded configuration's Engine section.
func FromEngineConfig(c config.EngineConfig) Config {
	return Config{
		FraudWorkerPoolSize:         c.FraudWorkerPoolSize,
		FraudWorkerMaxPoolSize:      c.FraudWorkerMaxPoolSize,
		PerTransactionDeadline:      c.PerTransactionDeadline,
		AutoFlagEnabled:             c.AutoFlagEnabled,
		AutoFlagFraudScoreThreshold: c.AutoFlagFraudScoreThreshold,
		AutoFlagMode:                c.AutoFlagMode,
	}
}

// ruleTask is one unit of work handed to the worker pool: evaluate a
// single rule against a single transaction and report the verdict on
// resultCh.
type ruleTask struct {
	rule     rules.Rule
	info     transaction.Info
	resultCh chan<- transaction.Verdict
	ctx      context.Context
}

// Status summarizes pool occupancy for the control-plane stats call.
type Status struct {
	Workers     int
	QueuedTasks int
}

// Annotator is the narrow slice of GraphClient the engine needs to
// persist consolidation results; it exists so tests can substitute a
// fake without dialing a Gremlin server.
type Annotator interface {
	AnnotateEdge(ctx context.Context, edgeID string, ann transaction.Annotation) error
	SetFraudFlag(ctx context.Context, accountID string) error
}
