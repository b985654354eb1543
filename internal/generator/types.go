// Package generator implements TransactionGenerator: a token-bucket
// scheduled, bounded worker pool that manufactures TRANSACTS edges at a
// target rate and submits each successful write into the fraud engine.
package generator

import (
	"context"

	"github.com/novassure/graph-fraud-engine/internal/config"
	"github.com/novassure/graph-fraud-engine/internal/domain/transaction"
)

// State is the generator's lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return "STOPPED"
	}
}

// Config is the generator's tunable surface, adapted from the loaded
// configuration plus the account id space discovered at warmup.
type Config struct {
	WorkerPoolSize         int
	SchedulerTPSCapacity   int
	MaxTransactionRate     int
	MaxConsecutiveFailures int
	MinAmount              float64
	MaxAmount              float64
	Cities                 []string
	AccountIDs             []string
}

// FromGeneratorConfig adapts the loaded configuration's Generator
// section, binding in the account id space the orchestrator resolved
// during warmup.
func FromGeneratorConfig(c config.GeneratorConfig, accountIDs []string) Config {
	return Config{
		WorkerPoolSize:         c.TransactionWorkerPoolSize,
		SchedulerTPSCapacity:   c.SchedulerTPSCapacity,
		MaxTransactionRate:     c.MaxTransactionRate,
		MaxConsecutiveFailures: c.MaxConsecutiveFailures,
		MinAmount:              c.MinAmount,
		MaxAmount:              c.MaxAmount,
		Cities:                 c.Cities,
		AccountIDs:             accountIDs,
	}
}

// Creator is the narrow slice of GraphClient the generator needs to
// write a new TRANSACTS edge.
type Creator interface {
	CreateTransactionEdge(ctx context.Context, fromID, toID string, props transaction.EdgeProps) (string, error)
}

// Submitter is the narrow slice of FraudEngine the generator hands a
// successful write to.
type Submitter interface {
	Submit(ctx context.Context, info transaction.Info) transaction.Summary
}
