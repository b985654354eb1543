// Package transaction models the TRANSACTS edge and the runtime-only
// values that flow between the generator and the fraud engine.
package transaction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/novassure/graph-fraud-engine/internal/domain/rule"
)

// Type enumerates the transaction kinds generated and persisted on the
// TRANSACTS edge.
type Type string

const (
	TypeTransfer   Type = "transfer"
	TypePayment    Type = "payment"
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
)

// Types lists every generated transaction type, used by the generator's
// uniform-random selection.
var Types = []Type{TypeTransfer, TypePayment, TypeDeposit, TypeWithdrawal}

// Status enumerates the TRANSACTS edge's lifecycle status property.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// GenType distinguishes generator-authored transactions from ones
// submitted through the control plane or seeding tools.
type GenType string

const (
	GenTypeAuto   GenType = "AUTO"
	GenTypeManual GenType = "MANUAL"
)

// FraudStatus enumerates the consolidated annotation's fraud_status
// property. Rank order, low to high severity, is Cleared < Review <
// Blocked; FraudEngine consolidation takes the max rank among firing
// rules.
type FraudStatus string

const (
	StatusCleared FraudStatus = "cleared"
	StatusReview  FraudStatus = "review"
	StatusBlocked FraudStatus = "blocked"
)

// rank orders FraudStatus values for max-severity consolidation. Status
// values absent from this map rank 0, the same as StatusCleared.
var rank = map[FraudStatus]int{
	StatusCleared: 0,
	StatusReview:  1,
	StatusBlocked: 2,
}

// MaxStatus returns whichever of a, b has the higher severity rank.
func MaxStatus(a, b FraudStatus) FraudStatus {
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// EdgeProps is the full set of properties a TRANSACTS edge carries
// immediately after creation, before any rule consolidation.
type EdgeProps struct {
	TxnID     string
	Amount    decimal.Decimal
	Currency  string
	Timestamp time.Time
	Type      Type
	Status    Status
	Location  string
	GenType   GenType
}

// Annotation is the set of properties FraudEngine consolidation writes
// onto an edge when at least one rule fires. Absence of an Annotation
// on an edge denotes a clean transaction.
type Annotation struct {
	IsFraud       bool
	FraudScore    int
	FraudStatus   FraudStatus
	EvalTimestamp time.Time
	Details       []string
}

// Info is the runtime-only value produced by the generator after a
// successful edge write and consumed by the fraud engine. It is
// immutable once constructed.
type Info struct {
	Success       bool
	EdgeID        string
	TxnID         string
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Perf          PerformanceInfo
}

// PerformanceInfo is a timing/outcome envelope attached to generator
// submissions and rule verdicts.
type PerformanceInfo struct {
	Start    time.Time
	Duration time.Duration
	OK       bool
}

// Summary pairs an Info with the rule verdicts collected for it; it is
// the unit handed from FraudEngine.submit to consolidation.
type Summary struct {
	Info     Info
	Verdicts []Verdict
}

// Verdict is produced once per rule invocation for a given Info.
type Verdict struct {
	RuleName  string
	IsFraud   bool
	Score     int
	Reason    string
	Status    FraudStatus
	Details   Evidence
	Exception bool
	Perf      PerformanceInfo
}

// Evidence is the structured record a firing rule contributes to the
// edge's details list; it is JSON-encoded before being appended.
type Evidence struct {
	FlaggedEntities          []string        `json:"flagged_entities"`
	Sender                   string          `json:"sender"`
	Receiver                 string          `json:"receiver"`
	ConnectedAccountsChecked int             `json:"connected_accounts_checked"`
	DetectionTime            time.Time       `json:"detection_time"`
	RuleName                 string          `json:"rule_name"`
	Complexity               rule.Complexity `json:"complexity"`
}
