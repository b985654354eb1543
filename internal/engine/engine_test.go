package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/novassure/graph-fraud-engine/internal/config"
	"github.com/novassure/graph-fraud-engine/internal/domain/rule"
	"github.com/novassure/graph-fraud-engine/internal/domain/transaction"
	"github.com/novassure/graph-fraud-engine/internal/rules"
)

type fakeAnnotator struct {
	annotations map[string]transaction.Annotation
	flagged     map[string]bool
}

func newFakeAnnotator() *fakeAnnotator {
	return &fakeAnnotator{annotations: make(map[string]transaction.Annotation), flagged: make(map[string]bool)}
}

func (f *fakeAnnotator) AnnotateEdge(ctx context.Context, edgeID string, ann transaction.Annotation) error {
	f.annotations[edgeID] = ann
	return nil
}

func (f *fakeAnnotator) SetFraudFlag(ctx context.Context, accountID string) error {
	f.flagged[accountID] = true
	return nil
}

type fakeRule struct {
	name    string
	verdict transaction.Verdict
	delay   time.Duration
}

func (f fakeRule) Metadata() rule.State {
	return rule.State{Name: f.name}
}

func (f fakeRule) Evaluate(ctx context.Context, info transaction.Info) transaction.Verdict {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	v := f.verdict
	v.RuleName = f.name
	return v
}

func testEngine(t *testing.T, cfg Config, client Annotator, reg *rules.Registry) *Engine {
	t.Helper()
	logger := zap.NewNop()
	e := New(cfg, reg, client, nil, nil, logger)
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func TestSubmitClearedWhenNoRuleFires(t *testing.T) {
	reg := rules.NewRegistry()
	reg.Register(fakeRule{name: "R1", verdict: transaction.Verdict{IsFraud: false, Status: transaction.StatusCleared}}, true)

	client := newFakeAnnotator()
	e := testEngine(t, Config{FraudWorkerPoolSize: 2, PerTransactionDeadline: time.Second}, client, reg)

	info := transaction.Info{TxnID: "t1", EdgeID: "e1", FromAccountID: "A1", ToAccountID: "A2", Amount: decimal.NewFromInt(100)}
	summary := e.Submit(context.Background(), info)

	require.Len(t, summary.Verdicts, 1)
	assert.False(t, summary.Verdicts[0].IsFraud)
	assert.Empty(t, client.annotations)
}

func TestSubmitConsolidatesMaxSeverity(t *testing.T) {
	reg := rules.NewRegistry()
	reg.Register(fakeRule{name: "RT1", verdict: transaction.Verdict{
		IsFraud: true, Score: 100, Status: transaction.StatusBlocked,
		Details: transaction.Evidence{RuleName: "RT1"},
	}}, true)
	reg.Register(fakeRule{name: "RT2", verdict: transaction.Verdict{
		IsFraud: true, Score: 80, Status: transaction.StatusReview,
		Details: transaction.Evidence{RuleName: "RT2"},
	}}, true)

	client := newFakeAnnotator()
	e := testEngine(t, Config{FraudWorkerPoolSize: 2, PerTransactionDeadline: time.Second}, client, reg)

	info := transaction.Info{TxnID: "t2", EdgeID: "e2", FromAccountID: "A1", ToAccountID: "A2", Amount: decimal.NewFromInt(50)}
	summary := e.Submit(context.Background(), info)

	require.Len(t, summary.Verdicts, 2)
	ann, ok := client.annotations["e2"]
	require.True(t, ok)
	assert.Equal(t, 100, ann.FraudScore)
	assert.Equal(t, transaction.StatusBlocked, ann.FraudStatus)
	assert.Len(t, ann.Details, 2)
}

func TestSubmitTimesOutSlowRule(t *testing.T) {
	reg := rules.NewRegistry()
	reg.Register(fakeRule{name: "SLOW", delay: 200 * time.Millisecond}, true)

	client := newFakeAnnotator()
	e := testEngine(t, Config{FraudWorkerPoolSize: 1, PerTransactionDeadline: 20 * time.Millisecond}, client, reg)

	info := transaction.Info{TxnID: "t3", EdgeID: "e3", FromAccountID: "A1", ToAccountID: "A2", Amount: decimal.Zero}
	summary := e.Submit(context.Background(), info)

	require.Len(t, summary.Verdicts, 1)
	assert.True(t, summary.Verdicts[0].Exception)
}

func TestAutoFlagDisabledByDefault(t *testing.T) {
	reg := rules.NewRegistry()
	reg.Register(fakeRule{name: "RT1", verdict: transaction.Verdict{
		IsFraud: true, Score: 100, Status: transaction.StatusBlocked,
	}}, true)

	client := newFakeAnnotator()
	e := testEngine(t, Config{FraudWorkerPoolSize: 1, PerTransactionDeadline: time.Second, AutoFlagEnabled: false}, client, reg)

	info := transaction.Info{TxnID: "t4", EdgeID: "e4", FromAccountID: "A1", ToAccountID: "A2", Amount: decimal.Zero}
	e.Submit(context.Background(), info)

	assert.Empty(t, client.flagged)
}

func TestAutoFlagBothEndpointsWhenEnabled(t *testing.T) {
	reg := rules.NewRegistry()
	reg.Register(fakeRule{name: "RT1", verdict: transaction.Verdict{
		IsFraud: true, Score: 100, Status: transaction.StatusBlocked,
	}}, true)

	client := newFakeAnnotator()
	e := testEngine(t, Config{
		FraudWorkerPoolSize:         1,
		PerTransactionDeadline:      time.Second,
		AutoFlagEnabled:             true,
		AutoFlagFraudScoreThreshold: 90,
		AutoFlagMode:                config.AutoFlagBoth,
	}, client, reg)

	info := transaction.Info{TxnID: "t5", EdgeID: "e5", FromAccountID: "A1", ToAccountID: "A2", Amount: decimal.Zero}
	e.Submit(context.Background(), info)

	assert.True(t, client.flagged["A1"])
	assert.True(t, client.flagged["A2"])
}
