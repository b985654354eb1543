package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/novassure/graph-fraud-engine/internal/config"
	"github.com/novassure/graph-fraud-engine/internal/domain/transaction"
	"github.com/novassure/graph-fraud-engine/internal/metadata"
	"github.com/novassure/graph-fraud-engine/internal/performance"
	"github.com/novassure/graph-fraud-engine/internal/rules"
	"github.com/novassure/graph-fraud-engine/internal/telemetry"
)

// Engine is the FraudEngine component: a bounded worker pool that fans
// each submitted transaction out to every enabled rule, consolidates
// the verdicts under a max-severity policy, and persists the result.
type Engine struct {
	cfg      Config
	registry *rules.Registry
	client   Annotator
	meta     *metadata.Store
	monitor  *performance.Monitor
	logger   *zap.Logger

	taskCh chan ruleTask
	wg     sync.WaitGroup
}

func New(cfg Config, registry *rules.Registry, client Annotator, meta *metadata.Store, monitor *performance.Monitor, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: registry,
		client:   client,
		meta:     meta,
		monitor:  monitor,
		logger:   logger,
		taskCh:   make(chan ruleTask, cfg.FraudWorkerPoolSize*2),
	}
}

// Start spins up the fixed rule-evaluation worker pool.
func (e *Engine) Start() {
	for i := 0; i < e.cfg.FraudWorkerPoolSize; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
}

// Stop drains in-flight tasks then returns once every worker has exited.
func (e *Engine) Stop() {
	close(e.taskCh)
	e.wg.Wait()
}

// Status reports pool occupancy for the control plane's stats call.
func (e *Engine) Status() Status {
	return Status{Workers: e.cfg.FraudWorkerPoolSize, QueuedTasks: len(e.taskCh)}
}

func (e *Engine) worker(id int) {
	defer e.wg.Done()
	for task := range e.taskCh {
		ctx, span := telemetry.StartRuleSpan(task.ctx, task.rule.Metadata().Name, task.info.TxnID)
		verdict := task.rule.Evaluate(ctx, task.info)
		if verdict.Exception {
			telemetry.RecordError(span, errors.New(verdict.Reason))
		}
		span.End()

		select {
		case task.resultCh <- verdict:
		case <-task.ctx.Done():
		}
	}
}

// Submit fans the transaction out to every enabled rule, waits up to the
// configured per-transaction deadline, consolidates whatever verdicts
// arrived in time, persists the annotation if any rule fired, and
// records performance/metadata side effects.
func (e *Engine) Submit(ctx context.Context, info transaction.Info) transaction.Summary {
	submitStart := time.Now()
	ctx, span := telemetry.StartEngineSpan(ctx, info.TxnID)
	defer span.End()

	enabled := e.registry.Enabled()
	if len(enabled) == 0 {
		return transaction.Summary{Info: info}
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, e.cfg.PerTransactionDeadline)
	defer cancel()

	resultCh := make(chan transaction.Verdict, len(enabled))
	for _, r := range enabled {
		t := ruleTask{rule: r, info: info, resultCh: resultCh}
		t.ctx = deadlineCtx
		select {
		case e.taskCh <- t:
		case <-deadlineCtx.Done():
		}
	}

	collected := make(map[string]transaction.Verdict, len(enabled))
collectLoop:
	for len(collected) < len(enabled) {
		select {
		case v := <-resultCh:
			collected[v.RuleName] = v
		case <-deadlineCtx.Done():
			break collectLoop
		}
	}

	orderedVerdicts := make([]transaction.Verdict, 0, len(enabled))
	for _, r := range enabled {
		name := r.Metadata().Name
		if v, ok := collected[name]; ok {
			orderedVerdicts = append(orderedVerdicts, v)
			continue
		}
		orderedVerdicts = append(orderedVerdicts, transaction.Verdict{
			RuleName:  name,
			Status:    transaction.StatusCleared,
			Reason:    "per-transaction deadline exceeded before rule completed",
			Exception: true,
		})
	}

	summary := transaction.Summary{Info: info, Verdicts: orderedVerdicts}

	score := 0
	status := transaction.StatusCleared
	var details []string
	anyFiring := false
	for _, v := range orderedVerdicts {
		if !v.IsFraud {
			continue
		}
		anyFiring = true
		if v.Score > score {
			score = v.Score
		}
		status = transaction.MaxStatus(status, v.Status)
		if b, err := json.Marshal(v.Details); err == nil {
			details = append(details, string(b))
		}
	}

	persistStart := time.Now()
	persistOK := true
	if anyFiring {
		ann := transaction.Annotation{
			IsFraud:       true,
			FraudScore:    score,
			FraudStatus:   status,
			EvalTimestamp: time.Now(),
			Details:       details,
		}
		if err := e.client.AnnotateEdge(ctx, info.EdgeID, ann); err != nil {
			persistOK = false
			e.logger.Error("annotate edge failed", zap.String("txn_id", info.TxnID), zap.Error(err))
		}
	}
	persistDuration := time.Since(persistStart)

	e.recordMetadata(info, anyFiring, status, score)
	e.recordPerformance(submitStart, info, orderedVerdicts, persistDuration, persistOK)

	return summary
}

func (e *Engine) recordMetadata(info transaction.Info, anyFiring bool, status transaction.FraudStatus, score int) {
	if !anyFiring {
		return
	}
	flagged := e.autoFlag(info, status, score)
	if e.meta == nil {
		return
	}
	if err := e.meta.Increment("fraud", "total", 1); err != nil {
		e.logger.Warn("metadata increment failed", zap.String("record", "fraud"), zap.Error(err))
	}

	switch status {
	case transaction.StatusBlocked:
		_ = e.meta.Increment("fraud", "blocked", 1)
	case transaction.StatusReview:
		_ = e.meta.Increment("fraud", "review", 1)
	}
	_ = e.meta.Increment("fraud", "amount", info.Amount.Round(0).IntPart())

	switch {
	case score >= 80:
		_ = e.meta.Increment("user", "high", 1)
	case score >= 50:
		_ = e.meta.Increment("user", "medium", 1)
	default:
		_ = e.meta.Increment("user", "low", 1)
	}

	if flagged > 0 {
		_ = e.meta.Increment("account", "flagged", int64(flagged))
	}
}

// autoFlag promotes one or both endpoints to fraud_flag=true once a
// transaction's consolidated score clears the configured threshold.
// Disabled by default; an operator opts in via engine.auto_flag_enabled.
func (e *Engine) autoFlag(info transaction.Info, status transaction.FraudStatus, score int) int {
	if !e.cfg.AutoFlagEnabled || score < e.cfg.AutoFlagFraudScoreThreshold {
		return 0
	}

	var targets []string
	switch e.cfg.AutoFlagMode {
	case config.AutoFlagSender:
		targets = []string{info.FromAccountID}
	case config.AutoFlagReceiver:
		targets = []string{info.ToAccountID}
	default:
		targets = []string{info.FromAccountID, info.ToAccountID}
	}

	flagged := 0
	for _, id := range targets {
		if err := e.client.SetFraudFlag(context.Background(), id); err != nil {
			e.logger.Warn("auto-flag failed", zap.String("account_id", id), zap.Error(err))
			continue
		}
		flagged++
	}
	return flagged
}

func (e *Engine) recordPerformance(submitStart time.Time, info transaction.Info, verdicts []transaction.Verdict, persistDuration time.Duration, persistOK bool) {
	if e.monitor == nil {
		return
	}
	now := time.Now()
	endToEnd := now.Sub(submitStart)
	queueWait := time.Duration(0)
	if !info.Perf.Start.IsZero() {
		endToEnd = now.Sub(info.Perf.Start)
		if w := submitStart.Sub(info.Perf.Start); w > 0 {
			queueWait = w
		}
	}
	execution := now.Sub(submitStart)

	e.monitor.RecordTransaction(now, endToEnd, execution, queueWait, persistDuration, persistOK)
	for _, v := range verdicts {
		e.monitor.RecordRule(v.RuleName, now, v.Perf.Duration, v.Perf.OK)
	}
}
