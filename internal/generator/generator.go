package generator

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	fraudErrors "github.com/novassure/graph-fraud-engine/internal/domain/errors"
	"github.com/novassure/graph-fraud-engine/internal/domain/transaction"
	"github.com/novassure/graph-fraud-engine/internal/performance"
)

// Generator is the TransactionGenerator component: STOPPED/RUNNING/
// STOPPING state machine, token-bucket rate control, bounded worker
// pool, consecutive-failure circuit.
type Generator struct {
	cfg     Config
	client  Creator
	engine  Submitter
	monitor *performance.Monitor
	logger  *zap.Logger
	onFatal func(error)

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	doneCh chan struct{}
	wg     sync.WaitGroup

	consecutiveFailures int64
}

// New constructs a Generator. onFatal, if non-nil, is called once (from
// a background goroutine) when the consecutive-failure circuit trips;
// the orchestrator wires it to its own shutdown signal.
func New(cfg Config, client Creator, engine Submitter, monitor *performance.Monitor, logger *zap.Logger, onFatal func(error)) *Generator {
	return &Generator{
		cfg:     cfg,
		client:  client,
		engine:  engine,
		monitor: monitor,
		logger:  logger,
		onFatal: onFatal,
		state:   StateStopped,
	}
}

// State reports the generator's current lifecycle state.
func (g *Generator) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Start transitions STOPPED → RUNNING and begins scheduling work at
// targetTps. Fails with an invariant error if the generator is not
// currently STOPPED, or if targetTps is out of range.
func (g *Generator) Start(ctx context.Context, targetTps int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateStopped {
		return fraudErrors.NewInvariantError("INVALID_STATE", "generator must be STOPPED to start")
	}
	if targetTps <= 0 || targetTps > g.cfg.MaxTransactionRate {
		return fraudErrors.NewInvariantError("OUT_OF_RANGE", "targetTps must be in (0, max_transaction_rate]")
	}
	if len(g.cfg.AccountIDs) < 2 {
		return fraudErrors.NewInvariantError("NO_ACCOUNT_SPACE", "generator has fewer than 2 known account ids")
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.state = StateRunning
	atomic.StoreInt64(&g.consecutiveFailures, 0)

	limiter := rate.NewLimiter(rate.Limit(targetTps), g.cfg.SchedulerTPSCapacity)
	taskCh := make(chan struct{}, g.cfg.WorkerPoolSize)

	g.wg.Add(1)
	go g.schedule(runCtx, limiter, taskCh)

	for i := 0; i < g.cfg.WorkerPoolSize; i++ {
		g.wg.Add(1)
		go g.worker(runCtx, taskCh)
	}

	done := make(chan struct{})
	g.doneCh = done
	go func() {
		g.wg.Wait()
		g.mu.Lock()
		g.state = StateStopped
		g.cancel = nil
		g.mu.Unlock()
		close(done)
	}()

	return nil
}

// Stop transitions RUNNING → STOPPING, cancels the scheduler and
// workers, and blocks until every in-flight submission has drained
// before returning with the generator STOPPED.
func (g *Generator) Stop() {
	g.mu.Lock()
	if g.state == StateStopped {
		g.mu.Unlock()
		return
	}
	if g.state == StateRunning {
		g.state = StateStopping
	}
	cancel := g.cancel
	done := g.doneCh
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (g *Generator) schedule(ctx context.Context, limiter *rate.Limiter, taskCh chan<- struct{}) {
	defer g.wg.Done()
	defer close(taskCh)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		select {
		case taskCh <- struct{}{}:
		case <-ctx.Done():
			return
		}
	}
}

func (g *Generator) worker(ctx context.Context, taskCh <-chan struct{}) {
	defer g.wg.Done()
	for range taskCh {
		g.GenerateOne(ctx)
	}
}

// GenerateOne is the synchronous create-one entry point: it is both the
// unit of work the scheduled worker pool runs and a manual entry point
// for the CLI/control plane's `seed`-adjacent one-off submissions.
func (g *Generator) GenerateOne(ctx context.Context) transaction.Info {
	from, to := g.pickAccounts()
	props := transaction.EdgeProps{
		TxnID:     uuid.NewString(),
		Amount:    decimal.NewFromFloat(g.randomAmount()),
		Currency:  "USD",
		Timestamp: time.Now(),
		Type:      transaction.Types[rand.Intn(len(transaction.Types))],
		Status:    transaction.StatusCompleted,
		Location:  g.cfg.Cities[rand.Intn(len(g.cfg.Cities))],
		GenType:   transaction.GenTypeAuto,
	}

	start := time.Now()
	edgeID, err := g.client.CreateTransactionEdge(ctx, from, to, props)
	duration := time.Since(start)

	if err != nil {
		g.recordFailure(err)
		if g.monitor != nil {
			g.monitor.RecordTransaction(time.Now(), duration, duration, 0, duration, false)
		}
		return transaction.Info{
			Success:       false,
			TxnID:         props.TxnID,
			FromAccountID: from,
			ToAccountID:   to,
			Amount:        props.Amount,
			Perf:          transaction.PerformanceInfo{Start: start, Duration: duration, OK: false},
		}
	}
	g.resetFailures()

	info := transaction.Info{
		Success:       true,
		EdgeID:        edgeID,
		TxnID:         props.TxnID,
		FromAccountID: from,
		ToAccountID:   to,
		Amount:        props.Amount,
		Perf:          transaction.PerformanceInfo{Start: start, Duration: duration, OK: true},
	}

	if g.engine != nil {
		g.engine.Submit(ctx, info)
	}
	return info
}

func (g *Generator) pickAccounts() (string, string) {
	ids := g.cfg.AccountIDs
	i := rand.Intn(len(ids))
	j := rand.Intn(len(ids))
	for j == i {
		j = rand.Intn(len(ids))
	}
	return ids[i], ids[j]
}

func (g *Generator) randomAmount() float64 {
	return g.cfg.MinAmount + rand.Float64()*(g.cfg.MaxAmount-g.cfg.MinAmount)
}

func (g *Generator) recordFailure(err error) {
	n := atomic.AddInt64(&g.consecutiveFailures, 1)
	g.logger.Warn("transaction creation failed", zap.Int64("consecutive_failures", n), zap.Error(err))
	if int(n) >= g.cfg.MaxConsecutiveFailures {
		g.triggerFatalStop(err)
	}
}

func (g *Generator) resetFailures() {
	atomic.StoreInt64(&g.consecutiveFailures, 0)
}

// triggerFatalStop moves the generator to STOPPING and notifies the
// orchestrator without blocking on the worker pool's own shutdown —
// called from inside a worker goroutine that is itself part of the
// pool being torn down.
func (g *Generator) triggerFatalStop(cause error) {
	g.mu.Lock()
	if g.state != StateRunning {
		g.mu.Unlock()
		return
	}
	g.state = StateStopping
	cancel := g.cancel
	g.mu.Unlock()

	g.logger.Error("consecutive transaction creation failures exceeded threshold, stopping generator", zap.Error(cause))
	if cancel != nil {
		cancel()
	}
	if g.onFatal != nil {
		g.onFatal(fraudErrors.NewFatalError("GENERATOR_FAILURE_THRESHOLD", "consecutive creation failures exceeded threshold"))
	}
}
