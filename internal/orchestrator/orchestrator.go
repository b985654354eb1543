// Package orchestrator owns the root lifecycle: construct the graph
// client, metadata store, performance monitor, rule registry, fraud
// engine, and transaction generator; warm the graph connection up;
// then expose the small control API the CLI and HTTP layer share.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/novassure/graph-fraud-engine/internal/config"
	"github.com/novassure/graph-fraud-engine/internal/domain/rule"
	"github.com/novassure/graph-fraud-engine/internal/engine"
	"github.com/novassure/graph-fraud-engine/internal/generator"
	"github.com/novassure/graph-fraud-engine/internal/graph"
	"github.com/novassure/graph-fraud-engine/internal/metadata"
	"github.com/novassure/graph-fraud-engine/internal/performance"
	"github.com/novassure/graph-fraud-engine/internal/rules"
)

// Orchestrator is the process's single root struct. It is the only
// process-wide state besides the log sink: the three pools it
// constructs here are created once at startup and disposed at
// shutdown, per the dependency-injection guidance this repo follows.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.Logger

	client   *graph.Client
	meta     *metadata.Store
	monitor  *performance.Monitor
	registry *rules.Registry
	engine   *engine.Engine

	mu        sync.Mutex
	generator *generator.Generator
	targetTps int
	startedAt time.Time

	fatalCh chan error
}

// monitorBufferCapacity and monitorQueueCapacity size the performance
// monitor's ring buffers and its lock-free ingestion queue; neither is
// currently exposed as a config key because operators tune pool sizes
// and rates, not internal buffer depth.
const (
	monitorBufferCapacity = 4096
	monitorQueueCapacity  = 8192
)

// New wires every component but starts nothing: pools, the metadata
// flush loop, and the performance consumer all start in Run.
func New(cfg *config.Config, logger *zap.Logger) (*Orchestrator, error) {
	client, err := graph.NewClient(graph.Config{
		Host:                    cfg.Graph.GremlinHost,
		Port:                    cfg.Graph.GremlinPort,
		MainConnectionPoolSize:  cfg.Graph.MainConnectionPoolSize,
		FraudConnectionPoolSize: cfg.Graph.FraudConnectionPoolSize,
	}, logger)
	if err != nil {
		return nil, err
	}

	metaStore, err := metadata.New(metadata.Config{
		Namespace:      cfg.Metadata.Namespace,
		SetName:        cfg.Metadata.SetName,
		KVAddress:      cfg.Metadata.KVAddress,
		FlushInterval:  cfg.Metadata.FlushInterval(),
		FlushThreshold: cfg.Metadata.FlushThreshold,
		RedisAddr:      cfg.Metadata.RedisAddr,
		RedisTTL:       cfg.Metadata.RedisTTL,
	}, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	monitor := performance.New(monitorBufferCapacity, monitorQueueCapacity)

	registry := rules.NewRegistry()
	registry.Register(rules.NewRT1(client), true)
	registry.Register(rules.NewRT2(client), true)
	registry.Register(rules.NewRT3(client), true)

	eng := engine.New(engine.FromEngineConfig(cfg.Engine), registry, client, metaStore, monitor, logger)

	return &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		meta:     metaStore,
		monitor:  monitor,
		registry: registry,
		engine:   eng,
		fatalCh:  make(chan error, 1),
	}, nil
}

// Run starts the metadata flush loop, the performance consumer, and the
// rule-evaluation pool, discovers the known account id space, runs an
// optional warmup pass, and constructs the generator against that id
// space. It returns once startup work is done; the background loops it
// started keep running until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	go o.meta.Run(ctx)
	go o.monitor.Run(ctx)
	o.engine.Start()

	ids, err := o.client.ListAccountIDs(ctx)
	if err != nil {
		o.logger.Warn("listing account ids failed; generator will start with an empty id space until seeded", zap.Error(err))
	}

	o.mu.Lock()
	o.generator = generator.New(generator.FromGeneratorConfig(o.cfg.Generator, ids), o.client, o.engine, o.monitor, o.logger, o.onGeneratorFatal)
	o.mu.Unlock()

	if o.cfg.Warmup.Enabled {
		o.warmup(ctx, ids)
	}
	return nil
}

// warmup issues one bounded-parallelism GetElementMap probe per known
// account so the fraud connection pool's handshakes and the graph
// server's query cache are warm before the generator starts.
func (o *Orchestrator) warmup(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, o.cfg.Warmup.Time)
	defer cancel()

	sem := make(chan struct{}, o.cfg.Warmup.Parallelism)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			_, _ = o.client.GetElementMap(wctx, []string{id}, []string{"fraud_flag"})
		}(id)
	}
	wg.Wait()
	o.logger.Info("warmup complete", zap.Int("accounts", len(ids)))
}

// Shutdown stops the generator and rule pool, giving in-flight work up
// to the configured grace period, then closes the metadata store and
// graph connections.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	gen := o.generator
	o.mu.Unlock()
	drained := make(chan struct{})
	go func() {
		if gen != nil && gen.State() != generator.StateStopped {
			gen.Stop()
		}
		o.engine.Stop()
		close(drained)
	}()

	var graceErr error
	select {
	case <-drained:
	case <-ctx.Done():
		graceErr = ctx.Err()
		o.logger.Warn("shutdown grace period elapsed before pools drained", zap.Error(graceErr))
	}

	if err := o.meta.Close(); err != nil {
		o.logger.Warn("metadata store close failed", zap.Error(err))
	}
	o.client.Close()
	return graceErr
}

// FatalCh surfaces generator-triggered fatal signals (e.g. the
// consecutive-failure circuit tripping) to whatever owns the process's
// main loop.
func (o *Orchestrator) FatalCh() <-chan error {
	return o.fatalCh
}

func (o *Orchestrator) onGeneratorFatal(err error) {
	select {
	case o.fatalCh <- err:
	default:
	}
}

// StartGenerator implements the control API's startGenerator(targetTps).
func (o *Orchestrator) StartGenerator(ctx context.Context, targetTps int) string {
	o.mu.Lock()
	gen := o.generator
	o.mu.Unlock()
	if gen == nil {
		return "invalid"
	}
	if gen.State() == generator.StateRunning {
		return "alreadyRunning"
	}
	if err := gen.Start(ctx, targetTps); err != nil {
		return "invalid"
	}

	o.mu.Lock()
	o.targetTps = targetTps
	o.startedAt = time.Now()
	o.mu.Unlock()
	return "started"
}

// StopGenerator implements the control API's stopGenerator().
func (o *Orchestrator) StopGenerator() string {
	o.mu.Lock()
	gen := o.generator
	o.mu.Unlock()
	if gen == nil || gen.State() != generator.StateRunning {
		return "notRunning"
	}
	gen.Stop()
	return "stopped"
}

// StatusReport is the control API's status() result.
type StatusReport struct {
	Running    bool
	TargetTps  int
	CurrentTps int
	ActualTps  float64
	QueueSize  int
	StartedAt  time.Time
}

// Status implements the control API's status().
func (o *Orchestrator) Status() StatusReport {
	o.mu.Lock()
	gen := o.generator
	targetTps := o.targetTps
	startedAt := o.startedAt
	o.mu.Unlock()

	running := gen != nil && gen.State() == generator.StateRunning
	actual := o.monitor.TransactionStats(performance.Window1Min).QPS

	return StatusReport{
		Running:    running,
		TargetTps:  targetTps,
		CurrentTps: targetTps,
		ActualTps:  actual,
		QueueSize:  o.engine.Status().QueuedTasks,
		StartedAt:  startedAt,
	}
}

// ListRules implements the control API's listRules().
func (o *Orchestrator) ListRules() []rule.State {
	return o.registry.List()
}

// ToggleRule implements the control API's toggleRule(name, enabled).
func (o *Orchestrator) ToggleRule(name string, enabled bool) error {
	return o.registry.Toggle(name, enabled)
}

// StatsReport is the control API's stats(window) result.
type StatsReport struct {
	WindowCoerced bool
	Transaction   performance.Stats
	Execution     performance.Stats
	QueueWait     performance.Stats
	DBLatency     performance.Stats
	Rules         map[string]performance.Stats
}

// Stats implements the control API's stats(window). An out-of-range
// window is coerced to 1 minute, with WindowCoerced reported so the
// caller can surface the diagnostic.
func (o *Orchestrator) Stats(minutes int) StatsReport {
	window, coerced := performance.CoerceWindow(minutes)

	ruleStats := make(map[string]performance.Stats)
	for _, name := range o.monitor.RuleNames() {
		ruleStats[name] = o.monitor.RuleStats(name, window)
	}

	return StatsReport{
		WindowCoerced: coerced,
		Transaction:   o.monitor.TransactionStats(window),
		Execution:     o.monitor.ExecutionStats(window),
		QueueWait:     o.monitor.QueueWaitStats(window),
		DBLatency:     o.monitor.DBLatencyStats(window),
		Rules:         ruleStats,
	}
}

// RuleStats implements the additive per-rule stats filter: stats(window,
// ruleName). The first bool reports whether the window was coerced, the
// second whether ruleName is registered.
func (o *Orchestrator) RuleStats(minutes int, ruleName string) (performance.Stats, bool, bool) {
	window, coerced := performance.CoerceWindow(minutes)
	for _, state := range o.registry.List() {
		if state.Name == ruleName {
			return o.monitor.RuleStats(ruleName, window), coerced, true
		}
	}
	return performance.Stats{}, coerced, false
}

// InspectIndexes implements the control API's inspectIndexes().
func (o *Orchestrator) InspectIndexes(ctx context.Context) graph.IndexReport {
	return o.client.InspectIndexes(ctx)
}

// CreateFraudIndex implements the CLI's create-fraud-index command.
func (o *Orchestrator) CreateFraudIndex(ctx context.Context) error {
	return o.client.CreateFraudIndex(ctx)
}

// FraudCounters exposes the write-behind "fraud" record's counters
// (total, blocked, review, amount) the engine accumulates, for the CLI's
// fraud summary view.
func (o *Orchestrator) FraudCounters(ctx context.Context) (map[string]int64, error) {
	return o.meta.ReadRecord(ctx, "fraud")
}

// AccountCounters exposes the account-level counters (currently just
// the auto-flagged count) the engine accumulates.
func (o *Orchestrator) AccountCounters(ctx context.Context) (map[string]int64, error) {
	return o.meta.ReadRecord(ctx, "account")
}

// SeedSampleData implements the CLI's seed command: creates the fixed
// demo graph and rebinds the generator's account id space to it.
func (o *Orchestrator) SeedSampleData(ctx context.Context) ([]string, error) {
	ids, err := o.client.SeedSampleData(ctx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.generator = generator.New(generator.FromGeneratorConfig(o.cfg.Generator, ids), o.client, o.engine, o.monitor, o.logger, o.onGeneratorFatal)
	o.mu.Unlock()
	return ids, nil
}

// GenerateOne implements a manual, synchronous single-transaction
// submission, used by the CLI's `transactions` exercise path without
// running the full scheduler.
func (o *Orchestrator) GenerateOne(ctx context.Context) (bool, error) {
	o.mu.Lock()
	gen := o.generator
	o.mu.Unlock()
	if gen == nil {
		return false, nil
	}
	info := gen.GenerateOne(ctx)
	return info.Success, nil
}
