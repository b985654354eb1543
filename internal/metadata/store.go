// Package metadata implements the write-behind counter aggregator:
// increments accumulate in memory and are periodically flushed as
// additive operations against Aerospike, keyed by (namespace, set,
// record name). A Redis read-through cache fronts readRecord so
// dashboard polling does not hit Aerospike on every call.
package metadata

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	aero "github.com/aerospike/aerospike-client-go/v6"
	"github.com/aerospike/aerospike-client-go/v6/types"
	"go.uber.org/zap"

	fraudErrors "github.com/novassure/graph-fraud-engine/internal/domain/errors"
)

// Seeds holds the default bin values written when a record does not
// yet exist in the store. Existing records are never overwritten with
// these defaults; they are applied with a create-only policy.
var Seeds = map[string]map[string]int64{
	"fraud":   {"total": 0, "blocked": 0, "review": 0, "amount": 0},
	"user":    {"low": 0, "medium": 0, "high": 0},
	"account": {"flagged": 0},
}

// record holds the in-memory, not-yet-flushed deltas for one counter
// kind. Deltas accumulate under mu; a flush drains the map to empty
// and issues the drained totals as additive Aerospike operations.
type record struct {
	name   string
	mu     sync.Mutex
	deltas map[string]int64
}

func newRecord(name string) *record {
	return &record{name: name, deltas: make(map[string]int64)}
}

func (r *record) increment(bin string, delta int64) {
	r.mu.Lock()
	r.deltas[bin] += delta
	r.mu.Unlock()
}

// drain atomically snapshots and resets the accumulated deltas. A nil
// result means there was nothing to flush.
func (r *record) drain() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.deltas) == 0 {
		return nil
	}
	snap := r.deltas
	r.deltas = make(map[string]int64)
	return snap
}

// restore merges a previously drained snapshot back in, used when a
// flush attempt fails so no increment is lost.
func (r *record) restore(snap map[string]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for bin, v := range snap {
		r.deltas[bin] += v
	}
}

// Store is the MetadataStore component: in-memory counter
// accumulation plus a background flush loop.
type Store struct {
	client    *aero.Client
	namespace string
	set       string
	cache     *readCache
	logger    *zap.Logger

	flushInterval  time.Duration
	flushThreshold int64

	mu             sync.Mutex
	records        map[string]*record
	unflushedTotal int64

	flushCh chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Config configures the store's KV address and flush policy.
type Config struct {
	Namespace      string
	SetName        string
	KVAddress      string
	FlushInterval  time.Duration
	FlushThreshold int64
	RedisAddr      string
	RedisTTL       time.Duration
}

// New connects to Aerospike and Redis and seeds any missing counter
// records with their defaults. It does not start the flush loop; call
// Run for that.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	host, port, err := splitHostPort(cfg.KVAddress)
	if err != nil {
		return nil, fraudErrors.NewConfigurationError("BAD_KV_ADDRESS", err.Error())
	}

	client, err := aero.NewClient(host, port)
	if err != nil {
		return nil, fraudErrors.NewGraphUnavailableError(fmt.Sprintf("aerospike connect: %v", err))
	}

	cache, err := newReadCache(cfg.RedisAddr, cfg.RedisTTL, logger)
	if err != nil {
		client.Close()
		return nil, fraudErrors.NewTransientError("REDIS_UNAVAILABLE", err.Error())
	}

	s := &Store{
		client:         client,
		namespace:      cfg.Namespace,
		set:            cfg.SetName,
		cache:          cache,
		logger:         logger,
		flushInterval:  cfg.FlushInterval,
		flushThreshold: cfg.FlushThreshold,
		records:        make(map[string]*record),
		flushCh:        make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
	}

	for name, seed := range Seeds {
		s.records[name] = newRecord(name)
		if err := s.ensureSeeded(name, seed); err != nil {
			logger.Warn("seeding metadata record failed", zap.String("record", name), zap.Error(err))
		}
	}

	return s, nil
}

// Run starts the background flush loop; it blocks until ctx is done
// or Close is called.
func (s *Store) Run(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushAll(context.Background())
			return
		case <-s.stopCh:
			s.flushAll(context.Background())
			return
		case <-ticker.C:
			s.flushAll(ctx)
		case <-s.flushCh:
			s.flushAll(ctx)
		}
	}
}

// Close stops the flush loop after a final drain and releases the
// underlying clients.
func (s *Store) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	if err := s.cache.close(); err != nil {
		s.logger.Warn("closing metadata cache", zap.Error(err))
	}
	s.client.Close()
	return nil
}

// Increment accumulates delta into (recordName, binName) in memory.
// Negative deltas are rejected; counters are monotonically
// non-decreasing by design.
func (s *Store) Increment(recordName, binName string, delta int64) error {
	if delta < 0 {
		return fraudErrors.NewInvariantError("NEGATIVE_DELTA", "metadata counter deltas must not be negative")
	}
	rec := s.recordFor(recordName)
	rec.increment(binName, delta)

	if atomic.AddInt64(&s.unflushedTotal, delta) >= s.flushThreshold {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// ReadRecord returns the latest persisted value for recordName. A
// cache hit may be up to one flush interval stale.
func (s *Store) ReadRecord(ctx context.Context, recordName string) (map[string]int64, error) {
	if bins, ok := s.cache.get(ctx, recordName); ok {
		return bins, nil
	}

	key, err := aero.NewKey(s.namespace, s.set, recordName)
	if err != nil {
		return nil, fraudErrors.Wrap(err, "building aerospike key")
	}

	rec, err := s.client.Get(nil, key)
	if err != nil {
		return nil, fraudErrors.NewGraphUnavailableError(fmt.Sprintf("metadata read failed: %v", err))
	}
	if rec == nil {
		return map[string]int64{}, nil
	}

	bins := make(map[string]int64, len(rec.Bins))
	for k, v := range rec.Bins {
		if iv, ok := toInt64(v); ok {
			bins[k] = iv
		}
	}

	s.cache.set(ctx, recordName, bins)
	return bins, nil
}

// Clear deletes recordName's record from the backing set, recreates it
// with its seeded defaults, and discards its in-memory deltas.
func (s *Store) Clear(ctx context.Context, recordName string) error {
	rec := s.recordFor(recordName)
	rec.drain()

	key, err := aero.NewKey(s.namespace, s.set, recordName)
	if err != nil {
		return fraudErrors.Wrap(err, "building aerospike key")
	}
	if _, err := s.client.Delete(nil, key); err != nil {
		return fraudErrors.NewGraphUnavailableError(fmt.Sprintf("metadata clear failed: %v", err))
	}

	s.cache.invalidate(ctx, recordName)
	return s.ensureSeeded(recordName, Seeds[recordName])
}

func (s *Store) recordFor(name string) *record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[name]
	if !ok {
		rec = newRecord(name)
		s.records[name] = rec
	}
	return rec
}

// flushAll drains and flushes every known record. Only one flush runs
// at a time because Run's select loop is the sole caller.
func (s *Store) flushAll(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	s.mu.Unlock()

	var flushed int64
	for _, name := range names {
		flushed += s.flushOne(ctx, name)
	}
	if flushed > 0 {
		atomic.AddInt64(&s.unflushedTotal, -flushed)
	}
}

func (s *Store) flushOne(ctx context.Context, name string) int64 {
	rec := s.recordFor(name)
	snap := rec.drain()
	if snap == nil {
		return 0
	}

	var total int64
	ops := make([]*aero.Operation, 0, len(snap))
	for bin, delta := range snap {
		total += delta
		ops = append(ops, aero.AddOp(aero.NewBin(bin, delta)))
	}

	key, err := aero.NewKey(s.namespace, s.set, name)
	if err != nil {
		rec.restore(snap)
		s.logger.Error("metadata flush: building key", zap.String("record", name), zap.Error(err))
		return 0
	}

	policy := aero.NewWritePolicy(0, 0)
	if _, err := s.client.Operate(policy, key, ops...); err != nil {
		rec.restore(snap)
		s.logger.Error("metadata flush failed, will retry", zap.String("record", name), zap.Error(err))
		return 0
	}

	s.cache.invalidate(ctx, name)
	return total
}

// ensureSeeded creates a record with its default bins using a
// create-only write; existing records are left untouched.
func (s *Store) ensureSeeded(name string, defaults map[string]int64) error {
	key, err := aero.NewKey(s.namespace, s.set, name)
	if err != nil {
		return err
	}

	bins := make([]*aero.Bin, 0, len(defaults))
	for bin, v := range defaults {
		bins = append(bins, aero.NewBin(bin, v))
	}

	policy := aero.NewWritePolicy(0, 0)
	policy.RecordExistsAction = aero.CREATE_ONLY

	err = s.client.PutBins(policy, key, bins...)
	if err != nil && err.Matches(types.KEY_EXISTS_ERROR) {
		return nil
	}
	return err
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func splitHostPort(addr string) (string, int, error) {
	var host string
	var port int
	if _, err := fmt.Sscanf(addr, "%[^:]:%d", &host, &port); err != nil {
		return "", 0, fmt.Errorf("invalid kv_address %q: %w", addr, err)
	}
	return host, port, nil
}
