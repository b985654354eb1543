package performance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runMonitor(t *testing.T, m *Monitor) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestMonitor_TransactionStats(t *testing.T) {
	m := New(1000, 1000)
	runMonitor(t, m)

	now := time.Now()
	m.RecordTransaction(now, 10*time.Millisecond, 5*time.Millisecond, 1*time.Millisecond, 2*time.Millisecond, true)
	m.RecordTransaction(now, 20*time.Millisecond, 5*time.Millisecond, 1*time.Millisecond, 2*time.Millisecond, false)

	require.Eventually(t, func() bool {
		return m.TransactionStats(Window1Min).Count == 2
	}, time.Second, time.Millisecond)

	stats := m.TransactionStats(Window1Min)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 0.5, stats.SuccessRate)
	assert.Equal(t, 20*time.Millisecond, stats.Max)
	assert.Equal(t, 10*time.Millisecond, stats.Min)
}

func TestMonitor_RuleStats_UnknownRuleIsZero(t *testing.T) {
	m := New(100, 100)
	runMonitor(t, m)

	stats := m.RuleStats("RT9", Window1Min)
	assert.Equal(t, Stats{}, stats)
}

func TestMonitor_RuleStats(t *testing.T) {
	m := New(100, 100)
	runMonitor(t, m)

	now := time.Now()
	m.RecordRule("RT1", now, 3*time.Millisecond, true)
	m.RecordRule("RT1", now, 7*time.Millisecond, true)

	require.Eventually(t, func() bool {
		return m.RuleStats("RT1", Window1Min).Count == 2
	}, time.Second, time.Millisecond)

	stats := m.RuleStats("RT1", Window1Min)
	assert.Equal(t, 1.0, stats.SuccessRate)
	assert.Equal(t, 5*time.Millisecond, stats.Avg)
}

func TestCoerceWindow(t *testing.T) {
	tests := []struct {
		minutes   int
		want      time.Duration
		coerced   bool
	}{
		{1, Window1Min, false},
		{5, Window5Min, false},
		{10, Window10Min, false},
		{3, Window1Min, true},
		{0, Window1Min, true},
	}

	for _, tt := range tests {
		got, coerced := CoerceWindow(tt.minutes)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.coerced, coerced)
	}
}

func TestRingBuffer_EvictsOldest(t *testing.T) {
	rb := newRingBuffer(2)
	base := time.Now()
	rb.push(sample{at: base, duration: time.Millisecond})
	rb.push(sample{at: base.Add(time.Second), duration: 2 * time.Millisecond})
	rb.push(sample{at: base.Add(2 * time.Second), duration: 3 * time.Millisecond})

	all := rb.since(base.Add(-time.Hour))
	assert.Len(t, all, 2)
	assert.Equal(t, 2*time.Millisecond, all[0].duration)
	assert.Equal(t, 3*time.Millisecond, all[1].duration)
}
