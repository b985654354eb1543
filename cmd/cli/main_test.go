package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/novassure/graph-fraud-engine/internal/performance"
)

func TestParseWindowDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, parseWindow(nil))
	assert.Equal(t, 1, parseWindow([]string{"bogus"}))
	assert.Equal(t, 5, parseWindow([]string{"5"}))
}

func TestFormatStatsIncludesCoreFields(t *testing.T) {
	s := performance.Stats{
		Avg:         10 * time.Millisecond,
		Max:         50 * time.Millisecond,
		Min:         time.Millisecond,
		Count:       42,
		SuccessRate: 0.995,
		QPS:         123.4,
	}
	out := formatStats(s)
	assert.Contains(t, out, "count=42")
	assert.Contains(t, out, "successRate=0.99")
	assert.Contains(t, out, "qps=123.4")
}
