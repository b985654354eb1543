package generator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/novassure/graph-fraud-engine/internal/domain/transaction"
)

type fakeCreator struct {
	fail int32 // 1 = always fail
}

func (f *fakeCreator) CreateTransactionEdge(ctx context.Context, fromID, toID string, props transaction.EdgeProps) (string, error) {
	if atomic.LoadInt32(&f.fail) == 1 {
		return "", errors.New("graph unavailable")
	}
	return "edge-" + props.TxnID, nil
}

type fakeSubmitter struct {
	submitted int64
}

func (f *fakeSubmitter) Submit(ctx context.Context, info transaction.Info) transaction.Summary {
	atomic.AddInt64(&f.submitted, 1)
	return transaction.Summary{Info: info}
}

func testConfig() Config {
	return Config{
		WorkerPoolSize:         2,
		SchedulerTPSCapacity:   50,
		MaxTransactionRate:     1000,
		MaxConsecutiveFailures: 5,
		MinAmount:              1,
		MaxAmount:              100,
		Cities:                 []string{"Testville"},
		AccountIDs:             []string{"A1", "A2", "A3"},
	}
}

func TestStartRejectsOutOfRangeTps(t *testing.T) {
	g := New(testConfig(), &fakeCreator{}, &fakeSubmitter{}, nil, zap.NewNop(), nil)
	err := g.Start(context.Background(), 0)
	assert.Error(t, err)
	assert.Equal(t, StateStopped, g.State())
}

func TestStartRejectsWhenAlreadyRunning(t *testing.T) {
	g := New(testConfig(), &fakeCreator{}, &fakeSubmitter{}, nil, zap.NewNop(), nil)
	require.NoError(t, g.Start(context.Background(), 50))
	defer g.Stop()

	err := g.Start(context.Background(), 50)
	assert.Error(t, err)
}

func TestGenerateOneSubmitsOnSuccess(t *testing.T) {
	submitter := &fakeSubmitter{}
	g := New(testConfig(), &fakeCreator{}, submitter, nil, zap.NewNop(), nil)

	info := g.GenerateOne(context.Background())
	assert.True(t, info.Success)
	assert.NotEmpty(t, info.EdgeID)
	assert.NotEqual(t, info.FromAccountID, info.ToAccountID)
	assert.Equal(t, int64(1), atomic.LoadInt64(&submitter.submitted))
}

func TestStartStopDrainsWorkers(t *testing.T) {
	creator := &fakeCreator{}
	submitter := &fakeSubmitter{}
	g := New(testConfig(), creator, submitter, nil, zap.NewNop(), nil)

	require.NoError(t, g.Start(context.Background(), 100))
	time.Sleep(30 * time.Millisecond)
	g.Stop()

	assert.Equal(t, StateStopped, g.State())
	assert.True(t, atomic.LoadInt64(&submitter.submitted) > 0)
}

func TestConsecutiveFailuresTripsFatalStop(t *testing.T) {
	creator := &fakeCreator{fail: 1}
	var fatalCalled int32
	cfg := testConfig()
	cfg.MaxConsecutiveFailures = 3

	g := New(cfg, creator, &fakeSubmitter{}, nil, zap.NewNop(), func(err error) {
		atomic.StoreInt32(&fatalCalled, 1)
	})

	require.NoError(t, g.Start(context.Background(), 200))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fatalCalled) == 1
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		return g.State() == StateStopped
	}, time.Second, time.Millisecond)
}
