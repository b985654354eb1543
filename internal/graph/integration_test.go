//go:build integration

package graph

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/novassure/graph-fraud-engine/internal/domain/transaction"
)

// startGremlinServer boots a real Gremlin Server container and returns
// its host/port. Run with `go test -tags integration ./internal/graph/...`
// against a Docker daemon; skipped otherwise since the default test
// run has no container runtime available.
func startGremlinServer(t *testing.T) (string, int) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "tinkerpop/gremlin-server:3.7",
		ExposedPorts: []string{"8182/tcp"},
		WaitingFor:   wait.ForLog("Channel started at port 8182").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, container)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8182/tcp")
	require.NoError(t, err)

	return host, port.Int()
}

// TestSeedAndInspectAgainstLiveGremlinServer exercises the seed and
// inspect-indexes control-plane operations against a real graph
// server, covering the one thing unit tests with fakes cannot: that
// the Gremlin bytecode this client builds actually parses and
// executes server-side.
func TestSeedAndInspectAgainstLiveGremlinServer(t *testing.T) {
	host, port := startGremlinServer(t)

	client, err := NewClient(Config{
		Host:                    host,
		Port:                    port,
		MainConnectionPoolSize:  2,
		FraudConnectionPoolSize: 2,
	}, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids, err := client.SeedSampleData(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 5)

	listedIDs, err := client.ListAccountIDs(ctx)
	require.NoError(t, err)
	require.Len(t, listedIDs, 5)

	report := client.InspectIndexes(ctx)
	require.True(t, report.Reachable)

	edgeID, err := client.CreateTransactionEdge(ctx, "A1", "A2", transaction.EdgeProps{
		TxnID:     "itest-1",
		Amount:    decimal.NewFromInt(25),
		Currency:  "USD",
		Timestamp: time.Now(),
		Type:      transaction.TypeTransfer,
		Status:    transaction.StatusCompleted,
		Location:  "Testville",
		GenType:   transaction.GenTypeManual,
	})
	require.NoError(t, err)
	require.NotEmpty(t, edgeID)
}

// TestDeviceNetworkProjectionFollowsTransactionThenOwnershipChain
// exercises RT3's traversal against a live graph server: a new edge
// A1->A2, a historical edge A3->A2, U1 owning A3 and using flagged
// device D1. The flagged device is only reachable by walking from the
// endpoints' transaction neighbors to their owners, not from the
// endpoints' own owners (A1/A2 have none in the seed data).
func TestDeviceNetworkProjectionFollowsTransactionThenOwnershipChain(t *testing.T) {
	host, port := startGremlinServer(t)

	client, err := NewClient(Config{
		Host:                    host,
		Port:                    port,
		MainConnectionPoolSize:  2,
		FraudConnectionPoolSize: 2,
	}, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err = client.SeedSampleData(ctx)
	require.NoError(t, err)

	require.NoError(t, client.FlagDevice(ctx, "D1"))

	_, err = client.CreateTransactionEdge(ctx, "A3", "A2", transaction.EdgeProps{
		TxnID:     "itest-historical",
		Amount:    decimal.NewFromInt(10),
		Currency:  "USD",
		Timestamp: time.Now().Add(-time.Hour),
		Type:      transaction.TypeTransfer,
		Status:    transaction.StatusCompleted,
		Location:  "Testville",
		GenType:   transaction.GenTypeManual,
	})
	require.NoError(t, err)

	_, err = client.CreateTransactionEdge(ctx, "A1", "A2", transaction.EdgeProps{
		TxnID:     "itest-new",
		Amount:    decimal.NewFromInt(25),
		Currency:  "USD",
		Timestamp: time.Now(),
		Type:      transaction.TypeTransfer,
		Status:    transaction.StatusCompleted,
		Location:  "Testville",
		GenType:   transaction.GenTypeManual,
	})
	require.NoError(t, err)

	devices, checked, err := client.DeviceNetworkProjection(ctx, []string{"A1", "A2"})
	require.NoError(t, err)
	require.Contains(t, devices, "D1")
	require.GreaterOrEqual(t, checked, 1)
}
