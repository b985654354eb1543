package graph

import (
	"fmt"
	"sync/atomic"

	gremlingo "github.com/apache/tinkerpop/gremlin-go/v3/driver"
	"go.uber.org/zap"
)

// connectionPool is a fixed set of independent remote connections to
// the graph server, round-robin selected. Two of these exist per
// Client ("main", "fraud") so rule traversals never contend with
// generator writes for a physical connection.
type connectionPool struct {
	name    string
	conns   []*gremlingo.DriverRemoteConnection
	counter uint64
}

func newConnectionPool(name, url string, size int, logger *zap.Logger) (*connectionPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%s pool size must be positive, got %d", name, size)
	}

	conns := make([]*gremlingo.DriverRemoteConnection, 0, size)
	for i := 0; i < size; i++ {
		conn, err := gremlingo.NewDriverRemoteConnection(url)
		if err != nil {
			for _, c := range conns {
				c.Close()
			}
			return nil, fmt.Errorf("%s pool: connection %d: %w", name, i, err)
		}
		conns = append(conns, conn)
	}

	logger.Info("graph connection pool established", zap.String("pool", name), zap.Int("size", size))
	return &connectionPool{name: name, conns: conns}, nil
}

// acquire returns the next connection in round-robin order. Callers
// never own the connection exclusively; it may be shared with other
// concurrent traversals, which is safe since the underlying driver
// multiplexes requests over its own transport.
func (p *connectionPool) acquire() *gremlingo.DriverRemoteConnection {
	idx := atomic.AddUint64(&p.counter, 1)
	return p.conns[idx%uint64(len(p.conns))]
}

// traversal returns a fresh traversal source bound to the next
// connection in the pool.
func (p *connectionPool) traversal() *gremlingo.GraphTraversalSource {
	return gremlingo.Traversal_().WithRemote(p.acquire())
}

func (p *connectionPool) close() {
	for _, c := range p.conns {
		c.Close()
	}
}
