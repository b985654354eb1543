// Package graph wraps the TinkerPop Gremlin driver behind the narrow
// traversal API the fraud engine needs: edge creation/annotation,
// element lookups, and rule projections, each routed to one of two
// independently pooled connections ("main" and "fraud").
package graph

import (
	"context"
	"fmt"

	gremlingo "github.com/apache/tinkerpop/gremlin-go/v3/driver"
	"go.uber.org/zap"

	fraudErrors "github.com/novassure/graph-fraud-engine/internal/domain/errors"
	"github.com/novassure/graph-fraud-engine/internal/domain/transaction"
)

const (
	labelAccount   = "account"
	labelTransacts = "TRANSACTS"
	propAccountID  = "accountId"
	propFraudFlag  = "fraud_flag"
)

// Client is the GraphClient component.
type Client struct {
	main   *connectionPool
	fraud  *connectionPool
	logger *zap.Logger
}

// Config addresses the Gremlin server and sizes the two pools.
type Config struct {
	Host                    string
	Port                    int
	MainConnectionPoolSize  int
	FraudConnectionPoolSize int
}

// NewClient dials both connection pools against the same endpoint.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	url := fmt.Sprintf("ws://%s:%d/gremlin", cfg.Host, cfg.Port)

	main, err := newConnectionPool("main", url, cfg.MainConnectionPoolSize, logger)
	if err != nil {
		return nil, fraudErrors.NewConfigurationError("BAD_MAIN_POOL", err.Error())
	}

	fraud, err := newConnectionPool("fraud", url, cfg.FraudConnectionPoolSize, logger)
	if err != nil {
		main.close()
		return nil, fraudErrors.NewConfigurationError("BAD_FRAUD_POOL", err.Error())
	}

	return &Client{main: main, fraud: fraud, logger: logger}, nil
}

// Close releases both connection pools.
func (c *Client) Close() {
	c.main.close()
	c.fraud.close()
}

// FraudTraversal returns a traversal source bound to the "fraud" pool,
// for rules to build their own single round-trip queries against.
func (c *Client) FraudTraversal() *gremlingo.GraphTraversalSource {
	return c.fraud.traversal()
}

// CreateTransactionEdge appends a TRANSACTS edge between two existing
// account vertices. UUIDs are client-generated, so a pre-existing
// txn_id is always a duplicate and treated as fatal.
func (c *Client) CreateTransactionEdge(ctx context.Context, fromID, toID string, props transaction.EdgeProps) (string, error) {
	g := c.main.traversal()

	dupCount, err := g.E().HasLabel(labelTransacts).Has("txn_id", props.TxnID).Count().Next()
	if err != nil {
		return "", fraudErrors.NewGraphUnavailableError(fmt.Sprintf("duplicate check failed: %v", err))
	}
	if n, _ := dupCount.GetInt(); n > 0 {
		return "", fraudErrors.ErrDuplicateTxnID
	}

	result, err := g.V().Has(labelAccount, propAccountID, fromID).As("from").
		V().Has(labelAccount, propAccountID, toID).As("to").
		AddE(labelTransacts).From("from").To("to").
		Property("txn_id", props.TxnID).
		Property("amount", props.Amount.InexactFloat64()).
		Property("currency", props.Currency).
		Property("timestamp", props.Timestamp).
		Property("type", string(props.Type)).
		Property("status", string(props.Status)).
		Property("location", props.Location).
		Property("gen_type", string(props.GenType)).
		ElementMap().
		Next()
	if err != nil {
		return "", fraudErrors.NewGraphUnavailableError(fmt.Sprintf("edge creation failed: %v", err))
	}

	elementMap, err := result.GetInterface()
	if err != nil {
		return "", fraudErrors.NewGraphUnavailableError(fmt.Sprintf("decoding edge result: %v", err))
	}

	edgeID, err := extractID(elementMap)
	if err != nil {
		return "", fraudErrors.NewNotFoundError("account")
	}
	return edgeID, nil
}

// AnnotateEdge idempotently overwrites the consolidated fraud
// properties on a transaction edge.
func (c *Client) AnnotateEdge(ctx context.Context, edgeID string, ann transaction.Annotation) error {
	g := c.main.traversal()

	t := g.E(edgeID).
		Property("is_fraud", ann.IsFraud).
		Property("fraud_score", ann.FraudScore).
		Property("fraud_status", string(ann.FraudStatus)).
		Property("eval_timestamp", ann.EvalTimestamp)

	details := make([]interface{}, len(ann.Details))
	for i, d := range ann.Details {
		details[i] = d
	}
	t = t.Property("details", details)

	if _, err := t.Next(); err != nil {
		return fraudErrors.NewGraphUnavailableError(fmt.Sprintf("annotate edge failed: %v", err))
	}
	return nil
}

// GetElementMap fetches the requested fields for each account vertex
// in one round trip per id; RT1 uses it to read fraud_flag.
func (c *Client) GetElementMap(ctx context.Context, accountIDs []string, fields []string) (map[string]map[string]interface{}, error) {
	g := c.fraud.traversal()
	out := make(map[string]map[string]interface{}, len(accountIDs))

	for _, id := range accountIDs {
		result, err := g.V().Has(labelAccount, propAccountID, id).ValueMap(fields...).Next()
		if err != nil {
			return nil, fraudErrors.NewNotFoundError("account")
		}
		raw, err := result.GetInterface()
		if err != nil {
			return nil, fraudErrors.NewGraphUnavailableError(fmt.Sprintf("decoding element map: %v", err))
		}
		out[id] = flattenValueMap(raw)
	}
	return out, nil
}

// FlaggedNeighbors projects, from one account endpoint, the distinct
// set of accounts it has ever transacted with (in either direction)
// that carry fraud_flag=true. RT2 uses this once per endpoint.
func (c *Client) FlaggedNeighbors(ctx context.Context, accountID string) ([]string, error) {
	g := c.fraud.traversal()

	results, err := g.V().Has(labelAccount, propAccountID, accountID).
		Both(labelTransacts).Has(propFraudFlag, true).
		Values(propAccountID).Dedup().ToList()
	if err != nil {
		return nil, fraudErrors.NewGraphUnavailableError(fmt.Sprintf("neighbor projection failed: %v", err))
	}

	neighbors := make([]string, 0, len(results))
	for _, r := range results {
		s, err := r.GetString()
		if err == nil {
			neighbors = append(neighbors, s)
		}
	}
	return neighbors, nil
}

// DeviceNetworkProjection implements RT3's traversal: the endpoint
// accounts' transaction neighbors (in either direction), those
// neighbors' owners, and the flagged devices those owners use.
// Returns the flagged device ids and how many transaction-neighbor
// accounts were examined.
func (c *Client) DeviceNetworkProjection(ctx context.Context, accountIDs []string) ([]string, int, error) {
	g := c.fraud.traversal()

	endpointIDs := toInterfaceSlice(accountIDs)
	connected, err := g.V().Has(labelAccount, propAccountID, gremlingo.P.Within(endpointIDs...)).
		Both(labelTransacts).Dedup().
		Values(propAccountID).Dedup().ToList()
	if err != nil {
		return nil, 0, fraudErrors.NewGraphUnavailableError(fmt.Sprintf("device network connected-account projection failed: %v", err))
	}

	connectedIDs := make([]string, 0, len(connected))
	for _, r := range connected {
		s, err := r.GetString()
		if err == nil {
			connectedIDs = append(connectedIDs, s)
		}
	}
	if len(connectedIDs) == 0 {
		return nil, 0, nil
	}

	devices, err := g.V().Has(labelAccount, propAccountID, gremlingo.P.Within(toInterfaceSlice(connectedIDs)...)).
		In("OWNS").Dedup().
		Out("USES").Has(propFraudFlag, true).Dedup().
		Values("deviceId").ToList()
	if err != nil {
		return nil, 0, fraudErrors.NewGraphUnavailableError(fmt.Sprintf("device network device projection failed: %v", err))
	}

	flaggedDevices := make([]string, 0, len(devices))
	for _, r := range devices {
		s, err := r.GetString()
		if err == nil {
			flaggedDevices = append(flaggedDevices, s)
		}
	}
	return flaggedDevices, len(connectedIDs), nil
}

// ListAccountIDs returns every known account vertex's accountId
// property; the generator uses this as its sender/receiver id space.
func (c *Client) ListAccountIDs(ctx context.Context) ([]string, error) {
	g := c.main.traversal()
	results, err := g.V().HasLabel(labelAccount).Values(propAccountID).ToList()
	if err != nil {
		return nil, fraudErrors.NewGraphUnavailableError(fmt.Sprintf("listing account ids failed: %v", err))
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		s, err := r.GetString()
		if err == nil {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// SeedSampleData creates the fixed demo graph used by the end-to-end
// scenarios: five accounts (A1..A5), one device (D1), and one user
// (U1) who owns A3 and uses D1. Not idempotent: re-running against an
// already-seeded graph produces duplicate vertices; callers run it once
// against a fresh graph.
func (c *Client) SeedSampleData(ctx context.Context) ([]string, error) {
	g := c.main.traversal()

	accountIDs := []string{"A1", "A2", "A3", "A4", "A5"}
	for _, id := range accountIDs {
		if _, err := g.AddV(labelAccount).
			Property(propAccountID, id).
			Property(propFraudFlag, false).
			Property("balance", 1000.0).
			Property("type", "checking").
			Next(); err != nil {
			return nil, fraudErrors.NewGraphUnavailableError(fmt.Sprintf("seeding account %s failed: %v", id, err))
		}
	}

	if _, err := g.AddV("device").
		Property("deviceId", "D1").
		Property(propFraudFlag, false).
		Next(); err != nil {
		return nil, fraudErrors.NewGraphUnavailableError(fmt.Sprintf("seeding device D1 failed: %v", err))
	}

	if _, err := g.AddV("user").Property("userId", "U1").Next(); err != nil {
		return nil, fraudErrors.NewGraphUnavailableError(fmt.Sprintf("seeding user U1 failed: %v", err))
	}

	if _, err := g.V().Has("user", "userId", "U1").As("u").
		V().Has(labelAccount, propAccountID, "A3").As("a3").
		AddE("OWNS").From("u").To("a3").
		Next(); err != nil {
		return nil, fraudErrors.NewGraphUnavailableError(fmt.Sprintf("seeding OWNS U1->A3 failed: %v", err))
	}

	if _, err := g.V().Has("user", "userId", "U1").As("u").
		V().Has("device", "deviceId", "D1").As("d").
		AddE("USES").From("u").To("d").
		Next(); err != nil {
		return nil, fraudErrors.NewGraphUnavailableError(fmt.Sprintf("seeding USES U1->D1 failed: %v", err))
	}

	return accountIDs, nil
}

// FlagDevice marks a device vertex as fraudulent, for scenario setup
// such as the graph integration test.
func (c *Client) FlagDevice(ctx context.Context, deviceID string) error {
	g := c.main.traversal()
	_, err := g.V().Has("device", "deviceId", deviceID).Property(propFraudFlag, true).Next()
	if err != nil {
		return fraudErrors.NewGraphUnavailableError(fmt.Sprintf("flag device failed: %v", err))
	}
	return nil
}

// SetFraudFlag promotes an account vertex to fraud_flag=true. Used by
// auto-flag consolidation, never by rule evaluation itself.
func (c *Client) SetFraudFlag(ctx context.Context, accountID string) error {
	g := c.main.traversal()
	_, err := g.V().Has(labelAccount, propAccountID, accountID).
		Property(propFraudFlag, true).
		Next()
	if err != nil {
		return fraudErrors.NewGraphUnavailableError(fmt.Sprintf("set fraud flag failed: %v", err))
	}
	return nil
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// IndexEntry describes one property index this client expects the
// graph schema to carry.
type IndexEntry struct {
	Label     string
	Property  string
	IndexType string
}

// IndexReport is InspectIndexes's structured result; its String()
// satisfies the plain-string contract the CLI's `indexes` command and
// spec's §4.1 inspectIndexes both rely on.
type IndexReport struct {
	Reachable bool
	Entries   []IndexEntry
	Note      string
}

func (r IndexReport) String() string {
	if !r.Reachable {
		return fmt.Sprintf("graph unreachable: %s", r.Note)
	}
	s := "graph reachable\n"
	for _, e := range r.Entries {
		s += fmt.Sprintf("  %s.%s: %s\n", e.Label, e.Property, e.IndexType)
	}
	s += r.Note
	return s
}

// expectedIndexes lists the property indexes this client assumes the
// graph schema carries; actual index management (JanusGraph's
// ManagementSystem, or an equivalent) is backend-specific and outside
// what the Gremlin traversal language itself can introspect or create.
var expectedIndexes = []IndexEntry{
	{Label: labelAccount, Property: propAccountID, IndexType: "composite, unique"},
	{Label: labelAccount, Property: propFraudFlag, IndexType: "composite"},
	{Label: labelTransacts, Property: "txn_id", IndexType: "composite, unique"},
	{Label: "device", Property: propFraudFlag, IndexType: "composite"},
}

// InspectIndexes is a best-effort admin read used by the CLI's
// `indexes` command; a reachability failure is reported inside the
// returned report rather than as an error, since this never gates core
// operation.
func (c *Client) InspectIndexes(ctx context.Context) IndexReport {
	g := c.main.traversal()
	if _, err := g.V().Limit(1).Count().Next(); err != nil {
		return IndexReport{Reachable: false, Note: err.Error()}
	}
	return IndexReport{
		Reachable: true,
		Entries:   expectedIndexes,
		Note:      "schema-level index creation/introspection is server-specific and not exercised through the traversal API",
	}
}

// CreateFraudIndex is the CLI's `create-fraud-index` command: it probes
// connectivity and returns an error only if the graph is unreachable;
// it does not report or create any index. Most Gremlin-compliant servers (JanusGraph among
// them) manage indexes through a server-side management API rather
// than traversal bytecode, so this never attempts to mutate schema —
// it exists to give the CLI a success/failure signal without silently
// pretending to do something the traversal API cannot express.
func (c *Client) CreateFraudIndex(ctx context.Context) error {
	g := c.main.traversal()
	if _, err := g.V().Limit(1).Count().Next(); err != nil {
		return fraudErrors.NewGraphUnavailableError(fmt.Sprintf("create-fraud-index: graph unreachable: %v", err))
	}
	return nil
}

func extractID(elementMap interface{}) (string, error) {
	m, ok := elementMap.(map[interface{}]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected element map shape %T", elementMap)
	}
	for k, v := range m {
		if ks, ok := k.(string); ok && ks == "id" {
			return fmt.Sprintf("%v", v), nil
		}
	}
	return "", fmt.Errorf("id not present in element map")
}

func flattenValueMap(raw interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	m, ok := raw.(map[interface{}]interface{})
	if !ok {
		return out
	}
	for k, v := range m {
		key := fmt.Sprintf("%v", k)
		if list, ok := v.([]interface{}); ok && len(list) == 1 {
			out[key] = list[0]
			continue
		}
		out[key] = v
	}
	return out
}

// FraudFlag reads the boolean fraud_flag property out of a flattened
// element map, treating absence as false per the data model.
func FraudFlag(fields map[string]interface{}) bool {
	v, ok := fields[propFraudFlag]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
