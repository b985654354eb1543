// Package account models the account vertex projection used by the
// fraud engine. Accounts live in the graph server; this package only
// carries the subset of properties the engine reads and writes.
package account

import "github.com/shopspring/decimal"

// Type enumerates the account kinds seeded into the graph.
type Type string

const (
	TypeChecking Type = "checking"
	TypeSavings  Type = "savings"
	TypeBusiness Type = "business"
)

// Account is the in-process projection of an account vertex. FraudFlag
// absent in the graph is treated as false; ID is the opaque accountId
// property, never a graph-native vertex id.
type Account struct {
	ID        string
	FraudFlag bool
	Balance   decimal.Decimal
	Type      Type
}

// New constructs an Account projection with the given identity.
func New(id string, balance decimal.Decimal, accountType Type) Account {
	return Account{
		ID:      id,
		Balance: balance,
		Type:    accountType,
	}
}

// Flag returns a copy of the account marked as fraudulent; the receiver
// is left unchanged. Rule evaluation never calls it (rules only read).
func (a Account) Flag() Account {
	a.FraudFlag = true
	return a
}
