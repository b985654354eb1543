// Package user models the user vertex: the owner of one or more
// accounts via an OWNS edge, and of zero or more devices via a USES
// edge.
package user

// User is the in-process projection of a user vertex.
type User struct {
	ID       string
	Accounts []string
	Devices  []string
}

// New constructs a User projection with the given identity.
func New(id string) User {
	return User{ID: id}
}
