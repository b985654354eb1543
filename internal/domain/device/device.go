// Package device models the device vertex reached from users via a
// USES edge; RT3 checks its fraud_flag property through that network.
package device

// Device is the in-process projection of a device vertex.
type Device struct {
	ID        string
	FraudFlag bool
}

// New constructs a Device projection with the given identity.
func New(id string) Device {
	return Device{ID: id}
}

// Flag returns a copy of the device marked as fraudulent; the receiver
// is left unchanged. Rule evaluation only reads this property.
func (d Device) Flag() Device {
	d.FraudFlag = true
	return d
}
