package messaging

import "context"

// Outcome is the transport collaborator's verdict for one unit.
type Outcome struct {
	Status     Status
	ProviderID string
	Reason     string
}

// Transport is the out-of-scope carrier collaborator. It is called only
// after a successful debit; its reported outcome is recorded as-is. A
// synchronous transport that returns no error defaults the unit to sent.
type Transport interface {
	Send(ctx context.Context, unit SendUnit) (*Outcome, error)
}
