// Package payment charges and refunds cart snapshots. The storefront never
// talks to a card network itself; it goes through a Gateway.
package payment

import (
	"context"
	"errors"

	"storefront/internal/models"
)

// Status of a charge as reported by the gateway
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPending   Status = "pending"
)

// Payment methods recorded on orders
const (
	MethodCard   = "card"
	MethodHosted = "hosted"
	MethodFree   = "free"
)

// ErrDeclined means the gateway refused the charge. Nothing was taken.
var ErrDeclined = errors.New("payment declined")

// Receipt describes an accepted charge. A pending receipt carries the URL the
// buyer must visit to finish paying.
type Receipt struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Status      Status `json:"status"`
	Method      string `json:"method"`
}

// Gateway is the external payment provider
type Gateway interface {
	// Charge takes the snapshot total. The amount never changes after the
	// snapshot was taken, whatever happens to catalog prices meanwhile.
	Charge(ctx context.Context, snap models.CartSnapshot) (Receipt, error)
	// Refund reverses a charge. Refunding twice is not an error.
	Refund(ctx context.Context, reference string) error
}
