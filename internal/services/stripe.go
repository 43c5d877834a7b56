package services

import (
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/billing/meterevent"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

type StripeService struct {
	secretKey     string
	webhookSecret string
	meterName     string
}

func NewStripeService(secretKey, webhookSecret, meterName string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		meterName:     meterName,
	}
}

func (s *StripeService) Enabled() bool {
	return s.secretKey != ""
}

// CreateCheckoutSession opens a checkout for a credit purchase; the user ID
// rides along as the client reference so the webhook can attribute it.
func (s *StripeService) CreateCheckoutSession(userID, priceID, successURL, cancelURL string) (*stripe.CheckoutSession, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("billing is not configured")
	}
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(userID),
	}
	return session.New(params)
}

func (s *StripeService) HandleWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signatureHeader, s.webhookSecret)
}

// RecordUsage reports a metered quantity (token count or dollar cost in
// millicents) against the customer's usage meter.
func (s *StripeService) RecordUsage(customerID string, value float64) error {
	if !s.Enabled() || customerID == "" {
		return nil
	}
	params := &stripe.BillingMeterEventParams{
		EventName: stripe.String(s.meterName),
		Payload: map[string]string{
			"stripe_customer_id": customerID,
			"value":              strconv.FormatFloat(value, 'f', -1, 64),
		},
	}
	_, err := meterevent.New(params)
	return err
}
