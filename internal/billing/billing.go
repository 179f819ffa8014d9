// Package billing creates Stripe checkout and portal sessions and mirrors
// subscription webhooks into the local subscriptions table.
package billing

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/config"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/plan"
)

// ErrNotConfigured is returned when no Stripe secret key is set.
var ErrNotConfigured = stderrors.New("billing is not configured")

// Metadata keys attached to checkout sessions and their subscriptions.
const (
	MetadataUserID = "userId"
	MetadataPlan   = "plan"
)

// stripeAPI is the subset of the Stripe client used here.
type stripeAPI interface {
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

type stripeClient struct {
	api *client.API
}

func (c stripeClient) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return c.api.CheckoutSessions.New(params)
}

func (c stripeClient) NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return c.api.BillingPortalSessions.New(params)
}

// Service talks to Stripe on behalf of signed-in users.
type Service struct {
	db            *sql.DB
	api           stripeAPI
	webhookSecret string
	appURL        string

	// prices maps a configured price id to the plan it buys.
	prices map[string]plan.Plan

	now func() time.Time
}

// New builds a Service from cfg. Without a secret key the service still
// verifies webhooks but cannot create sessions.
func New(database *sql.DB, cfg *config.Config) *Service {
	s := &Service{
		db:            database,
		webhookSecret: cfg.Billing.WebhookSecret,
		appURL:        strings.TrimSuffix(cfg.AppURL, "/"),
		prices: map[string]plan.Plan{
			cfg.Billing.ProPriceID:      plan.Pro,
			cfg.Billing.BusinessPriceID: plan.Business,
		},
		now: time.Now,
	}
	if cfg.Billing.SecretKey != "" {
		s.api = stripeClient{api: client.New(cfg.Billing.SecretKey, nil)}
	}
	return s
}

// Enabled reports whether sessions can be created.
func (s *Service) Enabled() bool {
	return s.api != nil
}

// PriceID returns the configured price id for p, or "" for the free plan.
func (s *Service) PriceID(p plan.Plan) string {
	for id, q := range s.prices {
		if q == p {
			return id
		}
	}
	return ""
}

// planForPrice returns the plan bought by priceID.
func (s *Service) planForPrice(priceID string) (plan.Plan, bool) {
	p, ok := s.prices[priceID]
	return p, ok && priceID != ""
}

// CheckoutInput contains parameters for CreateCheckoutSession.
type CheckoutInput struct {
	PriceID string `json:"priceId"`
	UserID  string `json:"userId"`
	Email   string `json:"userEmail"`
}

// CheckoutOutput identifies the created Stripe checkout session.
type CheckoutOutput struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url,omitempty"`
}

// CreateCheckoutSession starts a subscription checkout for one of the
// configured prices.
func (s *Service) CreateCheckoutSession(ctx context.Context, input CheckoutInput) (*CheckoutOutput, error) {
	if input.PriceID == "" || input.UserID == "" || input.Email == "" {
		return nil, errors.NewInvalidRequest("Missing required fields")
	}
	p, ok := s.planForPrice(input.PriceID)
	if !ok {
		return nil, errors.NewInvalidRequest("Invalid price ID")
	}
	if s.api == nil {
		return nil, errors.NewUpstream("stripe", ErrNotConfigured)
	}

	metadata := map[string]string{
		MetadataUserID: input.UserID,
		MetadataPlan:   string(p),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(input.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(s.appURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.appURL + "/pricing"),
		CustomerEmail:     stripe.String(input.Email),
		ClientReferenceID: stripe.String(input.UserID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sess, err := s.api.NewCheckoutSession(params)
	if err != nil {
		return nil, errors.NewUpstream("stripe", err)
	}
	return &CheckoutOutput{SessionID: sess.ID, URL: sess.URL}, nil
}

// CreatePortalSession opens the Stripe billing portal for a customer.
// An empty returnURL returns the user to the dashboard.
func (s *Service) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if customerID == "" {
		return "", errors.NewInvalidRequest("Customer ID is required")
	}
	if s.api == nil {
		return "", errors.NewUpstream("stripe", ErrNotConfigured)
	}
	if returnURL == "" {
		returnURL = s.appURL + "/dashboard"
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := s.api.NewPortalSession(params)
	if err != nil {
		return "", errors.NewUpstream("stripe", err)
	}
	return sess.URL, nil
}

// PlanPrice pairs a plan with its configured price for the pricing page.
type PlanPrice struct {
	Plan    plan.Plan
	PriceID string
	Limit   int
}

// Plans lists every plan in ascending order with its price id.
func (s *Service) Plans() []PlanPrice {
	plans := []plan.Plan{plan.Free, plan.Pro, plan.Business}
	out := make([]PlanPrice, 0, len(plans))
	for _, p := range plans {
		out = append(out, PlanPrice{Plan: p, PriceID: s.PriceID(p), Limit: plan.ConversationLimit(p)})
	}
	return out
}
