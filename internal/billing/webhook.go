package billing

import (
	"context"
	"encoding/json"
	"log"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/plan"
)

// SignatureHeader is the request header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

// Mirrored subscription statuses.
const (
	StatusActive   = "active"
	StatusCanceled = "canceled"
	StatusPastDue  = "past_due"
)

// WebhookResult reports what HandleWebhook did with an event.
type WebhookResult struct {
	Received bool   `json:"received"`
	Type     string `json:"type,omitempty"`
	UserID   string `json:"-"`
	Handled  bool   `json:"-"`
}

// HandleWebhook verifies a Stripe event and mirrors it into the
// subscriptions table. Unhandled event types and events that cannot be tied
// to a user are acknowledged without changes.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Printf("billing: webhook signature verification failed: %v", err)
		return nil, errors.NewInvalidRequest("Invalid signature")
	}

	result := &WebhookResult{Received: true, Type: string(event.Type)}

	var sub *conversation.Subscription
	switch event.Type {
	case "checkout.session.completed":
		sub, err = s.checkoutCompleted(event.Data.Raw)
	case "customer.subscription.updated":
		sub, err = s.subscriptionUpdated(ctx, event.Data.Raw)
	case "customer.subscription.deleted":
		sub, err = s.subscriptionDeleted(ctx, event.Data.Raw)
	case "invoice.payment_failed":
		sub, err = s.paymentFailed(ctx, event.Data.Raw)
	default:
		log.Printf("billing: unhandled event type %s", event.Type)
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	if sub == nil {
		log.Printf("billing: %s event has no known user", event.Type)
		return result, nil
	}

	sub.UpdatedAt = s.now().Unix()
	if err := db.UpsertSubscription(ctx, s.db, sub); err != nil {
		return nil, err
	}
	result.UserID = sub.UserID
	result.Handled = true
	return result, nil
}

func decodeObject(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.NewInvalidRequest("malformed event object: " + err.Error())
	}
	return nil
}

func (s *Service) checkoutCompleted(raw json.RawMessage) (*conversation.Subscription, error) {
	var cs stripe.CheckoutSession
	if err := decodeObject(raw, &cs); err != nil {
		return nil, err
	}
	userID := cs.Metadata[MetadataUserID]
	if userID == "" {
		userID = cs.ClientReferenceID
	}
	if userID == "" || cs.Subscription == nil {
		return nil, nil
	}

	sub := &conversation.Subscription{
		UserID:         userID,
		SubscriptionID: cs.Subscription.ID,
		Plan:           string(plan.Parse(cs.Metadata[MetadataPlan])),
		Status:         StatusActive,
	}
	if cs.Customer != nil {
		sub.CustomerID = cs.Customer.ID
	}
	return sub, nil
}

func (s *Service) subscriptionUpdated(ctx context.Context, raw json.RawMessage) (*conversation.Subscription, error) {
	var ss stripe.Subscription
	if err := decodeObject(raw, &ss); err != nil {
		return nil, err
	}
	existing, err := s.lookup(ctx, ss.Metadata[MetadataUserID], ss.ID)
	if err != nil || existing == nil {
		return nil, err
	}

	existing.Status = string(ss.Status)
	existing.CancelAtPeriodEnd = ss.CancelAtPeriodEnd
	existing.CurrentPeriodEnd = ss.CurrentPeriodEnd
	existing.SubscriptionID = ss.ID
	if ss.Customer != nil {
		existing.CustomerID = ss.Customer.ID
	}
	if ss.Items != nil {
		for _, item := range ss.Items.Data {
			if item.Price == nil {
				continue
			}
			if p, ok := s.planForPrice(item.Price.ID); ok {
				existing.Plan = string(p)
				break
			}
		}
	}
	return existing, nil
}

func (s *Service) subscriptionDeleted(ctx context.Context, raw json.RawMessage) (*conversation.Subscription, error) {
	var ss stripe.Subscription
	if err := decodeObject(raw, &ss); err != nil {
		return nil, err
	}
	existing, err := s.lookup(ctx, ss.Metadata[MetadataUserID], ss.ID)
	if err != nil || existing == nil {
		return nil, err
	}
	existing.Status = StatusCanceled
	existing.Plan = string(plan.Free)
	existing.CancelAtPeriodEnd = false
	return existing, nil
}

func (s *Service) paymentFailed(ctx context.Context, raw json.RawMessage) (*conversation.Subscription, error) {
	var inv stripe.Invoice
	if err := decodeObject(raw, &inv); err != nil {
		return nil, err
	}
	if inv.Subscription == nil {
		return nil, nil
	}
	existing, err := s.lookup(ctx, "", inv.Subscription.ID)
	if err != nil || existing == nil {
		return nil, err
	}
	existing.Status = StatusPastDue
	return existing, nil
}

// lookup finds the mirrored subscription for a user id or, failing that,
// a Stripe subscription id. A user id with no row yet starts a fresh one.
func (s *Service) lookup(ctx context.Context, userID, subscriptionID string) (*conversation.Subscription, error) {
	if userID != "" {
		sub, err := db.GetSubscription(ctx, s.db, userID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		return &conversation.Subscription{UserID: userID, Plan: string(plan.Free)}, nil
	}
	if subscriptionID == "" {
		return nil, nil
	}
	sub, err := db.GetSubscriptionByStripeID(ctx, s.db, subscriptionID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	return sub, err
}
