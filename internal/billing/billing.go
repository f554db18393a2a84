// Package billing resolves Stripe subscription events into plan-tier
// changes on the user document: subscription created/updated moves a user
// onto the plan matching their price id, subscription deleted drops them
// back to free.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/vclip/vclip/internal/config"
	"github.com/vclip/vclip/internal/store"
)

// Store is the subset of *store.Store this package needs, so tests can fake it.
type Store interface {
	GetOrCreateUser(ctx context.Context, uid string) (*store.User, error)
	UpdateUserConditional(ctx context.Context, updated *store.User, token time.Time) error
}

// Manager applies Stripe webhook events to the user document.
type Manager struct {
	store         Store
	webhookSecret string
	plans         config.Plans
}

func NewManager(store Store, webhookSecret string, plans config.Plans) *Manager {
	return &Manager{store: store, webhookSecret: webhookSecret, plans: plans}
}

// HandleWebhook verifies and applies one Stripe webhook delivery. The
// caller is expected to retry the whole HTTP request on a transient error,
// same as Stripe's own delivery retries.
func (m *Manager) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, m.webhookSecret)
	if err != nil {
		return fmt.Errorf("billing: verify webhook: %w", err)
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("billing: decode subscription: %w", err)
		}
		return m.applySubscription(ctx, &sub)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("billing: decode subscription: %w", err)
		}
		return m.setPlan(ctx, sub.Metadata["uid"], "free")
	default:
		log.Debug().Str("event_type", string(event.Type)).Msg("billing: ignoring unhandled webhook event")
		return nil
	}
}

func (m *Manager) applySubscription(ctx context.Context, sub *stripe.Subscription) error {
	uid := sub.Metadata["uid"]
	if uid == "" {
		return fmt.Errorf("billing: subscription %s has no uid metadata", sub.ID)
	}
	if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
		return m.setPlan(ctx, uid, "free")
	}
	if len(sub.Items.Data) == 0 {
		return fmt.Errorf("billing: subscription %s has no line items", sub.ID)
	}
	return m.setPlan(ctx, uid, m.resolvePlan(sub.Items.Data[0].Price.ID))
}

func (m *Manager) resolvePlan(priceID string) string {
	switch priceID {
	case m.plans.ProPriceID:
		return "pro"
	case m.plans.StudioPriceID:
		return "studio"
	default:
		return "free"
	}
}

// setPlan writes the new plan id, retrying once on a concurrent-update
// conflict since the window between read and write here is tiny.
func (m *Manager) setPlan(ctx context.Context, uid, planID string) error {
	for attempt := 0; attempt < 2; attempt++ {
		u, err := m.store.GetOrCreateUser(ctx, uid)
		if err != nil {
			return fmt.Errorf("billing: load user %s: %w", uid, err)
		}
		token := u.UpdatedAt
		u.PlanID = planID
		err = m.store.UpdateUserConditional(ctx, u, token)
		if err == nil {
			log.Info().Str("uid", uid).Str("plan_id", planID).Msg("billing: plan updated from stripe webhook")
			return nil
		}
		if attempt == 1 {
			return fmt.Errorf("billing: update plan for %s: %w", uid, err)
		}
	}
	return nil
}
