// Package cart manages the one cart each storefront session owns: creating
// or reusing it, keeping its region in line with the session, and mutating
// it against the commerce backend.
//
// Mutations never create a cart implicitly; without a cart id they fail
// with model.ErrNoCart before any backend call. Every mutation on one cart
// runs under that cart's lock and invalidates its cached copy. Backend
// errors are returned as-is and never retried.
package cart

import (
	"context"
	"log/slog"

	"storefront-gateway/internal/adapter"
	"storefront-gateway/internal/cache"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/model"
	"storefront-gateway/internal/reconcile"
	"storefront-gateway/internal/session"
)

// CacheKey is the cache entry holding a cart.
func CacheKey(cartID string) string {
	return "cart:" + cartID
}

// Manager is the cart session manager. Safe for concurrent use.
type Manager struct {
	backend adapter.Adapter
	cache   *cache.Cache
	queue   *mutationQueue
	logger  *slog.Logger
}

// NewManager creates a Manager. c may be nil, which disables CachedCart
// caching and invalidation.
func NewManager(backend adapter.Adapter, c *cache.Cache, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend: backend,
		cache:   c,
		queue:   newMutationQueue(),
		logger:  logger,
	}
}

// Fetch returns the session's cart, or nil when the session has none.
// It never writes.
func (m *Manager) Fetch(ctx context.Context, sess *session.Session) (*model.Cart, error) {
	if !sess.HasCart() {
		return nil, nil
	}
	return m.backend.RetrieveCart(ctx, sess.CartID())
}

// ReconcileRegion moves cart to the session's region when they differ,
// with exactly one update. A nil cart or an unresolved session region is
// left alone.
func (m *Manager) ReconcileRegion(ctx context.Context, sess *session.Session, cart *model.Cart) (*model.Cart, error) {
	if cart == nil || !reconcile.RegionDrift(cart.RegionID, sess.RegionID()) {
		return cart, nil
	}
	m.logger.Debug("moving cart to session region",
		slog.String("cart_id", cart.ID),
		slog.String("from", cart.RegionID),
		slog.String("to", sess.RegionID()),
	)
	return m.UpdateCart(ctx, sess, model.CartUpdate{RegionID: sess.RegionID()})
}

// RetrieveCart returns the session's cart in the session's region, or nil
// when the session has no cart.
func (m *Manager) RetrieveCart(ctx context.Context, sess *session.Session) (*model.Cart, error) {
	cart, err := m.Fetch(ctx, sess)
	if err != nil {
		return nil, err
	}
	return m.ReconcileRegion(ctx, sess, cart)
}

// CachedCart is RetrieveCart served through the cart cache entry. Entries
// are dropped by every mutation, so a hit is never older than the last
// change made through this Manager.
func (m *Manager) CachedCart(ctx context.Context, sess *session.Session) (*model.Cart, error) {
	if !sess.HasCart() {
		return nil, nil
	}
	if m.cache == nil {
		return m.RetrieveCart(ctx, sess)
	}
	cartID := sess.CartID()
	cart, err := cache.Fetch(ctx, m.cache, CacheKey(cartID), cache.StaticUntilInvalidated, func(ctx context.Context) (*model.Cart, error) {
		return m.backend.RetrieveCart(ctx, cartID)
	})
	if err != nil {
		return nil, err
	}
	return m.ReconcileRegion(ctx, sess, cart)
}

// CreateCart creates a new cart in the session's region and makes it the
// session's cart, replacing any previous one.
func (m *Manager) CreateCart(ctx context.Context, sess *session.Session) (*model.Cart, error) {
	regionID := sess.RegionID()
	if regionID == "" {
		return nil, model.NewValidationError("region", "no region resolved for this session")
	}

	cart, err := m.backend.CreateCart(ctx, regionID)
	metrics.RecordCartMutation("create_cart", err)
	if err != nil {
		return nil, err
	}
	sess.SetCartID(cart.ID)
	m.logger.Debug("cart created", slog.String("cart_id", cart.ID), slog.String("region_id", regionID))
	return cart, nil
}

// RetrieveOrCreateCart returns the session's cart, creating one only when
// the session has none. Once a cart id exists, repeated calls never create
// a second cart.
func (m *Manager) RetrieveOrCreateCart(ctx context.Context, sess *session.Session) (*model.Cart, error) {
	cart, err := m.RetrieveCart(ctx, sess)
	if err != nil {
		return nil, err
	}
	if cart != nil {
		return cart, nil
	}
	return m.CreateCart(ctx, sess)
}

// UpdateCart applies a partial update to the session's cart.
func (m *Manager) UpdateCart(ctx context.Context, sess *session.Session, update model.CartUpdate) (*model.Cart, error) {
	var cart *model.Cart
	err := m.mutate(ctx, sess, "update_cart", "updating", func(ctx context.Context, cartID string) error {
		var err error
		cart, err = m.backend.UpdateCart(ctx, cartID, update)
		return err
	})
	return cart, err
}

// CreateLineItem inserts a line item as given. Use UpdateOrCreateLineItem
// to keep one row per variant.
func (m *Manager) CreateLineItem(ctx context.Context, sess *session.Session, item model.AddLineItem) (*model.Cart, error) {
	var cart *model.Cart
	err := m.mutate(ctx, sess, "create_line_item", "adding items", func(ctx context.Context, cartID string) error {
		var err error
		cart, err = m.backend.CreateLineItem(ctx, cartID, item)
		return err
	})
	return cart, err
}

// UpdateLineItem changes a line item of the session's cart.
func (m *Manager) UpdateLineItem(ctx context.Context, sess *session.Session, lineItemID string, update model.LineItemUpdate) (*model.Cart, error) {
	var cart *model.Cart
	err := m.mutate(ctx, sess, "update_line_item", "updating items", func(ctx context.Context, cartID string) error {
		var err error
		cart, err = m.backend.UpdateLineItem(ctx, cartID, lineItemID, update)
		return err
	})
	return cart, err
}

// DeleteLineItem removes a line item and returns the backend's deletion
// confirmation.
func (m *Manager) DeleteLineItem(ctx context.Context, sess *session.Session, lineItemID string) (bool, error) {
	var deleted bool
	err := m.mutate(ctx, sess, "delete_line_item", "removing items", func(ctx context.Context, cartID string) error {
		var err error
		deleted, err = m.backend.DeleteLineItem(ctx, cartID, lineItemID)
		return err
	})
	return deleted, err
}

// AddShippingMethod attaches a shipping option to the session's cart.
func (m *Manager) AddShippingMethod(ctx context.Context, sess *session.Session, optionID string) (*model.Cart, error) {
	var cart *model.Cart
	err := m.mutate(ctx, sess, "add_shipping_method", "choosing shipping", func(ctx context.Context, cartID string) error {
		var err error
		cart, err = m.backend.AddShippingMethod(ctx, cartID, optionID)
		return err
	})
	return cart, err
}

// UpdateOrCreateLineItem adds quantity units of variantID, creating the
// cart if needed. An existing line item for the variant is incremented
// instead of duplicated. The read and the write happen under the cart's
// lock, so concurrent adds of one variant still produce a single row.
func (m *Manager) UpdateOrCreateLineItem(ctx context.Context, sess *session.Session, variantID string, quantity int) (*model.Cart, error) {
	if variantID == "" {
		return nil, model.NewValidationError("variant_id", "required")
	}
	if _, err := m.RetrieveOrCreateCart(ctx, sess); err != nil {
		return nil, err
	}

	var cart *model.Cart
	err := m.mutate(ctx, sess, "add_to_cart", "adding items", func(ctx context.Context, cartID string) error {
		current, err := m.backend.RetrieveCart(ctx, cartID)
		if err != nil {
			return err
		}
		plan := reconcile.PlanAdd(current, variantID, quantity)
		if plan.Insert {
			cart, err = m.backend.CreateLineItem(ctx, cartID, model.AddLineItem{VariantID: variantID, Quantity: plan.Quantity})
		} else {
			cart, err = m.backend.UpdateLineItem(ctx, cartID, plan.LineItemID, model.LineItemUpdate{Quantity: plan.Quantity})
		}
		return err
	})
	return cart, err
}

// SyncLineItems makes the cart hold exactly the desired items, creating the
// cart if needed. Only the mutations the diff names are issued, in the
// order remove, update, add.
func (m *Manager) SyncLineItems(ctx context.Context, sess *session.Session, desired []reconcile.DesiredItem) (*model.Cart, error) {
	if _, err := m.RetrieveOrCreateCart(ctx, sess); err != nil {
		return nil, err
	}

	var cart *model.Cart
	err := m.mutate(ctx, sess, "sync_line_items", "updating items", func(ctx context.Context, cartID string) error {
		current, err := m.backend.RetrieveCart(ctx, cartID)
		if err != nil {
			return err
		}
		cart = current

		diff := reconcile.DiffLineItems(current.Items, desired)
		if diff.IsEmpty() {
			return nil
		}

		for _, item := range diff.ToRemove {
			if _, err := m.backend.DeleteLineItem(ctx, cartID, item.LineItemID); err != nil {
				return err
			}
		}
		for _, item := range diff.ToUpdate {
			if cart, err = m.backend.UpdateLineItem(ctx, cartID, item.LineItemID, model.LineItemUpdate{Quantity: item.NewQuantity}); err != nil {
				return err
			}
		}
		for _, item := range diff.ToAdd {
			if cart, err = m.backend.CreateLineItem(ctx, cartID, model.AddLineItem{VariantID: item.VariantID, Quantity: item.Quantity}); err != nil {
				return err
			}
		}

		// A removal-only diff leaves no cart body to return.
		if len(diff.ToUpdate) == 0 && len(diff.ToAdd) == 0 {
			cart, err = m.backend.RetrieveCart(ctx, cartID)
		}
		return err
	})
	return cart, err
}

// CompleteOrder asks the backend to place the order. A refused completion
// comes back as a result of type "cart" carrying the backend's reason,
// unmodified.
func (m *Manager) CompleteOrder(ctx context.Context, sess *session.Session) (*model.CompleteResult, error) {
	var result *model.CompleteResult
	err := m.mutate(ctx, sess, "complete_cart", "completing an order", func(ctx context.Context, cartID string) error {
		var err error
		result, err = m.backend.CompleteCart(ctx, cartID)
		return err
	})
	if err == nil && !result.Completed() && result.Error != nil {
		m.logger.Info("cart completion refused",
			slog.String("cart_id", sess.CartID()),
			slog.String("reason", result.Error.Message),
		)
	}
	return result, err
}

// InitiatePaymentSession starts a payment session with providerID on the
// session's cart, creating the cart's payment collection when missing.
func (m *Manager) InitiatePaymentSession(ctx context.Context, sess *session.Session, providerID string) (*model.PaymentCollection, error) {
	if !sess.HasCart() {
		return nil, model.NewNoCartError("starting a payment session")
	}
	if providerID == "" {
		return nil, model.NewValidationError("provider_id", "required")
	}
	cart, err := m.RetrieveCart(ctx, sess)
	if err != nil {
		return nil, err
	}

	var pc *model.PaymentCollection
	err = m.mutate(ctx, sess, "initiate_payment_session", "starting a payment session", func(ctx context.Context, cartID string) error {
		var err error
		pc, err = m.backend.InitiatePaymentSession(ctx, cart, providerID)
		return err
	})
	return pc, err
}

// RelayLineItemUpdate forwards a raw line-item update body for the
// session's cart and returns the backend's raw response. It is serialized
// with the cart's other mutations.
func (m *Manager) RelayLineItemUpdate(ctx context.Context, sess *session.Session, relay adapter.Relay, lineItemID string, body []byte) ([]byte, error) {
	var out []byte
	err := m.mutate(ctx, sess, "relay_update_line_item", "updating a line item", func(ctx context.Context, cartID string) error {
		var err error
		out, err = relay.RelayLineItemUpdate(ctx, cartID, lineItemID, body)
		return err
	})
	return out, err
}

// mutate runs fn under the cart's lock after checking the cart id, then
// drops the cached cart. action completes the no-cart error message.
func (m *Manager) mutate(ctx context.Context, sess *session.Session, op, action string, fn func(ctx context.Context, cartID string) error) error {
	cartID := sess.CartID()
	if cartID == "" {
		err := model.NewNoCartError(action)
		metrics.RecordCartMutation(op, err)
		return err
	}

	release, err := m.queue.acquire(ctx, cartID)
	if err != nil {
		return err
	}
	defer release()

	err = fn(ctx, cartID)
	metrics.RecordCartMutation(op, err)
	m.invalidate(ctx, cartID)
	return err
}

// invalidate drops the cached cart. Invalidation runs even after a failed
// mutation since the backend may have applied part of it.
func (m *Manager) invalidate(ctx context.Context, cartID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(context.WithoutCancel(ctx), CacheKey(cartID)); err != nil {
		m.logger.Warn("cart cache invalidation failed",
			slog.String("cart_id", cartID),
			slog.Any("error", err),
		)
	}
}
