// Package cart is the session cart aggregate persisted in the key-value store.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/kvstore"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Cart operations, as reported in change events and metrics.
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpDelta  = "delta"
	OpClear  = "clear"
)

var (
	ErrOutOfStock     = errors.New("product is out of stock")
	ErrInvalidProduct = errors.New("product has no id")
)

// Observer is notified after every persisted cart change.
type Observer func(ctx context.Context, event models.CartChangedEvent)

// Service is the cart of one browsing session.
type Service struct {
	store     kvstore.Store
	sessionID string
	logger    *zap.Logger

	// serializes read-modify-write cycles issued through this Service
	mu sync.Mutex

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int
}

// NewService creates the cart for a session over its scoped store.
func NewService(store kvstore.Store, sessionID string) *Service {
	return &Service{
		store:     store,
		sessionID: sessionID,
		logger:    util.GetLogger().With(zap.String("session_id", sessionID)),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers an observer and returns its unsubscribe func.
func (s *Service) Subscribe(obs Observer) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = obs
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// Load reads the cart. Missing or unreadable data yields an empty cart.
func (s *Service) Load(ctx context.Context) models.Cart {
	var items []models.CartLineItem
	if !kvstore.GetJSON(ctx, s.store, kvstore.KeyCart, &items) {
		return models.Cart{}
	}
	return models.Cart{Items: normalize(items)}
}

// Count is the total number of units, as shown on the cart badge.
func (s *Service) Count(ctx context.Context) int {
	return s.Load(ctx).Units()
}

// AddItem adds one unit of product, merging with an existing line item.
// Observers are notified only when the write succeeded.
func (s *Service) AddItem(ctx context.Context, product models.Product) error {
	ctx, span := util.StartSpan(ctx, "Cart.AddItem")
	defer span.End()

	if product.ID == "" {
		return ErrInvalidProduct
	}
	if !product.InStock {
		util.CartMutationsTotal.WithLabelValues(OpAdd, "out_of_stock").Inc()
		return fmt.Errorf("%w: %s", ErrOutOfStock, product.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.Load(ctx)
	if idx := indexOf(cart.Items, product.ID); idx >= 0 {
		cart.Items[idx].Quantity++
	} else {
		cart.Items = append(cart.Items, models.CartLineItem{
			ID:       product.ID,
			Name:     product.Name,
			Price:    product.Price,
			Image:    product.Image,
			Quantity: 1,
		})
	}

	if err := s.save(ctx, cart); err != nil {
		util.CartMutationsTotal.WithLabelValues(OpAdd, "store_error").Inc()
		return err
	}

	util.CartMutationsTotal.WithLabelValues(OpAdd, "ok").Inc()
	s.notify(ctx, OpAdd, cart)
	return nil
}

// RemoveItem drops the line item for productID, if any. The cart is
// re-persisted and observers notified either way.
func (s *Service) RemoveItem(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.Load(ctx)
	if idx := indexOf(cart.Items, productID); idx >= 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	}

	err := s.save(ctx, cart)
	s.record(OpRemove, err)
	s.notify(ctx, OpRemove, cart)
	return err
}

// SetQuantityDelta adds delta to a line item's quantity, removing the item
// when the result is zero or less. Unknown ids are a no-op.
func (s *Service) SetQuantityDelta(ctx context.Context, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.Load(ctx)
	idx := indexOf(cart.Items, productID)
	if idx < 0 {
		return nil
	}

	if qty := cart.Items[idx].Quantity + delta; qty <= 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	} else {
		cart.Items[idx].Quantity = qty
	}

	err := s.save(ctx, cart)
	s.record(OpDelta, err)
	s.notify(ctx, OpDelta, cart)
	return err
}

// Clear removes the cart key entirely.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, kvstore.KeyCart); err != nil {
		s.record(OpClear, err)
		return fmt.Errorf("%w: clear cart: %v", kvstore.ErrWriteFailed, err)
	}
	s.record(OpClear, nil)
	s.notify(ctx, OpClear, models.Cart{})
	return nil
}

func (s *Service) save(ctx context.Context, cart models.Cart) error {
	items := cart.Items
	if items == nil {
		items = []models.CartLineItem{}
	}
	return kvstore.SetJSON(ctx, s.store, kvstore.KeyCart, items)
}

func (s *Service) record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "store_error"
		s.logger.Warn("Cart write failed", zap.String("op", op), zap.Error(err))
	}
	util.CartMutationsTotal.WithLabelValues(op, outcome).Inc()
}

func (s *Service) notify(ctx context.Context, op string, cart models.Cart) {
	event := models.CartChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCartChanged,
			Timestamp: time.Now(),
		},
		SessionID: s.sessionID,
		Op:        op,
		ItemCount: len(cart.Items),
		UnitCount: cart.Units(),
	}

	s.obsMu.RLock()
	observers := make([]Observer, 0, len(s.observers))
	for _, obs := range s.observers {
		observers = append(observers, obs)
	}
	s.obsMu.RUnlock()

	for _, obs := range observers {
		obs(ctx, event)
	}
}

func indexOf(items []models.CartLineItem, productID string) int {
	for i, item := range items {
		if item.ID == productID {
			return i
		}
	}
	return -1
}

// normalize enforces the stored-cart invariants on whatever was read. Items
// without an id or with a negative quantity are dropped, a missing quantity
// counts as 1, and duplicate ids merge into the first occurrence.
func normalize(items []models.CartLineItem) []models.CartLineItem {
	out := make([]models.CartLineItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" || item.Quantity < 0 {
			continue
		}
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		if idx := indexOf(out, item.ID); idx >= 0 {
			out[idx].Quantity += item.Quantity
			continue
		}
		out = append(out, item)
	}
	return out
}
