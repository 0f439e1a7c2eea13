// Package session binds the per-visitor services (cart, checkout, notes and
// receipt) to one scoped view of the shared store.
package session

import (
	"sync"
	"time"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/kvstore"
	"storefront/internal/notes"
	"storefront/internal/receipt"
	"storefront/internal/service"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Session is the state of one browsing session. The persisted part lives in
// the store; the workflow state lives only here.
type Session struct {
	ID       string
	Cart     *cart.Service
	Checkout *checkout.Workflow
	Notes    *notes.Service
	Receipts *receipt.Reader

	lastSeen time.Time
}

// Manager creates sessions lazily and evicts idle ones.
type Manager struct {
	store     kvstore.Store
	submitter service.OrderSubmitter
	opts      checkout.Options
	observers []cart.Observer
	now       func() time.Time
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. Every new cart is subscribed to observers.
func NewManager(store kvstore.Store, submitter service.OrderSubmitter, opts checkout.Options, observers ...cart.Observer) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:     store,
		submitter: submitter,
		opts:      opts,
		observers: observers,
		now:       now,
		logger:    util.GetLogger(),
		sessions:  make(map[string]*Session),
	}
}

// Get returns the session for id, creating it on first use.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.lastSeen = m.now()
		return s
	}

	scoped := kvstore.Scoped(m.store, id)
	c := cart.NewService(scoped, id)
	for _, obs := range m.observers {
		c.Subscribe(obs)
	}

	s := &Session{
		ID:       id,
		Cart:     c,
		Checkout: checkout.NewWorkflow(c, scoped, m.submitter, m.opts),
		Notes:    notes.NewService(scoped),
		Receipts: receipt.NewReader(scoped),
		lastSeen: m.now(),
	}
	m.sessions[id] = s
	m.logger.Debug("Session created", zap.String("session_id", id))
	return s
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Evict drops sessions idle for longer than maxIdle. Sessions with a
// submission in flight are kept. Persisted data is left to the store's TTL.
func (m *Manager) Evict(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxIdle)
	evicted := 0
	for id, s := range m.sessions {
		if s.lastSeen.After(cutoff) || s.Checkout.State() == checkout.Submitting {
			continue
		}
		delete(m.sessions, id)
		evicted++
	}
	return evicted
}
