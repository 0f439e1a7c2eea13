// Package checkout turns a session cart into a submitted order.
//
// A Workflow moves Idle -> Submitting -> Succeeded | Failed. Only one
// submission may be in flight per session; a finished workflow (either
// outcome) accepts a new Submit as if it were Idle.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/cart"
	"storefront/internal/kvstore"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/service"
	"storefront/internal/util"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// State of a checkout workflow
type State int

const (
	Idle State = iota
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrEmptyCart            = errors.New("your cart is empty")
	ErrSubmissionInProgress = errors.New("an order submission is already in progress")
)

// SubmissionError is a failed call to the order-submission service. The cart
// is left untouched.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "checkout error: " + e.UserMessage()
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the customer.
func (e *SubmissionError) UserMessage() string {
	var verr *models.OrderValidationError
	switch {
	case errors.As(e.Err, &verr):
		return verr.Error()
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "order submission timed out, please try again"
	}
	return "error processing your order, please try again"
}

// Review is what the confirmation step shows before the customer commits.
type Review struct {
	Items  []models.CartLineItem  `json:"items"`
	Totals models.PricingSnapshot `json:"totals"`
}

// Result of a successful submission.
type Result struct {
	Response *models.OrderResponse   `json:"response"`
	Receipt  models.LastOrderReceipt `json:"receipt"`
}

// Options tune a Workflow. Zero values take defaults; a nil Policy means
// pricing.DefaultPolicy.
type Options struct {
	Policy  *pricing.Policy
	Timeout time.Duration
	Now     func() time.Time
}

// Workflow is the checkout flow of one session.
type Workflow struct {
	cart      *cart.Service
	store     kvstore.Store
	submitter service.OrderSubmitter
	policy    pricing.Policy
	timeout   time.Duration
	now       func() time.Time
	validate  *validatorv10.Validate
	logger    *zap.Logger

	mu    sync.Mutex
	state State
}

// NewWorkflow wires a workflow over the session's cart and scoped store.
func NewWorkflow(c *cart.Service, store kvstore.Store, submitter service.OrderSubmitter, opts Options) *Workflow {
	policy := pricing.DefaultPolicy
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Workflow{
		cart:      c,
		store:     store,
		submitter: submitter,
		policy:    policy,
		timeout:   opts.Timeout,
		now:       opts.Now,
		validate:  NewValidator(opts.Now),
		logger:    util.GetLogger(),
	}
}

// State reports the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Review prices the current cart.
func (w *Workflow) Review(ctx context.Context) Review {
	items := w.cart.Load(ctx).Items
	return Review{Items: items, Totals: w.policy.Quote(items)}
}

// Submit validates the form, freezes the cart and its totals, and calls the
// order-submission service. On success the receipt is written and the cart
// cleared; on failure the cart is left as it was.
func (w *Workflow) Submit(ctx context.Context, form Form) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "Checkout.Submit")
	defer span.End()

	util.CheckoutAttemptsTotal.Inc()

	if err := validateForm(w.validate, form); err != nil {
		util.CheckoutRejectedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	req, err := w.begin(ctx, form)
	if err != nil {
		return nil, err
	}

	submitCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := w.submitter.Submit(submitCtx, req)
	util.OrderSubmissionLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		w.finish(Failed)
		util.CheckoutFailedTotal.WithLabelValues(failureReason(err)).Inc()
		w.logger.Warn("Order submission failed", zap.Error(err))
		return nil, &SubmissionError{Err: err}
	}

	order := models.Order{
		ID:              resp.OrderID,
		Date:            req.OrderDate,
		CustomerName:    req.Customer.FullName(),
		Email:           req.Customer.Email,
		ShippingAddress: req.ShippingAddress,
		Items:           req.Items,
		Totals:          req.Totals,
	}
	receipt := models.ReceiptFromOrder(order)

	if err := kvstore.SetJSON(ctx, w.store, kvstore.KeyLastOrder, receipt); err != nil {
		w.logger.Error("Failed to persist last order receipt",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
	if err := w.cart.Clear(ctx); err != nil {
		w.logger.Error("Failed to clear cart after order",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	w.finish(Succeeded)
	util.CheckoutSucceededTotal.Inc()
	w.logger.Info("Checkout succeeded",
		zap.String("order_id", order.ID),
		zap.String("total", order.Totals.GrandTotal.StringFixed(2)))

	return &Result{Response: resp, Receipt: receipt}, nil
}

// begin checks the preconditions and moves to Submitting with a frozen
// order request.
func (w *Workflow) begin(ctx context.Context, form Form) (*models.OrderRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == Submitting {
		util.CheckoutRejectedTotal.WithLabelValues("in_progress").Inc()
		return nil, ErrSubmissionInProgress
	}

	current := w.cart.Load(ctx)
	if current.IsEmpty() {
		util.CheckoutRejectedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}

	items := current.Clone().Items
	w.state = Submitting

	return &models.OrderRequest{
		OrderDate:       w.now(),
		Customer:        form.customer(),
		ShippingAddress: form.address(),
		Payment:         form.payment(),
		Items:           items,
		Totals:          w.policy.Quote(items),
	}, nil
}

func (w *Workflow) finish(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func failureReason(err error) string {
	var verr *models.OrderValidationError
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}
