package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/infinitedim/skyvix/internal/gateway"
	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/queue"
	"github.com/infinitedim/skyvix/internal/repository"
	"github.com/infinitedim/skyvix/internal/utils"
)

// PaymentStore is the persistence surface PaymentService needs.  It is
// satisfied by *repository.PaymentRepo; tests substitute an in-memory
// implementation.
type PaymentStore interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByID(ctx context.Context, id uint64) (*model.Payment, error)
	GetByReference(ctx context.Context, reference string) (*model.Payment, error)
	SetInvoice(ctx context.Context, id uint64, invoiceURL string) error
	MarkFailed(ctx context.Context, id uint64, reason string) error
	ApplyStatus(ctx context.Context, id uint64, status model.PaymentStatus, rawPayload []byte, paidAt *time.Time) (bool, error)
	UpdateMethod(ctx context.Context, id uint64, method string) error
	UpdateStatus(ctx context.Context, id uint64, to model.PaymentStatus, clearFailure bool, fromStatuses ...model.PaymentStatus) error
	List(ctx context.Context, f repository.PaymentFilter) ([]model.Payment, int64, error)
	Stats(ctx context.Context, start, end *time.Time) (*repository.PaymentStats, error)
}

// OrderStore is the slice of the order repository the payment service
// uses to validate the order a payment is created against.
type OrderStore interface {
	GetByID(ctx context.Context, id, userID uint64) (*model.Order, error)
}

// InvoiceGateway is the slice of the payment provider's API the
// service uses: creating hosted invoices and polling their state.
type InvoiceGateway interface {
	CreateInvoice(ctx context.Context, req gateway.InvoiceRequest) (*gateway.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*gateway.Invoice, error)
}

// EventPublisher pushes domain events to the broker.  Publish failures
// are logged and swallowed; events are best-effort notifications, not
// part of the transactional state.
type EventPublisher func(ctx context.Context, queueName string, event any) error

// PaymentService implements the payment lifecycle: create an attempt,
// obtain an invoice from the gateway, reconcile the outcome reported
// by webhooks, and the explicit cancel / retry / refund operations.
type PaymentService struct {
	payments PaymentStore
	orders   OrderStore
	gateway  InvoiceGateway
	publish  EventPublisher
}

// NewPaymentService wires a PaymentService.  publish may be nil, in
// which case events are dropped.
func NewPaymentService(payments PaymentStore, orders OrderStore, gw InvoiceGateway, publish EventPublisher) *PaymentService {
	if publish == nil {
		publish = func(context.Context, string, any) error { return nil }
	}
	return &PaymentService{payments: payments, orders: orders, gateway: gw, publish: publish}
}

// CreatePaymentInput carries the caller-supplied fields for a new
// payment attempt.  Amount and currency always come from the order.
type CreatePaymentInput struct {
	OrderID    uint64
	Method     *string
	PayerEmail string
}

// Create validates the order, inserts a pending payment and asks the
// gateway for an invoice.  Rules enforced here:
//
//   - the order must exist and belong to the caller;
//   - the order must still be PENDING (ErrInvalidState otherwise);
//   - the amount is copied from the order, never from the client;
//   - at most one pending attempt may exist per order (the repository
//     enforces this transactionally and returns ErrActivePaymentExists).
//
// Gateway failures after the insert follow the reconciliation rules: a
// definitive rejection marks the payment FAILED, a timeout leaves it
// PENDING because the provider may still have created the invoice.
// Both surface the error to the caller; on timeout the pending payment
// is returned alongside it so clients can poll.
func (s *PaymentService) Create(ctx context.Context, userID uint64, in CreatePaymentInput) (*model.Payment, error) {
	order, err := s.orders.GetByID(ctx, in.OrderID, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderPending {
		return nil, ErrInvalidState
	}

	ref, err := utils.NewPaymentReference()
	if err != nil {
		return nil, err
	}
	p := &model.Payment{
		OrderID:     order.ID,
		UserID:      userID,
		Reference:   ref,
		AmountCents: order.AmountCents,
		Currency:    order.Currency,
		Method:      in.Method,
		Status:      model.PaymentPending,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}

	desc := ""
	if order.Description != nil {
		desc = *order.Description
	}
	inv, err := s.gateway.CreateInvoice(ctx, gateway.InvoiceRequest{
		ExternalID:  p.Reference,
		Amount:      p.AmountCents,
		Currency:    p.Currency,
		Description: desc,
		PayerEmail:  in.PayerEmail,
	})
	if err != nil {
		if gateway.IsTimeout(err) {
			log.Printf("payment %s: invoice request timed out, awaiting webhook", p.Reference)
			return p, err
		}
		reason := err.Error()
		if mErr := s.payments.MarkFailed(ctx, p.ID, reason); mErr != nil {
			log.Printf("payment %s: mark failed: %v", p.Reference, mErr)
		}
		p.Status = model.PaymentFailed
		p.FailureReason = &reason
		return p, err
	}
	if err := s.payments.SetInvoice(ctx, p.ID, inv.InvoiceURL); err != nil {
		return nil, err
	}
	url := inv.InvoiceURL
	p.InvoiceURL = &url
	return p, nil
}

// Get returns a payment, enforcing ownership for non-admin callers.
func (s *PaymentService) Get(ctx context.Context, id, userID uint64, admin bool) (*model.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && p.UserID != userID {
		return nil, repository.ErrForbidden
	}
	return p, nil
}

// List returns payments matching the filter.  Non-admin callers are
// always scoped to their own payments regardless of the filter.
func (s *PaymentService) List(ctx context.Context, f repository.PaymentFilter, userID uint64, admin bool) ([]model.Payment, int64, error) {
	if !admin {
		f.UserID = userID
	}
	return s.payments.List(ctx, f)
}

// mapExternalStatus translates the provider's status vocabulary into
// ours.  Unknown values map to PENDING so a webhook carrying a status
// we have never seen cannot flip a payment into a terminal state.
func mapExternalStatus(s string) model.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PAID", "SETTLED":
		return model.PaymentCompleted
	case "EXPIRED":
		return model.PaymentExpired
	case "FAILED":
		return model.PaymentFailed
	default:
		return model.PaymentPending
	}
}

// WebhookResult describes what ProcessWebhook did, for logging.
type WebhookResult struct {
	Payment *model.Payment
	Applied bool
}

// ProcessWebhook reconciles a gateway callback.  The handler has
// already authenticated the request; this method is responsible for
// idempotency and state safety:
//
//   - an unknown reference returns ErrPaymentNotFound, which the
//     handler acknowledges with 200 so the provider stops retrying;
//   - a status mapping to PENDING is a no-op;
//   - a payment already in a terminal state is left untouched and the
//     call reports Applied=false (redelivery is normal, not an error);
//   - the transition itself is a compare-and-set in the store, so two
//     concurrent deliveries cannot both apply.
//
// When a transition to COMPLETED applies, a PaymentCompletedEvent is
// published.
func (s *PaymentService) ProcessWebhook(ctx context.Context, reference, externalStatus string, rawPayload []byte) (*WebhookResult, error) {
	p, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.applyExternal(ctx, p, externalStatus, rawPayload)
}

// applyExternal applies an externally reported status to p under the
// reconciliation rules shared by webhook deliveries and status polls.
func (s *PaymentService) applyExternal(ctx context.Context, p *model.Payment, externalStatus string, rawPayload []byte) (*WebhookResult, error) {
	target := mapExternalStatus(externalStatus)
	if target == model.PaymentPending {
		return &WebhookResult{Payment: p, Applied: false}, nil
	}
	if p.Status.Terminal() {
		log.Printf("reconcile %s ignored: payment already %s", p.Reference, p.Status)
		return &WebhookResult{Payment: p, Applied: false}, nil
	}

	var paidAt *time.Time
	if target == model.PaymentCompleted {
		now := time.Now().UTC()
		paidAt = &now
	}
	applied, err := s.payments.ApplyStatus(ctx, p.ID, target, rawPayload, paidAt)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race against a concurrent delivery.
		log.Printf("reconcile %s ignored: concurrent transition won", p.Reference)
		return &WebhookResult{Payment: p, Applied: false}, nil
	}
	p.Status = target
	p.PaidAt = paidAt

	if target == model.PaymentCompleted {
		ev := queue.PaymentCompletedEvent{
			PaymentID:   p.ID,
			OrderID:     p.OrderID,
			UserID:      p.UserID,
			Reference:   p.Reference,
			AmountCents: p.AmountCents,
			Currency:    p.Currency,
			PaidAt:      paidAt.Format(time.RFC3339),
		}
		if err := s.publish(ctx, queue.PaymentCompletedQueue, ev); err != nil {
			log.Printf("publish payment.completed for %s: %v", p.Reference, err)
		}
	}
	return &WebhookResult{Payment: p, Applied: true}, nil
}

// Sync polls the provider for the invoice behind a pending payment and
// applies the outcome through the same rules as a webhook delivery.
// It exists for payments stranded in PENDING: the invoice request
// timed out, or the webhook never arrived.  Non-pending payments are
// returned as-is without touching the gateway.
func (s *PaymentService) Sync(ctx context.Context, id, userID uint64, admin bool) (*model.Payment, error) {
	p, err := s.Get(ctx, id, userID, admin)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PaymentPending {
		return p, nil
	}

	inv, err := s.gateway.GetInvoice(ctx, p.Reference)
	if err != nil {
		return nil, err
	}
	// A timed out invoice request never stored the hosted URL; the poll
	// is the first chance to backfill it.
	if p.InvoiceURL == nil && inv.InvoiceURL != "" {
		if err := s.payments.SetInvoice(ctx, p.ID, inv.InvoiceURL); err != nil {
			return nil, err
		}
		url := inv.InvoiceURL
		p.InvoiceURL = &url
	}

	raw, err := json.Marshal(inv)
	if err != nil {
		return nil, err
	}
	res, err := s.applyExternal(ctx, p, inv.Status, raw)
	if err != nil {
		return nil, err
	}
	return res.Payment, nil
}

// Update changes the payment method of a pending payment.  The record
// freezes once the payment leaves PENDING; status changes go through
// the webhook, cancel, retry and refund paths instead.
func (s *PaymentService) Update(ctx context.Context, id, userID uint64, admin bool, method string) (*model.Payment, error) {
	p, err := s.Get(ctx, id, userID, admin)
	if err != nil {
		return nil, err
	}
	err = s.payments.UpdateMethod(ctx, id, method)
	if errors.Is(err, repository.ErrConflict) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, err
	}
	p.Method = &method
	return p, nil
}

// Cancel moves a pending payment to CANCELLED.  Only the owner (or an
// admin) may cancel, and only while the payment is still PENDING.
func (s *PaymentService) Cancel(ctx context.Context, id, userID uint64, admin bool) (*model.Payment, error) {
	p, err := s.Get(ctx, id, userID, admin)
	if err != nil {
		return nil, err
	}
	err = s.payments.UpdateStatus(ctx, id, model.PaymentCancelled, false, model.PaymentPending)
	if errors.Is(err, repository.ErrConflict) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, err
	}
	p.Status = model.PaymentCancelled
	return p, nil
}

// Retry re-opens a FAILED or EXPIRED payment and requests a fresh
// invoice from the gateway under the same reference.
func (s *PaymentService) Retry(ctx context.Context, id, userID uint64, admin bool) (*model.Payment, error) {
	p, err := s.Get(ctx, id, userID, admin)
	if err != nil {
		return nil, err
	}
	err = s.payments.UpdateStatus(ctx, id, model.PaymentPending, true,
		model.PaymentFailed, model.PaymentExpired)
	if errors.Is(err, repository.ErrConflict) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, err
	}
	p.Status = model.PaymentPending
	p.FailureReason = nil

	inv, err := s.gateway.CreateInvoice(ctx, gateway.InvoiceRequest{
		ExternalID: p.Reference,
		Amount:     p.AmountCents,
		Currency:   p.Currency,
	})
	if err != nil {
		if gateway.IsTimeout(err) {
			return p, err
		}
		reason := err.Error()
		if mErr := s.payments.MarkFailed(ctx, p.ID, reason); mErr != nil {
			log.Printf("payment %s: mark failed: %v", p.Reference, mErr)
		}
		p.Status = model.PaymentFailed
		p.FailureReason = &reason
		return p, err
	}
	if err := s.payments.SetInvoice(ctx, p.ID, inv.InvoiceURL); err != nil {
		return nil, err
	}
	url := inv.InvoiceURL
	p.InvoiceURL = &url
	return p, nil
}

// Refund marks a completed payment as refunded.  Admin only; the
// actual money movement happens out of band at the provider.
func (s *PaymentService) Refund(ctx context.Context, id uint64) (*model.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.payments.UpdateStatus(ctx, id, model.PaymentRefunded, false, model.PaymentCompleted)
	if errors.Is(err, repository.ErrConflict) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, err
	}
	p.Status = model.PaymentRefunded
	return p, nil
}

// StatsSummary augments the raw aggregate with a derived success rate.
type StatsSummary struct {
	repository.PaymentStats
	SuccessRate float64 `json:"success_rate"`
}

// Stats returns aggregate payment statistics for the period.
func (s *PaymentService) Stats(ctx context.Context, start, end *time.Time) (*StatsSummary, error) {
	raw, err := s.payments.Stats(ctx, start, end)
	if err != nil {
		return nil, err
	}
	out := &StatsSummary{PaymentStats: *raw}
	if raw.Total > 0 {
		out.SuccessRate = float64(raw.Completed) / float64(raw.Total)
	}
	return out, nil
}
