package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitedim/skyvix/internal/gateway"
	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/queue"
	"github.com/infinitedim/skyvix/internal/repository"
)

func newPaymentFixture(orderStatus model.OrderStatus) (*PaymentService, *memPayments, *fakeGateway, *capturePublisher) {
	payments := newMemPayments()
	orders := &memOrders{rows: map[uint64]*model.Order{
		1: {ID: 1, UserID: 7, AmountCents: 250000, Currency: "IDR", Status: orderStatus},
	}}
	gw := &fakeGateway{invoice: &gateway.Invoice{
		ID:         "inv_123",
		Status:     "PENDING",
		InvoiceURL: "https://pay.example.com/inv_123",
	}}
	pub := &capturePublisher{}
	svc := NewPaymentService(payments, orders, gw, pub.publish)
	return svc, payments, gw, pub
}

func TestCreatePayment(t *testing.T) {
	svc, _, gw, _ := newPaymentFixture(model.OrderPending)

	p, err := svc.Create(context.Background(), 7, CreatePaymentInput{OrderID: 1, PayerEmail: "x@y.z"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.Equal(t, int64(250000), p.AmountCents, "amount must come from the order")
	assert.Equal(t, "IDR", p.Currency)
	require.NotNil(t, p.InvoiceURL)
	assert.Equal(t, "https://pay.example.com/inv_123", *p.InvoiceURL)
	assert.Equal(t, p.Reference, gw.lastReq.ExternalID)
	assert.Equal(t, "x@y.z", gw.lastReq.PayerEmail)
}

func TestCreatePaymentOrderNotPending(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(model.OrderCompleted)

	_, err := svc.Create(context.Background(), 7, CreatePaymentInput{OrderID: 1})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCreatePaymentWrongOwner(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(model.OrderPending)

	_, err := svc.Create(context.Background(), 99, CreatePaymentInput{OrderID: 1})
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestCreatePaymentSecondAttemptRejected(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(model.OrderPending)
	ctx := context.Background()

	_, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)

	_, err = svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	assert.ErrorIs(t, err, repository.ErrActivePaymentExists)
}

func TestCreatePaymentGatewayRejection(t *testing.T) {
	svc, payments, gw, _ := newPaymentFixture(model.OrderPending)
	gw.err = &gateway.APIError{StatusCode: 400, Body: "INVALID_CURRENCY"}

	p, err := svc.Create(context.Background(), 7, CreatePaymentInput{OrderID: 1})
	require.Error(t, err)
	require.NotNil(t, p)
	assert.Equal(t, model.PaymentFailed, p.Status)
	require.NotNil(t, p.FailureReason)

	stored, err := payments.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, stored.Status)
}

func TestCreatePaymentGatewayTimeoutLeavesPending(t *testing.T) {
	svc, payments, gw, _ := newPaymentFixture(model.OrderPending)
	gw.err = timeoutErr{}

	p, err := svc.Create(context.Background(), 7, CreatePaymentInput{OrderID: 1})
	require.Error(t, err)
	require.NotNil(t, p)

	stored, err := payments.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, stored.Status,
		"a timed out invoice request must not fail the payment")
}

func TestProcessWebhookCompletes(t *testing.T) {
	svc, payments, _, pub := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)

	res, err := svc.ProcessWebhook(ctx, p.Reference, "PAID", []byte(`{"status":"PAID"}`))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.PaymentCompleted, res.Payment.Status)
	require.NotNil(t, res.Payment.PaidAt)

	stored, err := payments.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, stored.Status)
	assert.JSONEq(t, `{"status":"PAID"}`, string(stored.ExternalResponse))

	require.Len(t, pub.events, 1)
	assert.Equal(t, queue.PaymentCompletedQueue, pub.queues[0])
	ev := pub.events[0].(queue.PaymentCompletedEvent)
	assert.Equal(t, p.Reference, ev.Reference)
	assert.Equal(t, int64(250000), ev.AmountCents)
}

func TestProcessWebhookRedeliveryIsIdempotent(t *testing.T) {
	svc, _, _, pub := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)

	first, err := svc.ProcessWebhook(ctx, p.Reference, "PAID", nil)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := svc.ProcessWebhook(ctx, p.Reference, "PAID", nil)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Len(t, pub.events, 1, "redelivery must not publish a second event")
}

func TestProcessWebhookNoRegressionFromTerminal(t *testing.T) {
	svc, payments, _, _ := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)

	_, err = svc.ProcessWebhook(ctx, p.Reference, "EXPIRED", nil)
	require.NoError(t, err)

	res, err := svc.ProcessWebhook(ctx, p.Reference, "PAID", nil)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	stored, err := payments.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentExpired, stored.Status)
}

func TestProcessWebhookUnknownStatusIsNoop(t *testing.T) {
	svc, payments, _, _ := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)

	res, err := svc.ProcessWebhook(ctx, p.Reference, "SOMETHING_NEW", nil)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	stored, err := payments.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, stored.Status)
}

func TestProcessWebhookUnknownReference(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(model.OrderPending)

	_, err := svc.ProcessWebhook(context.Background(), "PAY-NOPE", "PAID", nil)
	assert.ErrorIs(t, err, repository.ErrPaymentNotFound)
}

func TestSyncAppliesProviderStatus(t *testing.T) {
	svc, payments, gw, pub := newPaymentFixture(model.OrderPending)
	ctx := context.Background()

	// The invoice request times out, leaving the payment PENDING with
	// no hosted URL.
	gw.err = timeoutErr{}
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.Error(t, err)
	require.Nil(t, p.InvoiceURL)

	gw.getInvoice = &gateway.Invoice{
		ID:         "inv_123",
		Status:     "PAID",
		InvoiceURL: "https://pay.example.com/inv_123",
	}
	got, err := svc.Sync(ctx, p.ID, 7, false)
	require.NoError(t, err)
	assert.Equal(t, p.Reference, gw.lastGetID, "poll must use the payment reference")
	assert.Equal(t, model.PaymentCompleted, got.Status)
	require.NotNil(t, got.InvoiceURL)
	assert.Equal(t, "https://pay.example.com/inv_123", *got.InvoiceURL)

	stored, err := payments.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, stored.Status)

	require.Len(t, pub.events, 1, "a completing poll publishes like a webhook")
	assert.Equal(t, queue.PaymentCompletedQueue, pub.queues[0])
}

func TestSyncPendingInvoiceIsNoop(t *testing.T) {
	svc, payments, gw, _ := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)

	gw.getInvoice = &gateway.Invoice{Status: "PENDING"}
	got, err := svc.Sync(ctx, p.ID, 7, false)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, got.Status)

	stored, err := payments.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, stored.Status)
}

func TestSyncSkipsNonPendingPayments(t *testing.T) {
	svc, _, gw, _ := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, p.ID, 7, false)
	require.NoError(t, err)

	got, err := svc.Sync(ctx, p.ID, 7, false)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCancelled, got.Status)
	assert.Zero(t, gw.getCalls, "a settled payment must not hit the gateway")
}

func TestCancelPayment(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)

	got, err := svc.Cancel(ctx, p.ID, 7, false)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCancelled, got.Status)

	// Already terminal now.
	_, err = svc.Cancel(ctx, p.ID, 7, false)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdatePaymentMethod(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)

	got, err := svc.Update(ctx, p.ID, 7, false, "BANK_TRANSFER")
	require.NoError(t, err)
	require.NotNil(t, got.Method)
	assert.Equal(t, "BANK_TRANSFER", *got.Method)

	// The record freezes once the payment is cancelled.
	_, err = svc.Cancel(ctx, p.ID, 7, false)
	require.NoError(t, err)
	_, err = svc.Update(ctx, p.ID, 7, false, "EWALLET")
	assert.ErrorIs(t, err, ErrInvalidState)

	// Ownership still applies.
	_, err = svc.Update(ctx, p.ID, 99, false, "EWALLET")
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestRetryPayment(t *testing.T) {
	svc, payments, gw, _ := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	gw.err = &gateway.APIError{StatusCode: 500, Body: "SERVER_ERROR"}
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.Error(t, err)
	require.Equal(t, model.PaymentFailed, p.Status)

	gw.err = nil
	got, err := svc.Retry(ctx, p.ID, 7, false)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, got.Status)
	assert.Nil(t, got.FailureReason)
	require.NotNil(t, got.InvoiceURL)
	assert.Equal(t, p.Reference, gw.lastReq.ExternalID, "retry keeps the same reference")

	stored, err := payments.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, stored.Status)
}

func TestRetryPendingPaymentRejected(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)

	_, err = svc.Retry(ctx, p.ID, 7, false)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRefundPayment(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)

	_, err = svc.Refund(ctx, p.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "only completed payments can be refunded")

	_, err = svc.ProcessWebhook(ctx, p.Reference, "PAID", nil)
	require.NoError(t, err)

	got, err := svc.Refund(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, got.Status)
}

func TestGetPaymentOwnership(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)

	_, err = svc.Get(ctx, p.ID, 42, false)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	got, err := svc.Get(ctx, p.ID, 42, true)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestListPaymentsScopesNonAdmin(t *testing.T) {
	payments := newMemPayments()
	orders := &memOrders{rows: map[uint64]*model.Order{
		1: {ID: 1, UserID: 7, AmountCents: 1000, Currency: "IDR", Status: model.OrderPending},
	}}
	require.NoError(t, payments.Create(context.Background(), &model.Payment{OrderID: 1, UserID: 7, Reference: "PAY-A", Status: model.PaymentPending}))
	require.NoError(t, payments.Create(context.Background(), &model.Payment{OrderID: 2, UserID: 8, Reference: "PAY-B", Status: model.PaymentPending}))
	svc := NewPaymentService(payments, orders, &fakeGateway{invoice: &gateway.Invoice{}}, nil)

	rows, total, err := svc.List(context.Background(), repository.PaymentFilter{}, 7, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "PAY-A", rows[0].Reference)

	_, total, err = svc.List(context.Background(), repository.PaymentFilter{}, 7, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestStatsSuccessRate(t *testing.T) {
	svc, payments, _, _ := newPaymentFixture(model.OrderPending)
	ctx := context.Background()
	p, err := svc.Create(ctx, 7, CreatePaymentInput{OrderID: 1})
	require.NoError(t, err)
	_, err = svc.ProcessWebhook(ctx, p.Reference, "PAID", nil)
	require.NoError(t, err)
	require.NoError(t, payments.Create(ctx, &model.Payment{OrderID: 9, UserID: 7, Reference: "PAY-X", AmountCents: 100, Status: model.PaymentPending}))

	stats, err := svc.Stats(ctx, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 1, stats.Completed)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.EqualValues(t, 250000, stats.CompletedSumCents)
}
