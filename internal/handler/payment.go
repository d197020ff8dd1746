package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/infinitedim/skyvix/internal/gateway"
	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/repository"
	"github.com/infinitedim/skyvix/internal/service"
)

// PaymentHandler serves the payment endpoints and the gateway webhook.
type PaymentHandler struct {
	Payments      *service.PaymentService
	CallbackToken string
}

func NewPaymentHandler(payments *service.PaymentService, callbackToken string) *PaymentHandler {
	if payments == nil {
		panic("nil service passed to NewPaymentHandler")
	}
	return &PaymentHandler{Payments: payments, CallbackToken: callbackToken}
}

// ----- DTOs -----

type createPaymentReq struct {
	OrderID    uint64 `json:"order_id"`
	Method     string `json:"method"`
	PayerEmail string `json:"payer_email"`
}

type paymentResp struct {
	ID            uint64     `json:"id"`
	OrderID       uint64     `json:"order_id"`
	UserID        uint64     `json:"user_id"`
	Reference     string     `json:"reference"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	Method        *string    `json:"method,omitempty"`
	Status        string     `json:"status"`
	InvoiceURL    *string    `json:"invoice_url,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toPaymentResp(p *model.Payment) paymentResp {
	return paymentResp{
		ID:            p.ID,
		OrderID:       p.OrderID,
		UserID:        p.UserID,
		Reference:     p.Reference,
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		Method:        p.Method,
		Status:        string(p.Status),
		InvoiceURL:    p.InvoiceURL,
		FailureReason: p.FailureReason,
		PaidAt:        p.PaidAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// Create handles POST /payments.  The response status mirrors what
// happened at the gateway: 201 when the invoice is ready, 202 when the
// request timed out and the webhook will decide, 502 when the gateway
// rejected the invoice outright.
func (h *PaymentHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createPaymentReq
	if err := c.Bind(&req); err != nil || req.OrderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order_id required"})
	}
	in := service.CreatePaymentInput{OrderID: req.OrderID, PayerEmail: strings.TrimSpace(req.PayerEmail)}
	if m := strings.TrimSpace(req.Method); m != "" {
		in.Method = &m
	}

	p, err := h.Payments.Create(c.Request().Context(), userID, in)
	if err != nil {
		if p != nil && gateway.IsTimeout(err) {
			return c.JSON(http.StatusAccepted, echo.Map{
				"payment": toPaymentResp(p),
				"message": "invoice request timed out; status will be settled by webhook",
			})
		}
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			return c.JSON(http.StatusBadGateway, echo.Map{
				"payment": toPaymentResp(p),
				"error":   "payment gateway rejected the invoice",
			})
		}
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toPaymentResp(p))
}

// Get handles GET /payments/:id.
func (h *PaymentHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	p, err := h.Payments.Get(c.Request().Context(), id, userID, isAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toPaymentResp(p))
}

// List handles GET /payments with filtering and pagination.
func (h *PaymentHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	f := repository.PaymentFilter{
		Search:   c.QueryParam("search"),
		Status:   strings.ToUpper(c.QueryParam("status")),
		Method:   c.QueryParam("method"),
		Currency: strings.ToUpper(c.QueryParam("currency")),
		OrderID:  uint64(queryInt(c, "order_id", 0)),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 10),
	}
	if f.Status != "" && !model.ValidPaymentStatus(f.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	if t, ok := queryDate(c, "start_date"); ok {
		f.StartDate = &t
	}
	if t, ok := queryDate(c, "end_date"); ok {
		end := t.Add(24*time.Hour - time.Nanosecond) // inclusive day
		f.EndDate = &end
	}

	rows, total, err := h.Payments.List(c.Request().Context(), f, userID, isAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	out := make([]paymentResp, 0, len(rows))
	for i := range rows {
		out = append(out, toPaymentResp(&rows[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"payments":  out,
		"total":     total,
		"page":      f.Page,
		"page_size": f.PageSize,
	})
}

// Update handles PATCH /payments/:id.  Only the payment method can be
// changed, and only while the payment is still pending.
func (h *PaymentHandler) Update(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var req struct {
		Method string `json:"method"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Method = strings.TrimSpace(req.Method)
	if req.Method == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "method required"})
	}
	p, err := h.Payments.Update(c.Request().Context(), id, userID, isAdmin(c), req.Method)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toPaymentResp(p))
}

// Sync handles POST /payments/:id/sync.  It polls the gateway for the
// invoice behind a pending payment and applies the outcome, closing
// the gap left by a timed out invoice request or a missed webhook.
func (h *PaymentHandler) Sync(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	p, err := h.Payments.Sync(c.Request().Context(), id, userID, isAdmin(c))
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) || gateway.IsTimeout(err) {
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "external service error"})
		}
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toPaymentResp(p))
}

// Cancel handles POST /payments/:id/cancel.
func (h *PaymentHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	p, err := h.Payments.Cancel(c.Request().Context(), id, userID, isAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toPaymentResp(p))
}

// Retry handles POST /payments/:id/retry.
func (h *PaymentHandler) Retry(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	p, err := h.Payments.Retry(c.Request().Context(), id, userID, isAdmin(c))
	if err != nil {
		if p != nil && gateway.IsTimeout(err) {
			return c.JSON(http.StatusAccepted, echo.Map{"payment": toPaymentResp(p)})
		}
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			return c.JSON(http.StatusBadGateway, echo.Map{
				"payment": toPaymentResp(p),
				"error":   "payment gateway rejected the invoice",
			})
		}
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toPaymentResp(p))
}

// Refund handles POST /payments/:id/refund (admin).
func (h *PaymentHandler) Refund(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	p, err := h.Payments.Refund(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toPaymentResp(p))
}

// Stats handles GET /payments/stats (admin).
func (h *PaymentHandler) Stats(c echo.Context) error {
	var start, end *time.Time
	if t, ok := queryDate(c, "start_date"); ok {
		start = &t
	}
	if t, ok := queryDate(c, "end_date"); ok {
		e := t.Add(24*time.Hour - time.Nanosecond)
		end = &e
	}
	stats, err := h.Payments.Stats(c.Request().Context(), start, end)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// webhookPayload is the subset of the gateway callback we act on.  The
// full raw body is persisted verbatim alongside the transition.
type webhookPayload struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

// Webhook handles POST /webhooks/payment.  Authentication is a shared
// secret in the x-callback-token header.  The handler always answers
// 200 for well-formed, authenticated deliveries, including unknown
// references and redeliveries, so the provider stops retrying.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	token := c.Request().Header.Get("x-callback-token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.CallbackToken)) != 1 {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid callback token"})
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ExternalID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	res, err := h.Payments.ProcessWebhook(c.Request().Context(), payload.ExternalID, payload.Status, raw)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			// Acknowledge so the provider does not retry forever.
			log.Printf("webhook: unknown payment reference %q", payload.ExternalID)
			return c.JSON(http.StatusOK, echo.Map{"message": "unknown reference ignored"})
		}
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reference": res.Payment.Reference,
		"status":    string(res.Payment.Status),
		"applied":   res.Applied,
	})
}

// queryDate parses an optional YYYY-MM-DD query parameter as UTC.
func queryDate(c echo.Context, name string) (time.Time, bool) {
	v := c.QueryParam(name)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
