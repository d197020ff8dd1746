package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/repository"
)

// OrderHandler serves the order CRUD endpoints.  Customers operate on
// their own orders; admins see everything.
type OrderHandler struct {
	Orders *repository.OrderRepo
}

func NewOrderHandler(orders *repository.OrderRepo) *OrderHandler {
	if orders == nil {
		panic("nil repository passed to NewOrderHandler")
	}
	return &OrderHandler{Orders: orders}
}

// ----- DTOs -----

type orderItemReq struct {
	Name           string `json:"name"`
	Quantity       uint32 `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type createOrderReq struct {
	AmountCents int64           `json:"amount_cents"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata"`
	Items       []orderItemReq  `json:"items"`
}

type orderItemResp struct {
	ID             uint64 `json:"id"`
	Name           string `json:"name"`
	Quantity       uint32 `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type orderResp struct {
	ID          uint64          `json:"id"`
	UserID      uint64          `json:"user_id"`
	AmountCents int64           `json:"amount_cents"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	Description *string         `json:"description,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Items       []orderItemResp `json:"items,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toOrderResp(o *model.Order, items []model.OrderItem) orderResp {
	resp := orderResp{
		ID:          o.ID,
		UserID:      o.UserID,
		AmountCents: o.AmountCents,
		Currency:    o.Currency,
		Status:      string(o.Status),
		Description: o.Description,
		Metadata:    o.Metadata,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, orderItemResp{
			ID: it.ID, Name: it.Name, Quantity: it.Quantity, UnitPriceCents: it.UnitPriceCents,
		})
	}
	return resp
}

// Create handles POST /orders.  When line items are present the order
// amount is the sum of quantity times unit price; a client-supplied
// amount is only honored for itemless orders.
func (h *OrderHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createOrderReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = "IDR"
	}

	items := make([]model.OrderItem, 0, len(req.Items))
	var amount int64
	for _, it := range req.Items {
		if it.Name == "" || it.Quantity == 0 || it.UnitPriceCents < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order item"})
		}
		amount += int64(it.Quantity) * it.UnitPriceCents
		items = append(items, model.OrderItem{
			Name: it.Name, Quantity: it.Quantity, UnitPriceCents: it.UnitPriceCents,
		})
	}
	if len(items) == 0 {
		amount = req.AmountCents
	}
	if amount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be positive"})
	}

	o := &model.Order{
		UserID:      userID,
		AmountCents: amount,
		Currency:    req.Currency,
		Status:      model.OrderPending,
		Metadata:    req.Metadata,
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		o.Description = &d
	}
	if err := h.Orders.Create(c.Request().Context(), o, items); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toOrderResp(o, items))
}

// List handles GET /orders.
func (h *OrderHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	scope := userID
	if isAdmin(c) {
		scope = 0 // admins see every order
	}
	orders, err := h.Orders.List(c.Request().Context(), scope)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]orderResp, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResp(&orders[i], nil))
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": out, "total": len(out)})
}

// Get handles GET /orders/:id, including line items.
func (h *OrderHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	scope := userID
	if isAdmin(c) {
		scope = 0
	}
	ctx := c.Request().Context()
	o, err := h.Orders.GetByID(ctx, id, scope)
	if err != nil {
		return respondError(c, err)
	}
	items, err := h.Orders.ListItems(ctx, o.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResp(o, items))
}

// Update handles PUT /orders/:id.  Only pending orders may change, and
// only their mutable fields.
func (h *OrderHandler) Update(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var req createOrderReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx := c.Request().Context()
	scope := userID
	if isAdmin(c) {
		scope = 0
	}
	o, err := h.Orders.GetByID(ctx, id, scope)
	if err != nil {
		return respondError(c, err)
	}
	if o.Status != model.OrderPending {
		return c.JSON(http.StatusConflict, echo.Map{"error": "only pending orders can be updated"})
	}
	if req.AmountCents > 0 {
		o.AmountCents = req.AmountCents
	}
	if cur := strings.ToUpper(strings.TrimSpace(req.Currency)); cur != "" {
		o.Currency = cur
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		o.Description = &d
	}
	if len(req.Metadata) > 0 {
		o.Metadata = req.Metadata
	}
	if err := h.Orders.Update(ctx, o); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResp(o, nil))
}

// UpdateStatus handles PATCH /orders/:id/status (admin).
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if !model.ValidOrderStatus(status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	if err := h.Orders.UpdateStatus(c.Request().Context(), id, model.OrderStatus(status)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "status": status})
}

// Delete handles DELETE /orders/:id.  Orders with a completed payment
// are never deleted.
func (h *OrderHandler) Delete(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	ctx := c.Request().Context()
	scope := userID
	if isAdmin(c) {
		scope = 0
	}
	if _, err := h.Orders.GetByID(ctx, id, scope); err != nil {
		return respondError(c, err)
	}
	if err := h.Orders.Delete(ctx, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
