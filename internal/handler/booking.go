package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/repository"
	"github.com/infinitedim/skyvix/internal/service"
)

// BookingHandler serves the train booking endpoints.
type BookingHandler struct {
	Bookings *service.BookingService
}

func NewBookingHandler(bookings *service.BookingService) *BookingHandler {
	if bookings == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: bookings}
}

// ----- DTOs -----

type createBookingReq struct {
	ScheduleID      uint64  `json:"schedule_id"`
	SeatID          *uint64 `json:"seat_id"`
	PassengerName   string  `json:"passenger_name"`
	PassengerIDCard string  `json:"passenger_id_card"`
	PassengerPhone  string  `json:"passenger_phone"`
	PassengerEmail  string  `json:"passenger_email"`
	DepartureDate   string  `json:"departure_date"` // YYYY-MM-DD
}

type bookingResp struct {
	ID              uint64     `json:"id"`
	UserID          uint64     `json:"user_id"`
	ScheduleID      uint64     `json:"schedule_id"`
	SeatID          *uint64    `json:"seat_id,omitempty"`
	BookingCode     string     `json:"booking_code"`
	PassengerName   string     `json:"passenger_name"`
	PassengerIDCard string     `json:"passenger_id_card"`
	PassengerPhone  string     `json:"passenger_phone"`
	PassengerEmail  string     `json:"passenger_email"`
	DepartureDate   string     `json:"departure_date"`
	TotalPriceCents int64      `json:"total_price_cents"`
	Status          string     `json:"status"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toBookingResp(b *model.TrainBooking) bookingResp {
	return bookingResp{
		ID:              b.ID,
		UserID:          b.UserID,
		ScheduleID:      b.ScheduleID,
		SeatID:          b.SeatID,
		BookingCode:     b.BookingCode,
		PassengerName:   b.PassengerName,
		PassengerIDCard: b.PassengerIDCard,
		PassengerPhone:  b.PassengerPhone,
		PassengerEmail:  b.PassengerEmail,
		DepartureDate:   b.DepartureDate.Format("2006-01-02"),
		TotalPriceCents: b.TotalPriceCents,
		Status:          string(b.Status),
		CancelledAt:     b.CancelledAt,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

// Create handles POST /bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createBookingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ScheduleID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "schedule_id required"})
	}
	if strings.TrimSpace(req.PassengerName) == "" || strings.TrimSpace(req.PassengerIDCard) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "passenger name and id card required"})
	}
	depDate, err := time.Parse("2006-01-02", req.DepartureDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "departure_date must be YYYY-MM-DD"})
	}
	if req.SeatID != nil && *req.SeatID == 0 {
		req.SeatID = nil
	}

	b, err := h.Bookings.Create(c.Request().Context(), userID, service.CreateBookingInput{
		ScheduleID:      req.ScheduleID,
		SeatID:          req.SeatID,
		PassengerName:   strings.TrimSpace(req.PassengerName),
		PassengerIDCard: strings.TrimSpace(req.PassengerIDCard),
		PassengerPhone:  strings.TrimSpace(req.PassengerPhone),
		PassengerEmail:  strings.ToLower(strings.TrimSpace(req.PassengerEmail)),
		DepartureDate:   depDate.UTC(),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toBookingResp(b))
}

// Get handles GET /bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	b, err := h.Bookings.Get(c.Request().Context(), id, userID, isAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingResp(b))
}

// GetByCode handles GET /bookings/code/:code.
func (h *BookingHandler) GetByCode(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid code"})
	}
	b, err := h.Bookings.GetByCode(c.Request().Context(), code, userID, isAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingResp(b))
}

// List handles GET /bookings.
func (h *BookingHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	f := repository.BookingFilter{
		ScheduleID: uint64(queryInt(c, "schedule_id", 0)),
		Status:     strings.ToUpper(c.QueryParam("status")),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 10),
	}
	if f.Status != "" && !model.ValidBookingStatus(f.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	rows, total, err := h.Bookings.List(c.Request().Context(), f, userID, isAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	out := make([]bookingResp, 0, len(rows))
	for i := range rows {
		out = append(out, toBookingResp(&rows[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"bookings":  out,
		"total":     total,
		"page":      f.Page,
		"page_size": f.PageSize,
	})
}

// UpdateStatus handles PATCH /bookings/:id/status.
func (h *BookingHandler) UpdateStatus(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
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
	if !model.ValidBookingStatus(status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	b, err := h.Bookings.UpdateStatus(c.Request().Context(), id, model.BookingStatus(status), userID, isAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingResp(b))
}

// Cancel handles POST /bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	b, err := h.Bookings.Cancel(c.Request().Context(), id, userID, isAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingResp(b))
}
