package handler

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/repository"
)

// ScheduleHandler serves the schedule and seat catalog endpoints.
// Creation and deletion are admin operations; browsing and searching
// are open to every authenticated user.
type ScheduleHandler struct {
	Schedules *repository.ScheduleRepo
	Routes    *repository.RouteRepo
	Seats     *repository.SeatRepo
}

func NewScheduleHandler(schedules *repository.ScheduleRepo, routes *repository.RouteRepo, seats *repository.SeatRepo) *ScheduleHandler {
	if schedules == nil || routes == nil || seats == nil {
		panic("nil repository passed to NewScheduleHandler")
	}
	return &ScheduleHandler{Schedules: schedules, Routes: routes, Seats: seats}
}

// ----- DTOs -----

var hhmmRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

var weekdays = map[string]bool{
	"MONDAY": true, "TUESDAY": true, "WEDNESDAY": true, "THURSDAY": true,
	"FRIDAY": true, "SATURDAY": true, "SUNDAY": true,
}

type createScheduleReq struct {
	RouteID       uint64   `json:"route_id"`
	DepartureTime string   `json:"departure_time"` // HH:MM
	ArrivalTime   string   `json:"arrival_time"`   // HH:MM
	ValidFrom     string   `json:"valid_from"`     // YYYY-MM-DD
	ValidUntil    string   `json:"valid_until"`    // YYYY-MM-DD
	OperatingDays []string `json:"operating_days"`
}

type scheduleResp struct {
	ID            uint64   `json:"id"`
	RouteID       uint64   `json:"route_id"`
	TrainID       uint64   `json:"train_id"`
	DepartureTime string   `json:"departure_time"`
	ArrivalTime   string   `json:"arrival_time"`
	ValidFrom     string   `json:"valid_from"`
	ValidUntil    string   `json:"valid_until"`
	OperatingDays []string `json:"operating_days"`
	IsActive      bool     `json:"is_active"`
}

func toScheduleResp(s *model.TrainSchedule) scheduleResp {
	return scheduleResp{
		ID:            s.ID,
		RouteID:       s.RouteID,
		TrainID:       s.TrainID,
		DepartureTime: s.DepartureTime,
		ArrivalTime:   s.ArrivalTime,
		ValidFrom:     s.ValidFrom.Format("2006-01-02"),
		ValidUntil:    s.ValidUntil.Format("2006-01-02"),
		OperatingDays: s.OperatingDays,
		IsActive:      s.IsActive,
	}
}

type seatResp struct {
	ID          uint64 `json:"id"`
	ScheduleID  uint64 `json:"schedule_id"`
	CarNumber   string `json:"car_number"`
	SeatNumber  string `json:"seat_number"`
	SeatClass   string `json:"seat_class"`
	PriceCents  int64  `json:"price_cents"`
	IsAvailable bool   `json:"is_available"`
}

func toSeatResp(s *model.TrainSeat) seatResp {
	return seatResp{
		ID:          s.ID,
		ScheduleID:  s.ScheduleID,
		CarNumber:   s.CarNumber,
		SeatNumber:  s.SeatNumber,
		SeatClass:   s.SeatClass,
		PriceCents:  s.PriceCents,
		IsAvailable: s.IsAvailable,
	}
}

// Create handles POST /schedules (admin).
func (h *ScheduleHandler) Create(c echo.Context) error {
	var req createScheduleReq
	if err := c.Bind(&req); err != nil || req.RouteID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "route_id required"})
	}
	if !hhmmRe.MatchString(req.DepartureTime) || !hhmmRe.MatchString(req.ArrivalTime) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "times must be HH:MM"})
	}
	from, err := time.Parse("2006-01-02", req.ValidFrom)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid_from must be YYYY-MM-DD"})
	}
	until, err := time.Parse("2006-01-02", req.ValidUntil)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid_until must be YYYY-MM-DD"})
	}
	if until.Before(from) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid_until before valid_from"})
	}
	days := make([]string, 0, len(req.OperatingDays))
	seen := map[string]bool{}
	for _, d := range req.OperatingDays {
		d = strings.ToUpper(strings.TrimSpace(d))
		if !weekdays[d] {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown operating day: " + d})
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "operating_days required"})
	}

	ctx := c.Request().Context()
	route, err := h.Routes.GetRoute(ctx, req.RouteID)
	if err != nil {
		return respondError(c, err)
	}

	s := &model.TrainSchedule{
		RouteID:       route.ID,
		TrainID:       route.TrainID,
		DepartureTime: req.DepartureTime,
		ArrivalTime:   req.ArrivalTime,
		ValidFrom:     from.UTC(),
		ValidUntil:    until.UTC(),
		OperatingDays: days,
		IsActive:      true,
	}
	if err := h.Schedules.Create(ctx, s); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toScheduleResp(s))
}

// Get handles GET /schedules/:id.
func (h *ScheduleHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	s, err := h.Schedules.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toScheduleResp(s))
}

// List handles GET /schedules.
func (h *ScheduleHandler) List(c echo.Context) error {
	f := repository.ScheduleFilter{
		RouteID:  uint64(queryInt(c, "route_id", 0)),
		TrainID:  uint64(queryInt(c, "train_id", 0)),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 10),
	}
	if t, ok := queryDate(c, "date"); ok {
		f.Date = &t
	}
	switch c.QueryParam("is_active") {
	case "true":
		v := true
		f.IsActive = &v
	case "false":
		v := false
		f.IsActive = &v
	}
	rows, total, err := h.Schedules.List(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]scheduleResp, 0, len(rows))
	for i := range rows {
		out = append(out, toScheduleResp(&rows[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"schedules": out,
		"total":     total,
		"page":      f.Page,
		"page_size": f.PageSize,
	})
}

// Search handles GET /schedules/search?from=&to=&date=.  It returns the
// active schedules running between two stations on a travel date.
func (h *ScheduleHandler) Search(c echo.Context) error {
	from := uint64(queryInt(c, "from", 0))
	to := uint64(queryInt(c, "to", 0))
	if from == 0 || to == 0 || from == to {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "from and to station ids required"})
	}
	date, ok := queryDate(c, "date")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
	}
	rows, err := h.Schedules.Search(c.Request().Context(), from, to, date)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]scheduleResp, 0, len(rows))
	for i := range rows {
		out = append(out, toScheduleResp(&rows[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"schedules": out, "total": len(out)})
}

// SetActive handles PATCH /schedules/:id/active (admin).
func (h *ScheduleHandler) SetActive(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil || req.IsActive == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "is_active required"})
	}
	if err := h.Schedules.SetActive(c.Request().Context(), id, *req.IsActive); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "is_active": *req.IsActive})
}

// Delete handles DELETE /schedules/:id (admin).  Schedules with live
// bookings are refused with 409.
func (h *ScheduleHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Schedules.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListSeats handles GET /schedules/:id/seats.  available=true narrows
// to seats that can still be booked.
func (h *ScheduleHandler) ListSeats(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	ctx := c.Request().Context()
	if _, err := h.Schedules.GetByID(ctx, id); err != nil {
		return respondError(c, err)
	}
	seats, err := h.Seats.ListBySchedule(ctx, id, c.QueryParam("available") == "true")
	if err != nil {
		return respondError(c, err)
	}
	out := make([]seatResp, 0, len(seats))
	for i := range seats {
		out = append(out, toSeatResp(&seats[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"seats": out, "total": len(out)})
}

type createSeatReq struct {
	CarNumber  string `json:"car_number"`
	SeatNumber string `json:"seat_number"`
	SeatClass  string `json:"seat_class"`
	PriceCents int64  `json:"price_cents"`
}

// CreateSeats handles POST /schedules/:id/seats (admin).  The body is
// an array of seats inserted in one statement.
func (h *ScheduleHandler) CreateSeats(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var req struct {
		Seats []createSeatReq `json:"seats"`
	}
	if err := c.Bind(&req); err != nil || len(req.Seats) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats required"})
	}

	ctx := c.Request().Context()
	if _, err := h.Schedules.GetByID(ctx, id); err != nil {
		return respondError(c, err)
	}

	seats := make([]model.TrainSeat, 0, len(req.Seats))
	for _, s := range req.Seats {
		if s.CarNumber == "" || s.SeatNumber == "" || s.PriceCents < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat"})
		}
		seats = append(seats, model.TrainSeat{
			ScheduleID:  id,
			CarNumber:   strings.ToUpper(strings.TrimSpace(s.CarNumber)),
			SeatNumber:  strings.ToUpper(strings.TrimSpace(s.SeatNumber)),
			SeatClass:   strings.ToUpper(strings.TrimSpace(s.SeatClass)),
			PriceCents:  s.PriceCents,
			IsAvailable: true,
		})
	}
	if err := h.Seats.CreateBulk(ctx, seats); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"created": len(seats)})
}
