package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/repository"
)

// CatalogHandler serves the station, train and route catalog.  Writes
// are admin operations; reads are open to authenticated users.
type CatalogHandler struct {
	Stations *repository.StationRepo
	Routes   *repository.RouteRepo
}

func NewCatalogHandler(stations *repository.StationRepo, routes *repository.RouteRepo) *CatalogHandler {
	if stations == nil || routes == nil {
		panic("nil repository passed to NewCatalogHandler")
	}
	return &CatalogHandler{Stations: stations, Routes: routes}
}

// ----- DTOs -----

type stationResp struct {
	ID   uint64 `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	City string `json:"city"`
}

func toStationResp(s *model.Station) stationResp {
	return stationResp{ID: s.ID, Code: s.Code, Name: s.Name, City: s.City}
}

type trainResp struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type routeResp struct {
	ID                 uint64  `json:"id"`
	TrainID            uint64  `json:"train_id"`
	DepartureStationID uint64  `json:"departure_station_id"`
	ArrivalStationID   uint64  `json:"arrival_station_id"`
	DistanceKM         *uint32 `json:"distance_km,omitempty"`
	IsActive           bool    `json:"is_active"`
}

func toRouteResp(r *model.TrainRoute) routeResp {
	return routeResp{
		ID:                 r.ID,
		TrainID:            r.TrainID,
		DepartureStationID: r.DepartureStationID,
		ArrivalStationID:   r.ArrivalStationID,
		DistanceKM:         r.DistanceKM,
		IsActive:           r.IsActive,
	}
}

// ----- Stations -----

// CreateStation handles POST /stations (admin).
func (h *CatalogHandler) CreateStation(c echo.Context) error {
	var req struct {
		Code string `json:"code"`
		Name string `json:"name"`
		City string `json:"city"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	req.City = strings.TrimSpace(req.City)
	if req.Code == "" || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code and name required"})
	}
	s := &model.Station{Code: req.Code, Name: req.Name, City: req.City}
	if err := h.Stations.Create(c.Request().Context(), s); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toStationResp(s))
}

// GetStation handles GET /stations/:id.
func (h *CatalogHandler) GetStation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	s, err := h.Stations.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toStationResp(s))
}

// ListStations handles GET /stations, optionally filtered by city.
func (h *CatalogHandler) ListStations(c echo.Context) error {
	rows, err := h.Stations.List(c.Request().Context(), strings.TrimSpace(c.QueryParam("city")))
	if err != nil {
		return respondError(c, err)
	}
	out := make([]stationResp, 0, len(rows))
	for i := range rows {
		out = append(out, toStationResp(&rows[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"stations": out, "total": len(out)})
}

// DeleteStation handles DELETE /stations/:id (admin).  Stations that
// routes still reference are refused with 409.
func (h *CatalogHandler) DeleteStation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Stations.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- Trains -----

// CreateTrain handles POST /trains (admin).
func (h *CatalogHandler) CreateTrain(c echo.Context) error {
	var req struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Type = strings.ToUpper(strings.TrimSpace(req.Type))
	if req.Name == "" || req.Type == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and type required"})
	}
	t := &model.Train{Name: req.Name, Type: req.Type}
	if err := h.Routes.CreateTrain(c.Request().Context(), t); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, trainResp{ID: t.ID, Name: t.Name, Type: t.Type})
}

// GetTrain handles GET /trains/:id.
func (h *CatalogHandler) GetTrain(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	t, err := h.Routes.GetTrain(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, trainResp{ID: t.ID, Name: t.Name, Type: t.Type})
}

// ListTrains handles GET /trains.
func (h *CatalogHandler) ListTrains(c echo.Context) error {
	rows, err := h.Routes.ListTrains(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	out := make([]trainResp, 0, len(rows))
	for _, t := range rows {
		out = append(out, trainResp{ID: t.ID, Name: t.Name, Type: t.Type})
	}
	return c.JSON(http.StatusOK, echo.Map{"trains": out, "total": len(out)})
}

// ----- Routes -----

// CreateRoute handles POST /routes (admin).
func (h *CatalogHandler) CreateRoute(c echo.Context) error {
	var req struct {
		TrainID            uint64  `json:"train_id"`
		DepartureStationID uint64  `json:"departure_station_id"`
		ArrivalStationID   uint64  `json:"arrival_station_id"`
		DistanceKM         *uint32 `json:"distance_km"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.TrainID == 0 || req.DepartureStationID == 0 || req.ArrivalStationID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "train and station ids required"})
	}
	if req.DepartureStationID == req.ArrivalStationID {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "route endpoints must differ"})
	}

	ctx := c.Request().Context()
	if _, err := h.Stations.GetByID(ctx, req.DepartureStationID); err != nil {
		return respondError(c, err)
	}
	if _, err := h.Stations.GetByID(ctx, req.ArrivalStationID); err != nil {
		return respondError(c, err)
	}

	rt := &model.TrainRoute{
		TrainID:            req.TrainID,
		DepartureStationID: req.DepartureStationID,
		ArrivalStationID:   req.ArrivalStationID,
		DistanceKM:         req.DistanceKM,
		IsActive:           true,
	}
	if err := h.Routes.CreateRoute(ctx, rt); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toRouteResp(rt))
}

// GetRoute handles GET /routes/:id.
func (h *CatalogHandler) GetRoute(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	rt, err := h.Routes.GetRoute(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toRouteResp(rt))
}

// ListRoutes handles GET /routes, optionally filtered by train.
func (h *CatalogHandler) ListRoutes(c echo.Context) error {
	rows, err := h.Routes.ListRoutes(c.Request().Context(), uint64(queryInt(c, "train_id", 0)))
	if err != nil {
		return respondError(c, err)
	}
	out := make([]routeResp, 0, len(rows))
	for i := range rows {
		out = append(out, toRouteResp(&rows[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"routes": out, "total": len(out)})
}
