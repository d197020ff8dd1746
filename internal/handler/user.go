package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/infinitedim/skyvix/internal/config"
	"github.com/infinitedim/skyvix/internal/model"
	"github.com/infinitedim/skyvix/internal/repository"
	"github.com/infinitedim/skyvix/internal/utils"
)

// UserHandler serves profile self-service and the admin user
// management endpoints.
type UserHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
}

func NewUserHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo) *UserHandler {
	return &UserHandler{Cfg: cfg, Users: u, Tokens: t}
}

// ----- DTOs -----

type updateProfileReq struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type userResp struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResp(u model.User) userResp {
	return userResp{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// minPasswordLen applies to new passwords only; existing hashes are
// grandfathered in.
const minPasswordLen = 8

// UpdateMe handles PATCH /me.  Only the fields present in the body
// change; absent fields keep their stored value.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req updateProfileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.FirstName == nil && req.LastName == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nothing to update"})
	}
	if req.FirstName != nil {
		v := strings.TrimSpace(*req.FirstName)
		req.FirstName = &v
	}
	if req.LastName != nil {
		v := strings.TrimSpace(*req.LastName)
		req.LastName = &v
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.UpdateProfile(ctx, userID, req.FirstName, req.LastName); err != nil {
		return respondError(c, err)
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// ChangePassword handles POST /me/password.  The current password must
// verify, and all refresh tokens are revoked so other sessions have to
// sign in again with the new credentials.
func (h *UserHandler) ChangePassword(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current_password and new_password required"})
	}
	if len(req.NewPassword) < minPasswordLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "new password too short"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.CurrentPassword) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "current password is incorrect"})
	}

	hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash failed"})
	}
	if err := h.Users.UpdatePassword(ctx, userID, hash); err != nil {
		return respondError(c, err)
	}
	if err := h.Tokens.RevokeAllForUser(ctx, userID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke sessions failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed; sign in again"})
}

// AdminList handles GET /admin/users.
func (h *UserHandler) AdminList(c echo.Context) error {
	f := repository.UserFilter{
		Search:   strings.TrimSpace(c.QueryParam("search")),
		Role:     strings.ToUpper(strings.TrimSpace(c.QueryParam("role"))),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 10),
	}
	if v := c.QueryParam("is_active"); v != "" {
		active := v == "true" || v == "1"
		f.IsActive = &active
	}

	rows, total, err := h.Users.List(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]userResp, 0, len(rows))
	for _, u := range rows {
		out = append(out, toUserResp(u))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"users":     out,
		"total":     total,
		"page":      f.Page,
		"page_size": f.PageSize,
	})
}

// AdminGet handles GET /admin/users/:id.
func (h *UserHandler) AdminGet(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	u, err := h.Users.GetByID(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// SetActive handles PATCH /admin/users/:id/active.  Deactivating an
// account also revokes its refresh tokens, so open sessions die as
// soon as the access token expires.
func (h *UserHandler) SetActive(c echo.Context) error {
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

	ctx := c.Request().Context()
	if err := h.Users.SetActive(ctx, id, *req.IsActive); err != nil {
		return respondError(c, err)
	}
	if !*req.IsActive {
		if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke sessions failed"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "is_active": *req.IsActive})
}
