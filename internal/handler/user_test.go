package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

// userCtx builds an authenticated echo context around a JSON body.
func userCtx(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(7))
	return c, rec
}

func TestUpdateMeRejectsEmptyBody(t *testing.T) {
	h := &UserHandler{}
	c, rec := userCtx(http.MethodPatch, "/v1/me", `{}`)

	assert.NoError(t, h.UpdateMe(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "nothing to update")
}

func TestChangePasswordValidation(t *testing.T) {
	h := &UserHandler{}

	c, rec := userCtx(http.MethodPost, "/v1/me/password", `{"new_password":"longenough"}`)
	assert.NoError(t, h.ChangePassword(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = userCtx(http.MethodPost, "/v1/me/password", `{"current_password":"old","new_password":"short"}`)
	assert.NoError(t, h.ChangePassword(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too short")
}

func TestSetActiveRequiresFlag(t *testing.T) {
	h := &UserHandler{}
	c, rec := userCtx(http.MethodPatch, "/v1/admin/users/3/active", `{}`)
	c.SetParamNames("id")
	c.SetParamValues("3")

	assert.NoError(t, h.SetActive(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "is_active required")
}
