package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInvoice(t *testing.T) {
	var gotAuthUser, gotIdemKey string
	var gotReq InvoiceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/invoices", r.URL.Path)
		gotAuthUser, _, _ = r.BasicAuth()
		gotIdemKey = r.Header.Get("X-Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(Invoice{
			ID:         "inv_42",
			ExternalID: gotReq.ExternalID,
			Status:     "PENDING",
			InvoiceURL: "https://pay.example.com/inv_42",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_abc", 2*time.Second)
	inv, err := c.CreateInvoice(context.Background(), InvoiceRequest{
		ExternalID: "PAY-1-ABCDEF",
		Amount:     250000,
		Currency:   "IDR",
	})
	require.NoError(t, err)
	assert.Equal(t, "inv_42", inv.ID)
	assert.Equal(t, "PAY-1-ABCDEF", inv.ExternalID)
	assert.Equal(t, "https://pay.example.com/inv_42", inv.InvoiceURL)
	assert.Equal(t, "sk_test_abc", gotAuthUser)
	assert.NotEmpty(t, gotIdemKey)
	assert.Equal(t, int64(250000), gotReq.Amount)
}

func TestCreateInvoiceAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":"INVALID_CURRENCY"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_abc", 2*time.Second)
	_, err := c.CreateInvoice(context.Background(), InvoiceRequest{ExternalID: "PAY-X"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "INVALID_CURRENCY")
	assert.False(t, IsTimeout(err))
}

func TestCreateInvoiceTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_abc", 20*time.Millisecond)
	_, err := c.CreateInvoice(context.Background(), InvoiceRequest{ExternalID: "PAY-X"})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestGetInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/invoices/inv_42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Invoice{ID: "inv_42", Status: "PAID"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_abc", 2*time.Second)
	inv, err := c.GetInvoice(context.Background(), "inv_42")
	require.NoError(t, err)
	assert.Equal(t, "PAID", inv.Status)
}
