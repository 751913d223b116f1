package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rentwise/portal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionClient_CreateSession(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://pay.example/s/123"})
	}))
	defer srv.Close()

	c, err := NewFunctionClient(config.CheckoutConfig{FunctionURL: srv.URL, APIKey: "k1", SuccessURL: "https://portal/ok"}, srv.Client())
	require.NoError(t, err)
	u, err := c.CreateSession(context.Background(), Request{PriceID: "price_client", UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "https://pay.example/s/123", u)
	require.Equal(t, "price_client", got.PriceID)
	require.Equal(t, "u1", got.UserID)
	require.Equal(t, "https://portal/ok", got.SuccessURL)
}

func TestFunctionClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewFunctionClient(config.CheckoutConfig{FunctionURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	_, err = c.CreateSession(context.Background(), Request{PriceID: "p"})
	require.ErrorIs(t, err, ErrInvalid)
	_, err = c.CreateSession(context.Background(), Request{PriceID: "p", UserID: "u1"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestFunctionClient_EmptyURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	c, err := NewFunctionClient(config.CheckoutConfig{FunctionURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = c.CreateSession(context.Background(), Request{PriceID: "p", UserID: "u1"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNewFunctionClient_NotConfigured(t *testing.T) {
	_, err := NewFunctionClient(config.CheckoutConfig{}, nil)
	require.ErrorIs(t, err, ErrUnavailable)
}
