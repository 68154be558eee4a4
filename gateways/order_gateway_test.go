package gateways_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kauan1020/payments-microservice/gateways"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrder_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": 42, "total_price": 100.50, "status": "RECEIVED"}`)
	}))
	defer srv.Close()

	gw := gateways.NewHTTPOrderGateway(srv.URL+"/", time.Second)
	order, err := gw.GetOrder(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), order.ID)
	require.NotNil(t, order.TotalPrice)
	assert.True(t, order.TotalPrice.Equal(decimal.RequireFromString("100.50")))
}

func TestGetOrder_MissingTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 42}`)
	}))
	defer srv.Close()

	order, err := gateways.NewHTTPOrderGateway(srv.URL, time.Second).GetOrder(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, order.TotalPrice)
}

func TestGetOrder_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := gateways.NewHTTPOrderGateway(srv.URL, time.Second).GetOrder(context.Background(), 1)
	assert.ErrorIs(t, err, gateways.ErrOrderNotFound)
}

func TestGetOrder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := gateways.NewHTTPOrderGateway(srv.URL, time.Second).GetOrder(context.Background(), 1)
	assert.ErrorIs(t, err, gateways.ErrOrderGatewayUnavailable)
}

func TestGetOrder_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"id": 1, "total_price": 1}`)
	}))
	defer srv.Close()

	_, err := gateways.NewHTTPOrderGateway(srv.URL, 20*time.Millisecond).GetOrder(context.Background(), 1)
	assert.ErrorIs(t, err, gateways.ErrOrderGatewayUnavailable)
}

func TestGetOrder_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := gateways.NewHTTPOrderGateway(url, time.Second).GetOrder(context.Background(), 1)
	assert.ErrorIs(t, err, gateways.ErrOrderGatewayUnavailable)
}

func TestGetOrder_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	_, err := gateways.NewHTTPOrderGateway(srv.URL, time.Second).GetOrder(context.Background(), 1)
	assert.ErrorIs(t, err, gateways.ErrOrderGatewayUnavailable)
}
