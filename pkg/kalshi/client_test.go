package kalshi

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *rsa.PrivateKey) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	key := testKey(t)
	return NewClient(srv.URL, NewAuthFromKey("test-key", key)), key
}

func TestGetMarketsSignsExactPath(t *testing.T) {
	var gotPath, gotSig, gotTS string
	client, key := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotSig = r.Header.Get(HeaderAccessSignature)
		gotTS = r.Header.Get(HeaderAccessTimestamp)
		assert.Equal(t, "test-key", r.Header.Get(HeaderAccessKey))
		_ = json.NewEncoder(w).Encode(MarketsResponse{Markets: []Market{{Ticker: "INXD-23"}}})
	}))

	resp, err := client.GetMarkets(context.Background(), 5, "open")
	require.NoError(t, err)
	require.Len(t, resp.Markets, 1)
	assert.Equal(t, "INXD-23", resp.Markets[0].Ticker)

	assert.Equal(t, "/trade-api/v2/markets?limit=5&status=open", gotPath)
	// The signature must cover the exact path that was sent.
	verifyPSS(t, &key.PublicKey, gotTS+"GET"+gotPath, gotSig)
}

func TestNon200SurfacesStatusErrorWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid signature"}`))
	}))

	_, err := client.GetBalance(context.Background())
	require.Error(t, err)

	se, ok := AsStatusError(err)
	require.True(t, ok, "expected StatusError, got %T", err)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Contains(t, se.Body, "invalid signature")
	assert.Equal(t, int32(1), calls.Load(), "client must not retry on its own")
}

func TestGetEventsCursorPassedVerbatim(t *testing.T) {
	var rawQuery string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(EventsResponse{Cursor: ""})
	}))

	cursor := "CgoyMDI0LTAxLTAx"
	_, err := client.GetEvents(context.Background(), 20, "open", cursor)
	require.NoError(t, err)

	assert.Contains(t, rawQuery, "cursor="+cursor)
	assert.Contains(t, rawQuery, "with_nested_markets=true")
	assert.Contains(t, rawQuery, "status=open")
}

func TestCreateOrderPostsPayload(t *testing.T) {
	var body map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/trade-api/v2/portfolio/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(CreateOrderResponse{Order: Order{OrderID: "oid-1"}})
	}))

	payload := map[string]any{
		"ticker": "INXD-23", "side": "yes", "yes_price": 37, "count": 10,
		"client_order_id": "c-1",
	}
	resp, err := client.CreateOrder(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "oid-1", resp.Order.OrderID)
	assert.Equal(t, float64(37), body["yes_price"])
	assert.NotContains(t, body, "no_price")
}

func TestCancelOrderUsesDelete(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/portfolio/orders/oid-9"))
		_ = json.NewEncoder(w).Encode(CancelOrderResponse{ReducedBy: 4})
	}))

	resp, err := client.CancelOrder(context.Background(), "oid-9")
	require.NoError(t, err)
	assert.Equal(t, 4, resp.ReducedBy)
}

func TestHealthCheck(t *testing.T) {
	healthy := true
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(MarketsResponse{})
	}))

	assert.True(t, client.HealthCheck(context.Background()))
	healthy = false
	assert.False(t, client.HealthCheck(context.Background()))
}

func TestCreateOrderGroup(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-api/v2/portfolio/order_groups/create", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(40), body["contracts_limit"])
		_ = json.NewEncoder(w).Encode(CreateOrderGroupResponse{OrderGroupID: "og-7"})
	}))

	resp, err := client.CreateOrderGroup(context.Background(), 40)
	require.NoError(t, err)
	assert.Equal(t, "og-7", resp.OrderGroupID)
}

func TestBalanceDollars(t *testing.T) {
	b := BalanceResponse{Balance: 123456}
	assert.Equal(t, "1234.56", b.Dollars().StringFixed(2))
}
