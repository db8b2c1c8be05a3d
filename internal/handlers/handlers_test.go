package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/XavierBriggs/Tyche/adapters/overtime"
	"github.com/XavierBriggs/Tyche/internal/cache"
	"github.com/XavierBriggs/Tyche/internal/hub"
	"github.com/XavierBriggs/Tyche/internal/loader"
	"github.com/XavierBriggs/Tyche/internal/metrics"
	"github.com/XavierBriggs/Tyche/internal/quote"
	"github.com/XavierBriggs/Tyche/internal/registry"
	"github.com/XavierBriggs/Tyche/internal/store"
	"github.com/XavierBriggs/Tyche/networks/optimism"
	"github.com/XavierBriggs/Tyche/pkg/testutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server *httptest.Server
	vendor *httptest.Server
	hub    *hub.Hub
}

// newFixture serves the router against a fake vendor
func newFixture(t *testing.T, vendor http.HandlerFunc) *fixture {
	t.Helper()

	vendorSrv := httptest.NewServer(vendor)
	t.Cleanup(vendorSrv.Close)

	client := overtime.NewClient("test-key",
		overtime.WithBaseURL(vendorSrv.URL),
		overtime.WithRateLimit(1000, 1000),
	)

	reg := registry.NewNetworkRegistry(optimism.NetworkID)
	require.NoError(t, reg.Register(optimism.NewModule()))

	mgr := loader.NewManager(client, cache.NewService(store.NewMemoryStore(), nil))
	t.Cleanup(mgr.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.New(nil)
	go h.Run(ctx)

	handler := NewHandler(ctx, Deps{
		Vendor:      client,
		Networks:    reg,
		Loaders:     mgr,
		Store:       store.NewMemoryStore(),
		Hub:         h,
		Metrics:     metrics.New(),
		CORSOrigins: []string{"*"},
	})

	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)

	return &fixture{server: srv, vendor: vendorSrv, hub: h}
}

// defaultVendor serves markets, history and quotes like the real API
func defaultVendor(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/markets"):
			w.Write(testutil.DefaultSnapshotJSON())
		case strings.HasSuffix(r.URL.Path, "/history"):
			w.Write([]byte(`{"open":[{"id":"0x1","buyInAmount":5,"payout":9.25}]}`))
		case strings.HasSuffix(r.URL.Path, "/quote"):
			json.NewEncoder(w).Encode(testutil.NewQuoteResponse(5, 1.85))
		default:
			http.NotFound(w, r)
		}
	}
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func post(t *testing.T, url string, payload interface{}) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestGetDefaultMarkets_ForwardsBodyVerbatim(t *testing.T) {
	var path string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write(testutil.DefaultSnapshotJSON())
	})

	status, body := get(t, f.server.URL+"/api/markets")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "/networks/10/markets", path)
	assert.Equal(t, testutil.DefaultSnapshotJSON(), body)
}

func TestGetMarkets_NetworkInPath(t *testing.T) {
	var path string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{}`))
	})

	status, body := get(t, f.server.URL+"/api/markets/42161")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "/networks/42161/markets", path)
	assert.JSONEq(t, `{}`, string(body))
}

func TestGetMarkets_VendorErrorStatus(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})

	status, body := get(t, f.server.URL+"/api/markets/10")

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.JSONEq(t, `{"error":"Failed to fetch markets"}`, string(body))
}

func TestGetMarkets_NonJSONBody(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	})

	status, body := get(t, f.server.URL+"/api/markets/10")

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"error":"API error"}`, string(body))
}

func TestGetMarkets_TransportFailure(t *testing.T) {
	f := newFixture(t, defaultVendor(t))
	f.vendor.Close()

	status, body := get(t, f.server.URL+"/api/markets/10")

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"error":"API error"}`, string(body))
}

func TestGetMarkets_InvalidNetwork(t *testing.T) {
	f := newFixture(t, defaultVendor(t))

	status, _ := get(t, f.server.URL+"/api/markets/optimism")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGetProfile(t *testing.T) {
	var path string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"open":[]}`))
	})

	status, body := get(t, f.server.URL+"/api/profile/10/0xUser")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "/networks/10/users/0xUser/history", path)
	assert.JSONEq(t, `{"open":[]}`, string(body))
}

func TestGetProfile_VendorErrorStatus(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"unknown user"}`))
	})

	status, body := get(t, f.server.URL+"/api/profile/10/0xUser")

	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"Failed to fetch user profile"}`, string(body))
}

func TestGetHistory_NormalizesGroups(t *testing.T) {
	f := newFixture(t, defaultVendor(t))

	status, body := get(t, f.server.URL+"/api/v1/history/10/0xUser")
	require.Equal(t, http.StatusOK, status)

	var history map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Len(t, history["open"], 1)
	assert.NotNil(t, history["claimable"])
	assert.NotNil(t, history["closed"])
}

func TestGetMarketView(t *testing.T) {
	f := newFixture(t, defaultVendor(t))

	// Chain id 1 is resolved to the default network
	status, body := get(t, f.server.URL+"/api/v1/markets/1/view")
	require.Equal(t, http.StatusOK, status)

	var summary loader.Summary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, int64(10), summary.NetworkID)
	assert.Equal(t, loader.StateReady, summary.State)
	assert.Equal(t, loader.SourceRemote, summary.Source)
	assert.Equal(t, 2, summary.TotalMarkets)
	assert.Equal(t, []string{"Soccer"}, summary.Sports)
	require.NotEmpty(t, summary.TopMarkets)
	assert.Equal(t, "0xabc", summary.TopMarkets[0].GameID)
	require.Len(t, summary.EndingSoon, 1)
	assert.Equal(t, "0xabc", summary.EndingSoon[0].GameID)
}

func TestGetMarketView_VendorDown(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	status, body := get(t, f.server.URL+"/api/v1/markets/10/view")
	require.Equal(t, http.StatusBadGateway, status)

	var summary loader.Summary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, loader.StateError, summary.State)
	assert.Equal(t, "API request failed with status 503", summary.Error)
}

func TestRefreshMarkets(t *testing.T) {
	calls := 0
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(testutil.DefaultSnapshotJSON())
	})

	status, _ := post(t, f.server.URL+"/api/v1/markets/10/refresh", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = post(t, f.server.URL+"/api/v1/markets/10/refresh", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, calls)
}

func TestRequestQuote(t *testing.T) {
	var got map[string]interface{}
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/quote") {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(testutil.NewQuoteResponse(5, 1.85))
			return
		}
		w.Write(testutil.DefaultSnapshotJSON())
	})

	status, body := post(t, f.server.URL+"/api/v1/quote/10", QuoteBody{
		GameID:      "0xabc",
		TypeID:      0,
		Position:    1,
		BuyInAmount: 5,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var result QuoteResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "ready", string(result.Status))
	assert.Equal(t, "1.85", result.DisplayOdds)
	assert.Equal(t, "Chelsea", result.PositionLabel)

	assert.Equal(t, float64(5), got["buyInAmount"])
	legs := got["tradeData"].([]interface{})
	require.Len(t, legs, 1)
	leg := legs[0].(map[string]interface{})
	assert.Equal(t, "0xabc", leg["gameId"])
	assert.Equal(t, float64(1), leg["position"])
	assert.Equal(t, false, leg["live"])
}

func TestRequestQuote_VendorRefusal(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/quote") {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"quoteData":{"error":"Insufficient liquidity"}}`))
			return
		}
		w.Write(testutil.DefaultSnapshotJSON())
	})

	status, body := post(t, f.server.URL+"/api/v1/quote/10", QuoteBody{GameID: "0xabc", Position: 0, BuyInAmount: 50})
	require.Equal(t, http.StatusUnprocessableEntity, status)

	var result QuoteResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "Insufficient liquidity", result.Error)
}

func TestRequestQuote_AnsweredWithoutPrice(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/quote") {
			w.Write([]byte(`{"quoteData":{}}`))
			return
		}
		w.Write(testutil.DefaultSnapshotJSON())
	})

	status, body := post(t, f.server.URL+"/api/v1/quote/10", QuoteBody{GameID: "0xabc", Position: 0, BuyInAmount: 5})
	require.Equal(t, http.StatusUnprocessableEntity, status, string(body))

	var result QuoteResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, quote.UnavailableMessage, result.Error)
}

func TestQuoteRoutes_VendorDown(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	status, body := post(t, f.server.URL+"/api/v1/quote/10", QuoteBody{GameID: "0xabc", Position: 1, BuyInAmount: 5})
	require.Equal(t, http.StatusBadGateway, status, string(body))

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "API request failed with status 503", errResp.Error)

	status, body = post(t, f.server.URL+"/api/v1/lucky/10", nil)
	require.Equal(t, http.StatusBadGateway, status, string(body))
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "API request failed with status 503", errResp.Error)
}

func TestRequestQuote_Validation(t *testing.T) {
	f := newFixture(t, defaultVendor(t))

	tests := []struct {
		name   string
		body   QuoteBody
		status int
	}{
		{"amount below minimum", QuoteBody{GameID: "0xabc", BuyInAmount: 2}, http.StatusBadRequest},
		{"unknown market", QuoteBody{GameID: "0xnope", BuyInAmount: 5}, http.StatusNotFound},
		{"position out of range", QuoteBody{GameID: "0xdef", Position: 2, BuyInAmount: 5}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := post(t, f.server.URL+"/api/v1/quote/10", tt.body)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestFeelingLucky(t *testing.T) {
	f := newFixture(t, defaultVendor(t))

	status, body := post(t, f.server.URL+"/api/v1/lucky/10?amount=5", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var result QuoteResult
	require.NoError(t, json.Unmarshal(body, &result))
	// Only 0xabc matures within the hour; its best price is the draw
	assert.Equal(t, "0xabc", result.GameID)
	assert.Equal(t, 2, result.Position)
	assert.Equal(t, "Draw", result.PositionLabel)
	assert.Equal(t, 5, result.BuyInAmount)

	status, _ = post(t, f.server.URL+"/api/v1/lucky/10?amount=7", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, defaultVendor(t))

	status, body := get(t, f.server.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"healthy"`)

	get(t, f.server.URL+"/api/markets")
	assert.Eventually(t, func() bool {
		resp, err := http.Get(f.server.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), `route="/api/markets"`)
	}, time.Second, 10*time.Millisecond)
}

func TestWebSocket_ReceivesViews(t *testing.T) {
	f := newFixture(t, defaultVendor(t))

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/markets"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	f.hub.PublishView(loader.View{NetworkID: 10, State: loader.StateStaleRefreshing, Source: loader.SourceCache})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type      string         `json:"type"`
		NetworkID int64          `json:"networkId"`
		Payload   loader.Summary `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "market_view", msg.Type)
	assert.Equal(t, int64(10), msg.NetworkID)
	assert.Equal(t, loader.StateStaleRefreshing, msg.Payload.State)
}
