package overtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMarkets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/networks/10/markets", r.URL.Path)
		assert.Equal(t, "test_key", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Soccer":{"100":[]}}`))
	}))
	defer server.Close()

	client := NewClient("test_key", WithBaseURL(server.URL))

	body, err := client.FetchMarkets(context.Background(), 10)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Soccer":{"100":[]}}`, string(body))
}

func TestFetchMarkets_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	client := NewClient("test_key", WithBaseURL(server.URL))

	_, err := client.FetchMarkets(context.Background(), 10)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Equal(t, "maintenance", string(httpErr.Body))
}

func TestFetchMarkets_NoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient("bad_key", WithBaseURL(server.URL), WithRetries(3))

	_, err := client.FetchMarkets(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchUserHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/networks/8453/users/0x1234/history", r.URL.Path)
		w.Write([]byte(`{"open":[],"claimable":[],"closed":[]}`))
	}))
	defer server.Close()

	client := NewClient("test_key", WithBaseURL(server.URL))

	body, err := client.FetchUserHistory(context.Background(), 8453, "0x1234")
	require.NoError(t, err)
	assert.Contains(t, string(body), "claimable")
}

func TestRequestQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/networks/10/quote", r.URL.Path)
		assert.Equal(t, "public_key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req models.QuoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 5, req.BuyInAmount)
		require.Len(t, req.TradeData, 1)
		assert.Equal(t, 1, req.TradeData[0].Position)

		w.Write([]byte(`{"quoteData":{"totalQuote":{"decimal":1.85,"normalizedImplied":0.54},"payout":{"usd":9.25}}}`))
	}))
	defer server.Close()

	client := NewClient("server_key", WithBaseURL(server.URL), WithQuoteKey("public_key"))

	resp, err := client.RequestQuote(context.Background(), 10, &models.QuoteRequest{
		BuyInAmount: 5,
		TradeData:   []models.TradeData{{GameID: "0xabc", Position: 1}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.QuoteData)
	assert.Equal(t, 1.85, resp.QuoteData.TotalQuote.Decimal)
	assert.Empty(t, resp.ErrorMessage())
}

func TestRequestQuote_VendorRefusal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Amount exceeds liquidity"}`))
	}))
	defer server.Close()

	client := NewClient("test_key", WithBaseURL(server.URL))

	resp, err := client.RequestQuote(context.Background(), 10, &models.QuoteRequest{BuyInAmount: 5})
	require.NoError(t, err)
	assert.Equal(t, "Amount exceeds liquidity", resp.ErrorMessage())
}

func TestRequestQuote_NonJSONFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	client := NewClient("test_key", WithBaseURL(server.URL))

	_, err := client.RequestQuote(context.Background(), 10, &models.QuoteRequest{BuyInAmount: 5})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
}

func TestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient("test_key", WithBaseURL(server.URL), WithTimeout(20*time.Millisecond))

	_, err := client.FetchMarkets(context.Background(), 10)
	assert.Error(t, err)
}

func TestTimeout_DoesNotModifyCallerClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	shared := &http.Client{Timeout: time.Minute}

	for _, opts := range [][]ClientOption{
		{WithHTTPClient(shared), WithTimeout(20 * time.Millisecond)},
		{WithTimeout(20 * time.Millisecond), WithHTTPClient(shared)},
	} {
		client := NewClient("test_key", append(opts, WithBaseURL(server.URL))...)

		_, err := client.FetchMarkets(context.Background(), 10)
		assert.Error(t, err)
	}

	assert.Equal(t, time.Minute, shared.Timeout)
}

func TestRateLimiterHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient("test_key", WithBaseURL(server.URL), WithRateLimit(0.001, 1))

	_, err := client.FetchMarkets(context.Background(), 10)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = client.FetchMarkets(ctx, 10)
	assert.Error(t, err)
}
