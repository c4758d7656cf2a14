package client

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/betbot/tradegate/kraken/signing"
	"github.com/betbot/tradegate/kraken/types"
	"github.com/betbot/tradegate/pkg/clock"
	"github.com/betbot/tradegate/pkg/ratelimit"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("test-secret-0123456789"))

type fakeKraken struct {
	t       *testing.T
	calls   atomic.Int32
	handler func(w http.ResponseWriter, path string, form url.Values)
}

func (f *fakeKraken) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	raw, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)

	require.Equal(f.t, http.MethodPost, r.Method)
	require.Equal(f.t, "api-key", r.Header.Get("API-Key"))
	require.Equal(f.t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
	require.True(f.t, strings.HasPrefix(string(raw), "nonce="), "nonce must lead the body: %s", raw)

	form, err := url.ParseQuery(string(raw))
	require.NoError(f.t, err)
	nonce, err := strconv.ParseInt(form.Get("nonce"), 10, 64)
	require.NoError(f.t, err)

	// 用收到的原始请求体重新计算签名
	body := types.NewParams()
	for _, pair := range strings.Split(string(raw), "&") {
		kv := strings.SplitN(pair, "=", 2)
		k, _ := url.QueryUnescape(kv[0])
		v, _ := url.QueryUnescape(kv[1])
		body.Set(k, v)
	}
	want, err := signing.BuildKrakenSignature(r.URL.Path, body, testSecret, nonce)
	require.NoError(f.t, err)
	require.Equal(f.t, want, r.Header.Get("API-Sign"))

	f.handler(w, r.URL.Path, form)
}

func newTestClient(t *testing.T, h func(w http.ResponseWriter, path string, form url.Values)) (*Client, *fakeKraken) {
	t.Helper()
	fk := &fakeKraken{t: t, handler: h}
	srv := httptest.NewServer(fk)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL: srv.URL,
		Creds:   types.ApiKeyCreds{Key: "api-key", Secret: testSecret},
		Timeout: 2 * time.Second,
		Clock:   clock.NewFake(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	return c, fk
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewClient_ConfigurationErrors(t *testing.T) {
	_, err := NewClient(Config{Creds: types.ApiKeyCreds{Key: "k", Secret: "***"}})
	var cfgErr *signing.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewClient(Config{Creds: types.ApiKeyCreds{Secret: testSecret}})
	require.ErrorAs(t, err, &cfgErr)
}

func TestGetBalance(t *testing.T) {
	c, fk := newTestClient(t, func(w http.ResponseWriter, path string, form url.Values) {
		require.Equal(t, EndpointBalance, path)
		writeBody(w, 200, `{"error":[],"result":{"XXRP":"30.50000000","ZUSD":"1200.0000"}}`)
	})

	got, err := c.GetBalance(context.Background(), "xrp")
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("30.5").Equal(got), "got %s", got)

	got, err = c.GetBalance(context.Background(), "ADA")
	require.NoError(t, err)
	require.True(t, got.IsZero())
	require.Equal(t, int32(2), fk.calls.Load())
}

func TestGetBalance_CustomAssetCode(t *testing.T) {
	fk := &fakeKraken{t: t, handler: func(w http.ResponseWriter, path string, form url.Values) {
		writeBody(w, 200, `{"error":[],"result":{"ADA":"7"}}`)
	}}
	srv := httptest.NewServer(fk)
	defer srv.Close()

	c, err := NewClient(Config{
		BaseURL:    srv.URL,
		Creds:      types.ApiKeyCreds{Key: "api-key", Secret: testSecret},
		AssetCodes: map[string]string{"cardano": "ADA"},
	})
	require.NoError(t, err)
	require.Equal(t, "ADA", c.AssetCode("Cardano"))

	got, err := c.GetBalance(context.Background(), "cardano")
	require.NoError(t, err)
	require.Equal(t, "7", got.String())
}

func TestGetBalance_ExchangeError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, path string, form url.Values) {
		writeBody(w, 200, `{"error":["EAPI:Invalid key"]}`)
	})

	_, err := c.GetBalance(context.Background(), "XRP")
	var exErr *types.ExchangeError
	require.ErrorAs(t, err, &exErr)
	require.Equal(t, []string{"EAPI:Invalid key"}, exErr.Messages)
}

func TestPlaceMarketOrder_Success(t *testing.T) {
	c, fk := newTestClient(t, func(w http.ResponseWriter, path string, form url.Values) {
		require.Equal(t, EndpointAddOrder, path)
		require.Equal(t, "XRP/USD", form.Get("pair"))
		require.Equal(t, "buy", form.Get("type"))
		require.Equal(t, "market", form.Get("ordertype"))
		require.Equal(t, "100", form.Get("volume"))
		require.Empty(t, form.Get("cl_ord_id"))
		writeBody(w, 200, `{"error":[],"result":{"descr":{"order":"buy 100.00000000 XRPUSD @ market"},"txid":["OUF4EM-FRGI2-MQMWZD"]}}`)
	})

	res, err := c.PlaceMarketOrder(context.Background(), types.MarketOrder{
		Pair:   "xrp/usd",
		Side:   types.SideBuy,
		Volume: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"OUF4EM-FRGI2-MQMWZD"}, res.TxIDs)
	require.Equal(t, "buy 100.00000000 XRPUSD @ market", res.Description.Order)
	require.Equal(t, int32(1), fk.calls.Load())
}

func TestPlaceMarketOrder_ClientOrderID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, path string, form url.Values) {
		require.Equal(t, "6d1b345e-2821-40e2-ad83-4ecb18a06876", form.Get("cl_ord_id"))
		writeBody(w, 200, `{"error":[],"result":{"txid":["X"]}}`)
	})

	_, err := c.PlaceMarketOrder(context.Background(), types.MarketOrder{
		Pair:          "XRP/USD",
		Side:          types.SideSell,
		Volume:        decimal.NewFromInt(1),
		ClientOrderID: "6d1b345e-2821-40e2-ad83-4ecb18a06876",
	})
	require.NoError(t, err)
}

func TestPlaceMarketOrder_ErrorPayloadWinsOverStatus(t *testing.T) {
	for _, status := range []int{200, 400, 500} {
		c, _ := newTestClient(t, func(w http.ResponseWriter, path string, form url.Values) {
			writeBody(w, status, `{"error":["EOrder:Insufficient funds"],"result":{}}`)
		})
		_, err := c.PlaceMarketOrder(context.Background(), types.MarketOrder{Pair: "XRP/USD", Side: types.SideBuy, Volume: decimal.NewFromInt(1)})
		var exErr *types.ExchangeError
		require.ErrorAs(t, err, &exErr, "status %d", status)
		require.Equal(t, []string{"EOrder:Insufficient funds"}, exErr.Messages)
	}
}

func TestPlaceMarketOrder_TransportErrors(t *testing.T) {
	t.Run("non-2xx unparseable body", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, path string, form url.Values) {
			writeBody(w, 502, `<html>Bad Gateway</html>`)
		})
		_, err := c.PlaceMarketOrder(context.Background(), types.MarketOrder{Pair: "XRP/USD", Side: types.SideBuy, Volume: decimal.NewFromInt(1)})
		var tErr *types.TransportError
		require.ErrorAs(t, err, &tErr)
		require.Equal(t, 502, tErr.StatusCode)
	})

	t.Run("timeout", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, path string, form url.Values) {
			time.Sleep(300 * time.Millisecond)
			writeBody(w, 200, `{"error":[],"result":{}}`)
		})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := c.PlaceMarketOrder(ctx, types.MarketOrder{Pair: "XRP/USD", Side: types.SideBuy, Volume: decimal.NewFromInt(1)})
		var tErr *types.TransportError
		require.ErrorAs(t, err, &tErr)
		require.Equal(t, 0, tErr.StatusCode)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		c, err := NewClient(Config{BaseURL: addr, Creds: types.ApiKeyCreds{Key: "k", Secret: testSecret}})
		require.NoError(t, err)
		_, err = c.PlaceMarketOrder(context.Background(), types.MarketOrder{Pair: "XRP/USD", Side: types.SideBuy, Volume: decimal.NewFromInt(1)})
		var tErr *types.TransportError
		require.ErrorAs(t, err, &tErr)
	})
}

func TestPlaceMarketOrder_NoRetry(t *testing.T) {
	c, fk := newTestClient(t, func(w http.ResponseWriter, path string, form url.Values) {
		writeBody(w, 503, `service unavailable`)
	})
	_, err := c.PlaceMarketOrder(context.Background(), types.MarketOrder{Pair: "XRP/USD", Side: types.SideBuy, Volume: decimal.NewFromInt(1)})
	require.Error(t, err)
	require.Equal(t, int32(1), fk.calls.Load())
}

func TestPlaceMarketOrder_InvalidInputNotSent(t *testing.T) {
	c, fk := newTestClient(t, func(w http.ResponseWriter, path string, form url.Values) {
		t.Fatal("must not be called")
	})
	_, err := c.PlaceMarketOrder(context.Background(), types.MarketOrder{Pair: "XRP/USD", Side: "hold", Volume: decimal.NewFromInt(1)})
	require.True(t, errors.Is(err, types.ErrRequestNotSent))

	_, err = c.PlaceMarketOrder(context.Background(), types.MarketOrder{Pair: "XRP/USD", Side: types.SideBuy, Volume: decimal.Zero})
	require.True(t, errors.Is(err, types.ErrRequestNotSent))
	require.Equal(t, int32(0), fk.calls.Load())
}

func TestPlaceMarketOrder_RateLimitWaitIsBounded(t *testing.T) {
	fk := &fakeKraken{t: t, handler: func(w http.ResponseWriter, path string, form url.Values) {
		t.Fatal("must not be called")
	}}
	srv := httptest.NewServer(fk)
	t.Cleanup(srv.Close)

	limits := ratelimit.NewRateLimitManager()
	window := ratelimit.NewSlidingWindow(1, time.Hour)
	require.True(t, window.Allow())
	limits.SetLimiter(ratelimit.KrakenAddOrder, window)

	c, err := NewClient(Config{
		BaseURL:    srv.URL,
		Creds:      types.ApiKeyCreds{Key: "api-key", Secret: testSecret},
		Timeout:    100 * time.Millisecond,
		RateLimits: limits,
	})
	require.NoError(t, err)
	require.Equal(t, 200*time.Millisecond, c.MaxCallDuration())

	start := time.Now()
	_, err = c.PlaceMarketOrder(context.WithoutCancel(context.Background()), types.MarketOrder{Pair: "XRP/USD", Side: types.SideBuy, Volume: decimal.NewFromInt(1)})
	require.True(t, errors.Is(err, types.ErrRequestNotSent))
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, int32(0), fk.calls.Load())
}
