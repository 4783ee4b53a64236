package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNotice() *Notice {
	return &Notice{
		OrderID:       "CUTIE-ABC123",
		BuyerName:     "Bubu",
		BuyerEmail:    "bubu@example.com",
		PaymentLabel:  "🎮 Gaming date",
		Note:          "extra hugs",
		Items:         []string{"Fake Fight 😤 x 2", "Vlog Time🍿 x 1"},
		TotalQuantity: 3,
		Total:         4,
		Coupons:       []string{"PRINCESS"},
		DeliveryDate:  "2026-02-14",
		DeliveryTime:  "19:00",
		CreatedAt:     time.Date(2026, 2, 14, 18, 30, 0, 0, time.UTC),
	}
}

func fullConfig(endpoint string) Config {
	return Config{
		ServiceID:     "svc_1",
		TemplateID:    "tpl_1",
		PublicKey:     "pub_1",
		PrivateKey:    "priv_1",
		NotifyAddress: "me@example.com",
		Endpoint:      endpoint,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep(context.Context, time.Duration) {}

func TestEmailJS_DryRunNeverContactsProvider(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	g := NewEmailJS(fullConfig(srv.URL), EmailJSOptions{}, quietLogger())
	var slept time.Duration
	g.sleep = func(_ context.Context, d time.Duration) { slept = d }

	res := g.Send(context.Background(), testNotice(), SendOptions{DryRun: true})

	assert.Equal(t, StatusDryRun, res.Status)
	assert.False(t, res.Warning())
	assert.Equal(t, defaultDryRunDelay, slept)
	assert.Zero(t, hits.Load())
}

func TestEmailJS_DryRunWithoutConfig(t *testing.T) {
	g := NewEmailJS(Config{}, EmailJSOptions{}, quietLogger())
	g.sleep = noSleep

	res := g.Send(context.Background(), testNotice(), SendOptions{DryRun: true})
	assert.Equal(t, StatusDryRun, res.Status)
}

func TestEmailJS_MissingConfigSkips(t *testing.T) {
	cfg := fullConfig("")
	cfg.TemplateID = ""
	cfg.PublicKey = "  "

	g := NewEmailJS(cfg, EmailJSOptions{}, quietLogger())
	res := g.Send(context.Background(), testNotice(), SendOptions{})

	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, "missing template_id, public_key", res.Reason)
	assert.True(t, res.Warning())
	assert.Nil(t, g.handle, "no client handle should be created when skipping")
}

func TestEmailJS_Sent(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	g := NewEmailJS(fullConfig(srv.URL), EmailJSOptions{}, quietLogger())
	res := g.Send(context.Background(), testNotice(), SendOptions{})

	require.Equal(t, StatusSent, res.Status)
	assert.NoError(t, res.Err)

	assert.Equal(t, "svc_1", got.ServiceID)
	assert.Equal(t, "tpl_1", got.TemplateID)
	assert.Equal(t, "pub_1", got.UserID)
	assert.Equal(t, "priv_1", got.AccessToken)
	assert.Equal(t, "me@example.com", got.TemplateParams["to_email"])
	assert.Equal(t, "CUTIE-ABC123", got.TemplateParams["order_id"])
	assert.Equal(t, "Fake Fight 😤 x 2\nVlog Time🍿 x 1", got.TemplateParams["items"])
	assert.Equal(t, "3 items", got.TemplateParams["total"])
	assert.Equal(t, "PRINCESS", got.TemplateParams["coupons"])
	assert.Equal(t, "🎮 Gaming date", got.TemplateParams["payment_method"])
	assert.Equal(t, "2026-02-14", got.TemplateParams["delivery_date"])
	assert.Equal(t, "19:00", got.TemplateParams["delivery_time"])
}

func TestEmailJS_BrowserOriginSent(t *testing.T) {
	var origin, agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin = r.Header.Get("Origin")
		agent = r.UserAgent()
	}))
	defer srv.Close()

	g := NewEmailJS(fullConfig(srv.URL), EmailJSOptions{
		BrowserTLS: true,
		Origin:     "https://cutiecart.example",
	}, quietLogger())

	res := g.Send(context.Background(), testNotice(), SendOptions{})

	require.Equal(t, StatusSent, res.Status, res.Reason)
	assert.Equal(t, "https://cutiecart.example", origin)
	assert.Contains(t, agent, "Chrome/")
}

func TestEmailJS_ProviderRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "The Public Key is invalid", http.StatusBadRequest)
	}))
	defer srv.Close()

	g := NewEmailJS(fullConfig(srv.URL), EmailJSOptions{}, quietLogger())
	res := g.Send(context.Background(), testNotice(), SendOptions{})

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "send", res.Reason)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "400")
	assert.Contains(t, res.Err.Error(), "Public Key is invalid")
}

func TestEmailJS_ProviderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	g := NewEmailJS(fullConfig(url), EmailJSOptions{SendTimeout: time.Second}, quietLogger())
	res := g.Send(context.Background(), testNotice(), SendOptions{})

	assert.Equal(t, StatusFailed, res.Status)
	assert.Error(t, res.Err)
}

func TestEmailJS_BadEndpointFailsInit(t *testing.T) {
	g := NewEmailJS(fullConfig("not a url"), EmailJSOptions{}, quietLogger())
	res := g.Send(context.Background(), testNotice(), SendOptions{})

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "client init", res.Reason)
	assert.Nil(t, g.handle, "failed init must not be cached")
}

func TestEmailJS_HandleIsReused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	g := NewEmailJS(fullConfig(srv.URL), EmailJSOptions{RateLimit: 1000, Burst: 10}, quietLogger())
	require.Equal(t, StatusSent, g.Send(context.Background(), testNotice(), SendOptions{}).Status)
	first := g.handle
	require.NotNil(t, first)

	require.Equal(t, StatusSent, g.Send(context.Background(), testNotice(), SendOptions{}).Status)
	assert.Same(t, first, g.handle)
}

func TestEmailJS_CancelledContextFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewEmailJS(fullConfig(srv.URL), EmailJSOptions{}, quietLogger())
	res := g.Send(ctx, testNotice(), SendOptions{})
	assert.Equal(t, StatusFailed, res.Status)
}

func TestEmailJS_SlowProviderHitsSendTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	g := NewEmailJS(fullConfig(srv.URL), EmailJSOptions{SendTimeout: 50 * time.Millisecond}, quietLogger())
	start := time.Now()
	res := g.Send(context.Background(), testNotice(), SendOptions{})

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "send", res.Reason)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestResultMessage(t *testing.T) {
	for _, s := range []Status{StatusSent, StatusSkipped, StatusDryRun, StatusFailed} {
		assert.NotEmpty(t, Result{Status: s}.Message(), s)
	}
	assert.Equal(t, "weird", Result{Status: "weird"}.Message())
}

func TestMock_DefaultOutcome(t *testing.T) {
	m := &Mock{}
	assert.Equal(t, StatusSent, m.Send(context.Background(), testNotice(), SendOptions{}).Status)
	assert.Equal(t, StatusDryRun, m.Send(context.Background(), testNotice(), SendOptions{DryRun: true}).Status)
	require.Len(t, m.Calls(), 2)
	assert.True(t, m.Calls()[1].Opts.DryRun)
}
