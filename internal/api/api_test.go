package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutaviendo/storefront/internal/analytics"
	"github.com/tutaviendo/storefront/internal/composer"
	"github.com/tutaviendo/storefront/internal/config"
	"github.com/tutaviendo/storefront/internal/kvstore"
	"github.com/tutaviendo/storefront/internal/logging"
	"github.com/tutaviendo/storefront/pkg/models"
)

const testSecret = "dashboard-secret"

var apiNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type testAPI struct {
	router *chi.Mux
	events *analytics.Store
	logs   *bytes.Buffer
}

func newTestAPI(t *testing.T, secret string, loaded bool) *testAPI {
	t.Helper()
	broken := config.DemoStore()
	broken.ID = "no-phone"
	broken.Slug = ""
	broken.WhatsAppNumber = ""

	cfg := &config.AppConfig{Stores: []models.StoreConfig{config.DemoStore(), broken}}
	events := analytics.New(analytics.Options{
		Local:    kvstore.NewMemoryStore(0),
		Logger:   logging.Nop(),
		Now:      func() time.Time { return apiNow },
		Location: time.UTC,
	})
	if loaded {
		events.LoadLog()
	}

	logs := &bytes.Buffer{}
	logger := logging.NewWriterLogger(logs, config.APIServiceName)
	h := NewHandler(cfg, events, composer.NewDispatcher("", nil, logger), logger, secret)
	return &testAPI{router: NewRouter(h), events: events, logs: logs}
}

func (a *testAPI) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func luciaOrder() map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"product_id": "alfajor", "quantity": 6},
			{"product_id": "yerba", "quantity": 1},
		},
		"customer_name":   "Lucía",
		"customer_phone":  "+54 9 11 5555-0101",
		"payment_method":  "Efectivo",
		"delivery_method": "Retiro en local",
	}
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, "", true)
	rec := a.do(http.MethodGet, "/healthz", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ready", body["analytics"])
	assert.EqualValues(t, 0, body["events"])
}

func TestHealthNotReady(t *testing.T) {
	a := newTestAPI(t, "", false)
	rec := a.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetStoreConfig(t *testing.T) {
	a := newTestAPI(t, "", true)

	for _, key := range []string{"demo-store", "almacen-demo"} {
		rec := a.do(http.MethodGet, "/api/stores/"+key+"/config", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code, key)
		store := decode[models.StoreConfig](t, rec)
		assert.Equal(t, "demo-store", store.ID)
		assert.Len(t, store.Products, 4)
	}

	rec := a.do(http.MethodGet, "/api/stores/nope/config", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordVisitDedupBySessionCookie(t *testing.T) {
	a := newTestAPI(t, "", true)

	rec := a.do(http.MethodPost, "/api/stores/demo-store/visits", nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)

	rec = a.do(http.MethodPost, "/api/stores/almacen-demo/visits", nil, map[string]string{
		"Cookie": SessionCookie + "=" + cookies[0].Value,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["recorded"])
	assert.Empty(t, rec.Result().Cookies())

	assert.Equal(t, 1, a.events.Len())
}

func TestRecordVisitNotReady(t *testing.T) {
	a := newTestAPI(t, "", false)
	rec := a.do(http.MethodPost, "/api/stores/demo-store/visits", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecordProductView(t *testing.T) {
	a := newTestAPI(t, "", true)

	rec := a.do(http.MethodPost, "/api/stores/demo-store/product-views", map[string]string{"product_id": "yerba"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	event := decode[models.AnalyticsEvent](t, rec)
	assert.Equal(t, models.EventProductView, event.Type)
	assert.Equal(t, "demo-store", event.StoreID)

	rec = a.do(http.MethodPost, "/api/stores/demo-store/product-views", map[string]string{"product_id": " "}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "product_id", decode[errorBody](t, rec).Field)

	rec = a.do(http.MethodPost, "/api/stores/demo-store/product-views", map[string]string{"product_id": "mate"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1, a.events.Len())
}

func TestCreateOrder(t *testing.T) {
	a := newTestAPI(t, "", true)

	rec := a.do(http.MethodPost, "/api/stores/demo-store/orders", luciaOrder(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[orderResponse](t, rec)
	assert.Equal(t, 9000.0, resp.Total)
	assert.True(t, strings.HasPrefix(resp.Link, "https://wa.me/5491155550000?text="), resp.Link)
	assert.Contains(t, resp.Link, "Luc%C3%ADa")
	assert.Contains(t, resp.Message, "Lucía")
	assert.Contains(t, resp.Message, "Almacén Demo")

	events := a.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventOrder, events[0].Type)
	assert.Equal(t, 9000.0, events[0].OrderValue())
}

func TestCreateOrderRedirect(t *testing.T) {
	a := newTestAPI(t, "", true)

	rec := a.do(http.MethodPost, "/api/stores/demo-store/orders?redirect=1", luciaOrder(), nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://wa.me/5491155550000?text="))
	assert.Equal(t, 1, a.events.Len())
}

func TestCreateOrderValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(map[string]any)
		field  string
	}{
		{"missing name", func(o map[string]any) { o["customer_name"] = "  " }, "customer_name"},
		{"bad phone", func(o map[string]any) { o["customer_phone"] = "call me" }, "customer_phone"},
		{"unknown payment", func(o map[string]any) { o["payment_method"] = "Bitcoin" }, "payment_method"},
		{"unknown delivery", func(o map[string]any) { o["delivery_method"] = "Drone" }, "delivery_method"},
		{"empty cart", func(o map[string]any) { o["items"] = []map[string]any{} }, "items"},
		{"zero quantity", func(o map[string]any) {
			o["items"] = []map[string]any{{"product_id": "yerba", "quantity": 0}}
		}, "items"},
		{"unknown product", func(o map[string]any) {
			o["items"] = []map[string]any{{"product_id": "yerba", "quantity": 1}, {"product_id": "mate", "quantity": 1}}
		}, "items[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t, "", true)
			order := luciaOrder()
			tt.modify(order)

			rec := a.do(http.MethodPost, "/api/stores/demo-store/orders", order, nil)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			assert.Equal(t, tt.field, decode[errorBody](t, rec).Field)
			assert.Equal(t, 0, a.events.Len())
		})
	}
}

func TestCreateOrderMalformedBody(t *testing.T) {
	a := newTestAPI(t, "", true)
	req := httptest.NewRequest(http.MethodPost, "/api/stores/demo-store/orders", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrderLinkFailure(t *testing.T) {
	a := newTestAPI(t, "", true)

	rec := a.do(http.MethodPost, "/api/stores/no-phone/orders", luciaOrder(), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, composer.ErrDispatchFailed.Error(), decode[errorBody](t, rec).Error)
	assert.Equal(t, 0, a.events.Len())
	assert.Contains(t, a.logs.String(), "Deep link construction failed")
}

func TestCreateOrderAnalyticsUnavailable(t *testing.T) {
	a := newTestAPI(t, "", false)

	rec := a.do(http.MethodPost, "/api/stores/demo-store/orders", luciaOrder(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, a.logs.String(), "Recording order failed")
}

func TestGetStats(t *testing.T) {
	a := newTestAPI(t, "", true)
	a.do(http.MethodPost, "/api/stores/demo-store/visits", nil, nil)
	a.do(http.MethodPost, "/api/stores/demo-store/product-views", map[string]string{"product_id": "alfajor"}, nil)
	a.do(http.MethodPost, "/api/stores/demo-store/orders", luciaOrder(), nil)

	rec := a.do(http.MethodGet, "/api/stores/almacen-demo/stats?range=today", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[statsResponse](t, rec)
	assert.Equal(t, "demo-store", resp.Stats.StoreID)
	assert.Equal(t, 1, resp.Stats.Visits)
	assert.Equal(t, 1, resp.Stats.Orders)
	assert.Equal(t, 9000.0, resp.Stats.Revenue)
	assert.Equal(t, 1, resp.Stats.ProductViews)
	assert.Equal(t, []string{"2026-03-10"}, resp.Daily.Days)
	assert.Equal(t, []float64{9000}, resp.Daily.Values)
	assert.NotEmpty(t, resp.TopProducts)
}

func TestGetStatsDefaultAndCustomRange(t *testing.T) {
	a := newTestAPI(t, "", true)

	rec := a.do(http.MethodGet, "/api/stores/demo-store/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[statsResponse](t, rec)
	assert.Len(t, resp.Daily.Days, 7)
	assert.Equal(t, "2026-03-04", resp.Daily.Days[0])
	assert.NotNil(t, resp.TopProducts)

	rec = a.do(http.MethodGet, "/api/stores/demo-store/stats?start=2026-03-01&end=2026-03-03", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[statsResponse](t, rec).Daily.Days, 3)
}

func TestGetStatsBadRange(t *testing.T) {
	a := newTestAPI(t, "", true)

	for _, q := range []string{"range=year", "start=2026-03-05&end=2026-03-01", "start=2026-03-01", "start=yesterday&end=today"} {
		rec := a.do(http.MethodGet, "/api/stores/demo-store/stats?"+q, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestStatsAuth(t *testing.T) {
	a := newTestAPI(t, testSecret, true)
	path := "/api/stores/demo-store/stats"

	valid, err := IssueToken(testSecret, "merchant", "", time.Hour)
	require.NoError(t, err)
	scoped, err := IssueToken(testSecret, "merchant", "demo-store", time.Hour)
	require.NoError(t, err)
	otherStore, err := IssueToken(testSecret, "merchant", "no-phone", time.Hour)
	require.NoError(t, err)
	wrongKey, err := IssueToken("other-secret", "merchant", "", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, "merchant", "", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
		{"scoped", "Bearer " + scoped, http.StatusOK},
		{"other store", "Bearer " + otherStore, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			rec := a.do(http.MethodGet, path, nil, headers)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCheckoutRoutesIgnoreAuth(t *testing.T) {
	a := newTestAPI(t, testSecret, true)

	rec := a.do(http.MethodGet, "/api/stores/demo-store/config", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodPost, "/api/stores/demo-store/orders", luciaOrder(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	_, err := IssueToken("", "merchant", "", time.Hour)
	assert.Error(t, err)
}

func TestRequestLog(t *testing.T) {
	a := newTestAPI(t, "", true)
	a.do(http.MethodGet, "/healthz", nil, nil)

	var entry models.LogEntry
	line := strings.SplitN(strings.TrimSpace(a.logs.String()), "\n", 2)[0]
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "HTTP request", entry.Message)
	assert.Equal(t, "/healthz", entry.Metadata["path"])
	assert.EqualValues(t, http.StatusOK, entry.Metadata["status"])
}
