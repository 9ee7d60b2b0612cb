package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jekabolt/grbpwr-analytics/internal/auth/jwt"
	"github.com/jekabolt/grbpwr-analytics/internal/entity"
	gerr "github.com/jekabolt/grbpwr-analytics/internal/errors"
	"github.com/jekabolt/grbpwr-analytics/internal/form"
	"github.com/jekabolt/grbpwr-analytics/internal/ratelimit"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReports struct {
	got   *entity.ReportQuery
	stats *entity.OrdersStats
	err   error
}

func (f *fakeReports) OrdersStats(_ context.Context, q *entity.ReportQuery) (*entity.OrdersStats, error) {
	f.got = q
	return f.stats, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(cfg *Config, reports *fakeReports, db Pinger) http.Handler {
	s := New(cfg, reports, db, form.DefaultDefaults)
	s.now = func() time.Time { return testNow }
	return s.Router()
}

func get(t *testing.T, h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sampleStats() *entity.OrdersStats {
	return &entity.OrdersStats{
		Totals: entity.Totals{
			Subtotals: entity.Subtotals{
				GrossRevenue: decimal.RequireFromString("120.50"),
				OrdersCount:  3,
			},
			Segments: []entity.Segment{{ID: 1, Label: "New customer"}},
		},
		Intervals: []entity.Interval{},
		Total:     14,
		Pages:     2,
		Page:      1,
	}
}

func TestOrdersStats(t *testing.T) {
	reports := &fakeReports{stats: sampleStats()}
	h := newTestServer(&Config{}, reports, fakePinger{})

	rec := get(t, h, "/api/reports/orders/stats?interval=day&segmentby=customer_type&product_includes=3,4&after=2024-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "14", rec.Header().Get("X-WP-Total"))
	assert.Equal(t, "2", rec.Header().Get("X-WP-TotalPages"))

	require.NotNil(t, reports.got)
	assert.Equal(t, entity.GranularityDay, reports.got.Interval)
	assert.Equal(t, entity.SegmentByCustomerType, reports.got.SegmentBy)
	assert.Equal(t, []int64{3, 4}, reports.got.ProductIncludes)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), reports.got.After)
	assert.Equal(t, testNow, reports.got.Before)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	totals := body["totals"].(map[string]any)
	assert.Equal(t, 120.5, totals["gross_revenue"])
	assert.Equal(t, float64(3), totals["orders_count"])
	segments := totals["segments"].([]any)
	require.Len(t, segments, 1)
	assert.Equal(t, "New customer", segments[0].(map[string]any)["segment_label"])
}

func TestOrdersStatsErrors(t *testing.T) {
	t.Run("invalid interval", func(t *testing.T) {
		reports := &fakeReports{stats: sampleStats()}
		rec := get(t, newTestServer(&Config{}, reports, fakePinger{}), "/api/reports/orders/stats?interval=decade", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, reports.got)

		var e errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
		assert.Equal(t, "rest_invalid_param", e.Code)
	})

	t.Run("variation segmenting", func(t *testing.T) {
		reports := &fakeReports{err: gerr.ErrInvalidSegmentingVariation}
		rec := get(t, newTestServer(&Config{}, reports, fakePinger{}), "/api/reports/orders/stats?segmentby=variation", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var e errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
		assert.Equal(t, gerr.ErrInvalidSegmentingVariation.Code, e.Code)
		assert.Equal(t, gerr.ErrInvalidSegmentingVariation.Message, e.Message)
	})

	t.Run("store failure", func(t *testing.T) {
		reports := &fakeReports{err: errors.New("connection refused")}
		rec := get(t, newTestServer(&Config{}, reports, fakePinger{}), "/api/reports/orders/stats", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

func TestOrdersStatsAuth(t *testing.T) {
	cfg := &Config{JWTSecret: "secret"}
	h := newTestServer(cfg, &fakeReports{stats: sampleStats()}, fakePinger{})

	rec := get(t, h, "/api/reports/orders/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := jwt.New("secret").Issue("dashboard", time.Hour)
	require.NoError(t, err)
	rec = get(t, h, "/api/reports/orders/stats", http.Header{"Authorization": {"Bearer " + tok}})
	assert.Equal(t, http.StatusOK, rec.Code)

	// health stays public
	rec = get(t, h, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(&Config{}, &fakeReports{}, fakePinger{}), "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, newTestServer(&Config{}, &fakeReports{}, fakePinger{err: errors.New("down")}), "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORS(t *testing.T) {
	h := newTestServer(&Config{AllowedOrigins: []string{"https://admin.example.com"}}, &fakeReports{}, fakePinger{})

	rec := get(t, h, "/api/health", http.Header{"Origin": {"https://admin.example.com"}})
	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, h, "/api/health", http.Header{"Origin": {"http://localhost:3000"}})
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, h, "/api/health", http.Header{"Origin": {"https://evil.example.com"}})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(&Config{}, &fakeReports{}, fakePinger{})
	get(t, h, "/api/health", nil)

	rec := get(t, h, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "analytics_requests_total")
}

func TestOrdersStatsRateLimit(t *testing.T) {
	cfg := &Config{RateLimit: ratelimit.Config{Max: 1}}
	h := newTestServer(cfg, &fakeReports{stats: sampleStats()}, fakePinger{})

	assert.Equal(t, http.StatusOK, get(t, h, "/api/reports/orders/stats", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/api/reports/orders/stats", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/health", nil).Code)
}
