package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/render"
	gerr "github.com/jekabolt/grbpwr-analytics/internal/errors"
	"github.com/jekabolt/grbpwr-analytics/internal/form"
	"github.com/shopspring/decimal"
)

func init() {
	// metrics are rendered as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) ordersStats(w http.ResponseWriter, r *http.Request) {
	req, err := form.ParseOrdersStats(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := req.Query(s.now(), s.defaults)
	if err != nil {
		writeError(w, r, err)
		return
	}

	stats, err := s.reports.OrdersStats(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("X-WP-Total", strconv.Itoa(stats.Total))
	w.Header().Set("X-WP-TotalPages", strconv.Itoa(stats.Pages))
	writeJSON(w, r, http.StatusOK, stats)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		slog.Default().ErrorContext(r.Context(), "health check failed", slog.String("err", err.Error()))
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *gerr.ParameterError
	if errors.As(err, &perr) {
		writeJSON(w, r, perr.Status, errorResponse{Code: perr.Code, Message: perr.Message})
		return
	}
	slog.Default().ErrorContext(r.Context(), "can't build report", slog.String("err", err.Error()))
	writeJSON(w, r, http.StatusInternalServerError, errorResponse{
		Code:    "internal_error",
		Message: http.StatusText(http.StatusInternalServerError),
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
