package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/jekabolt/grbpwr-analytics/internal/auth/jwt"
	"github.com/jekabolt/grbpwr-analytics/internal/dependency"
	"github.com/jekabolt/grbpwr-analytics/internal/form"
	"github.com/jekabolt/grbpwr-analytics/internal/observability"
	"github.com/jekabolt/grbpwr-analytics/internal/ratelimit"
	"github.com/jekabolt/grbpwr-analytics/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config is the configuration for the http server
type Config struct {
	Port           string   `mapstructure:"port"`
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// JWTSecret enables bearer token verification on report routes.
	JWTSecret    string           `mapstructure:"jwt_secret"`
	WriteTimeout time.Duration    `mapstructure:"write_timeout"`
	RateLimit    ratelimit.Config `mapstructure:"rate_limit"`
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the http server
type Server struct {
	hs       *http.Server
	c        *Config
	reports  dependency.Reports
	db       Pinger
	defaults form.Defaults
	limiter  *ratelimit.Limiter
	now      func() time.Time
	done     chan struct{}
}

// New creates a new server
func New(config *Config, reports dependency.Reports, db Pinger, defaults form.Defaults) *Server {
	s := &Server{
		c:        config,
		reports:  reports,
		db:       db,
		defaults: defaults,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	if rl := config.RateLimit; rl.Max > 0 {
		if rl.Window <= 0 {
			rl.Window = time.Minute
		}
		s.limiter = ratelimit.NewLimiter(rl.Window, rl.Max)
	}
	return s
}

// Done returns a channel that is closed when the http server exits
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Router returns the API handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(log.RequestLogger(slog.Default()))
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/api/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/reports", func(r chi.Router) {
		if s.c.JWTSecret != "" {
			r.Use(jwtauth.Verifier(jwt.New(s.c.JWTSecret).JWTAuth()))
			r.Use(jwtauth.Authenticator)
		}
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Get("/orders/stats", s.ordersStats)
	})

	return r
}

func (s *Server) allowedOrigins() []string {
	origins := []string{"http://localhost:*", "https://localhost:*"}
	return append(origins, s.c.AllowedOrigins...)
}

// instrument records request count and latency per route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestCount.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		observability.RequestLatency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Start starts the server
func (s *Server) Start(ctx context.Context) error {
	listenerAddr := fmt.Sprintf("%s:%s", s.c.Address, s.c.Port)
	s.hs = &http.Server{
		Addr:              listenerAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.c.WriteTimeout,
	}

	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}

	go func() {
		defer close(s.done)
		slog.Default().InfoContext(ctx, "grbpwr-analytics listening", slog.String("addr", "http://"+listenerAddr))
		err := s.hs.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			slog.Default().InfoContext(ctx, "http server returned")
			return
		}
		slog.Default().ErrorContext(ctx, "http server exited with an error", slog.String("err", err.Error()))
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.hs == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.hs.Shutdown(ctx)
}
