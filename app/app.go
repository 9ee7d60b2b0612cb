package app

import (
	"context"
	"log/slog"

	"github.com/jekabolt/grbpwr-analytics/config"
	httpapi "github.com/jekabolt/grbpwr-analytics/internal/api/http"
	"github.com/jekabolt/grbpwr-analytics/internal/dependency"
	"github.com/jekabolt/grbpwr-analytics/internal/reportcache"
	"github.com/jekabolt/grbpwr-analytics/internal/reports"
	"github.com/jekabolt/grbpwr-analytics/internal/store"
)

// App is the main application
type App struct {
	hs    *httpapi.Server
	db    dependency.Repository
	cache *reportcache.Cache
	c     *config.Config
	done  chan struct{}
}

// New returns a new instance of App
func New(c *config.Config) *App {
	return &App{
		c:    c,
		done: make(chan struct{}),
	}
}

// Start starts the app
func (a *App) Start(ctx context.Context) error {
	var err error
	slog.Default().InfoContext(ctx, "starting analytics service")

	a.db, err = store.New(ctx, a.c.DB)
	if err != nil {
		slog.Default().ErrorContext(ctx, "couldn't connect to mysql", slog.String("err", err.Error()))
		return err
	}

	a.cache, err = reportcache.New(ctx, &a.c.ReportCache)
	if err != nil {
		slog.Default().ErrorContext(ctx, "couldn't connect to report cache", slog.String("err", err.Error()))
		a.db.Close()
		return err
	}

	reportS := reports.New(a.db.OrdersStats(), a.cache)

	// start API server
	a.hs = httpapi.New(&a.c.HTTP, reportS, a.db, a.c.Reports.Defaults())
	if err = a.hs.Start(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "cannot start http server", slog.String("err", err.Error()))
		return err
	}

	go func() {
		<-a.hs.Done()
		a.shutdown()
	}()
	return nil
}

// Stop stops the application and waits for all services to exit
func (a *App) Stop(ctx context.Context) {
	if a.hs != nil {
		if err := a.hs.Stop(ctx); err != nil {
			slog.Default().ErrorContext(ctx, "http server shutdown failed", slog.String("err", err.Error()))
		}
		<-a.done
		return
	}
	a.shutdown()
}

func (a *App) shutdown() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Default().Error("can't close report cache", slog.String("err", err.Error()))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	close(a.done)
}

// Done returns a channel that is closed after the application has exited
func (a *App) Done() <-chan struct{} {
	return a.done
}
