// Package httpapi exposes resume searches over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Nehilsa2/resume_automation/search"
	"github.com/Nehilsa2/resume_automation/workflow"
)

// Runner runs one search. *workflow.Runner implements it.
type Runner interface {
	Run(ctx context.Context, f search.Filters) (*workflow.Result, error)
}

// Deps are what the handlers need.
type Deps struct {
	Runner Runner
	// MaxSessions caps concurrent searches; extra requests get 503.
	MaxSessions int64
	Log         logrus.FieldLogger
	// Now stamps health responses. Defaults to time.Now.
	Now func() time.Time
}

// NewHandler returns the routes wrapped in the middleware chain.
func NewHandler(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MaxSessions < 1 {
		d.MaxSessions = 1
	}
	log := d.Log.WithField("component", "http")

	mux := http.NewServeMux()
	sh := ScrapeHandler{Runner: d.Runner, Sessions: semaphore.NewWeighted(d.MaxSessions), Log: log}
	mux.HandleFunc("/scrape", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.Scrape,
	}))
	hh := HealthHandler{Now: d.Now}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	return Chain(mux, RequestID, Recover(log), AccessLog(log))
}

// Serve listens on addr until ctx is done, then shuts down gracefully,
// letting running searches finish for up to grace.
func Serve(ctx context.Context, addr string, h http.Handler, grace time.Duration, log logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", addr).Info("🌐 Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("🛑 Shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
