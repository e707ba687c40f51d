package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.skia.org/rebaseline/gm/go/results"
	"go.skia.org/rebaseline/go/httputils"
	"go.skia.org/rebaseline/go/metrics2"
	"go.skia.org/rebaseline/go/sklog"
)

const staticPrefix = "/static/"

// loader builds a fresh Aggregator.
type loader func() (*results.Aggregator, error)

// server serves packaged results and the images under the storage root.
type server struct {
	storageRoot string
	load        loader
	agg         atomic.Pointer[results.Aggregator]
	reloads     metrics2.Counter
	failures    metrics2.Counter
}

func newServer(storageRoot string, load loader) (*server, error) {
	s := &server{
		storageRoot: storageRoot,
		load:        load,
		reloads:     metrics2.GetCounter("rebaseline_results_reloads"),
		failures:    metrics2.GetCounter("rebaseline_results_reload_failures"),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// reload swaps in a freshly loaded Aggregator. On error the current one is
// kept.
func (s *server) reload() error {
	agg, err := s.load()
	if err != nil {
		s.failures.Inc(1)
		return err
	}
	s.agg.Store(agg)
	s.reloads.Inc(1)
	return nil
}

// reloadEvery reloads results every period until ctx is done.
func (s *server) reloadEvery(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.reload(); err != nil {
				sklog.Errorf("Failed to reload results, keeping the previous ones: %s", err)
			}
		}
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/results/{type}", s.resultsHandler)
	r.Get("/healthz", httputils.HealthCheckHandler)
	r.Handle(staticPrefix+"*", http.StripPrefix(staticPrefix, http.FileServer(http.Dir(s.storageRoot))))
	return httputils.LoggingRequestResponse(r)
}

func (s *server) resultsHandler(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "type")
	packaged, err := s.agg.Load().GetPackagedResultsOfType(r.Context(), category)
	if errors.Is(err, results.ErrUnknownCategory) {
		httputils.ReportError(w, err, "Unknown result type.", http.StatusNotFound)
		return
	} else if err != nil {
		httputils.ReportError(w, err, "Failed to package results.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(packaged); err != nil {
		sklog.Errorf("Failed to write %s results: %s", category, err)
	}
}
