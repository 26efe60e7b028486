// Package http exposes the engine's read-only views, health checks and
// Prometheus metrics over HTTP.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tubelist/internal/core"
)

// StateSource yields the latest committed snapshot.
type StateSource interface {
	Snapshot() *core.State
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	source  StateSource
	sub     *core.Subscription
	server  *http.Server
	metrics *Metrics
}

type Metrics struct {
	QueueSize       prometheus.Gauge
	DuplicatesTotal prometheus.Counter
	DequeuesTotal   prometheus.Counter
	EnqueuesTotal   prometheus.Counter
	ClearsTotal     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tubelist_queue_size",
			Help: "Current number of entries in the play queue",
		}),
		DuplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubelist_queue_duplicates_total",
			Help: "Total enqueue candidates dropped by snippet dedup",
		}),
		DequeuesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubelist_queue_dequeues_total",
			Help: "Total queue entries removed, including cascade removals",
		}),
		EnqueuesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubelist_queue_enqueues_total",
			Help: "Total entries added to the play queue",
		}),
		ClearsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubelist_queue_clears_total",
			Help: "Total full queue clears",
		}),
	}
	reg.MustRegister(m.QueueSize, m.DuplicatesTotal, m.DequeuesTotal, m.EnqueuesTotal, m.ClearsTotal)
	return m
}

// NewServer builds the HTTP surface over the given snapshot source and
// event bus. reg may be nil to use the default Prometheus registry.
func NewServer(config *core.ServerConfig, source StateSource, bus *core.Bus, logger *zap.Logger, reg prometheus.Registerer) *Server {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Server{
		config:  config,
		logger:  logger,
		source:  source,
		sub:     bus.Subscribe(core.EventQueueAdded, core.EventQueueRemoved, core.EventQueueCleared),
		metrics: newMetrics(reg),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"tubelist"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"tubelist"}`))
	})

	metricsHandler := promhttp.Handler()
	if gatherer, ok := reg.(prometheus.Gatherer); ok {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	mux.Handle("/metrics", metricsHandler)

	mux.HandleFunc("/api/playlists", s.handleSources(core.KindPlaylists))
	mux.HandleFunc("/api/videos", s.handleSources(core.KindVideos))
	mux.HandleFunc("/api/playlists/", s.handleSourceByID(core.KindPlaylists))
	mux.HandleFunc("/api/videos/", s.handleSourceByID(core.KindVideos))
	mux.HandleFunc("/api/queue", s.handleQueue)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// sourceView is the wire form of one source.
type sourceView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Items            []string `json:"items"`
	AllInPlaying     bool     `json:"allInPlaying"`
	PartialInPlaying bool     `json:"partialInPlaying"`
}

func viewOf(kind core.SourceKind, src *core.Source) sourceView {
	return sourceView{
		ID:               src.ID,
		Name:             core.DisplayNameOf(kind, src),
		Items:            src.Items,
		AllInPlaying:     src.AllInPlaying,
		PartialInPlaying: src.PartialInPlaying,
	}
}

func (s *Server) handleSources(kind core.SourceKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := s.source.Snapshot()
		sources := core.SourcesByName(snapshot, kind)
		views := make([]sourceView, 0, len(sources))
		for _, src := range sources {
			views = append(views, viewOf(kind, src))
		}
		writeJSON(w, s.logger, views)
	}
}

func (s *Server) handleSourceByID(kind core.SourceKind) http.HandlerFunc {
	prefix := "/api/playlists/"
	if kind == core.KindVideos {
		prefix = "/api/videos/"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, prefix)
		if id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}
		snapshot := s.source.Snapshot()
		src := core.SourceByID(snapshot, kind, id)
		if src == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, s.logger, viewOf(kind, src))
	}
}

// queueEntryView renders one queue position; entries whose source is gone
// come out as placeholders until the cascade removes them.
type queueEntryView struct {
	ID          string        `json:"id"`
	Schema      core.Schema   `json:"schema"`
	ForeignKey  string        `json:"foreignKey"`
	Snippet     *core.Snippet `json:"snippet,omitempty"`
	Placeholder bool          `json:"placeholder,omitempty"`
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.source.Snapshot()
	queued := core.QueueSnippets(snapshot)
	views := make([]queueEntryView, 0, len(queued))
	for _, q := range queued {
		views = append(views, queueEntryView{
			ID:          q.Ref.ID,
			Schema:      q.Ref.Schema,
			ForeignKey:  q.ForeignKey,
			Snippet:     q.Snippet,
			Placeholder: q.Snippet == nil,
		})
	}
	writeJSON(w, s.logger, views)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write response", zap.Error(err))
	}
}

// Start serves HTTP and consumes queue events for metrics until the
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		s.watchEvents(gCtx)
		return nil
	})

	return g.Wait()
}

// watchEvents tails queue events to keep the metrics current. The
// subscription is registered in NewServer, so events between construction
// and Start are counted too.
func (s *Server) watchEvents(ctx context.Context) {
	sub := s.sub
	for {
		ev, ok := sub.Next(ctx)
		if !ok {
			return
		}
		switch ev.Kind {
		case core.EventQueueAdded:
			s.metrics.EnqueuesTotal.Add(float64(len(ev.ItemIDs)))
			s.metrics.DuplicatesTotal.Add(float64(ev.Duplicates))
		case core.EventQueueRemoved:
			s.metrics.DequeuesTotal.Add(float64(len(ev.ItemIDs)))
		case core.EventQueueCleared:
			s.metrics.ClearsTotal.Inc()
		}
		s.metrics.QueueSize.Set(float64(len(s.source.Snapshot().Queue.Result)))
		sub.Ack()
	}
}
