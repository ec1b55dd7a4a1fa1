package api

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gamehost/pkg/keylock"
)

// New initialises the API layer with sane defaults applied to the provided configuration.
func New(store *Store, cfg Config) (*API, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if store.Games == nil {
		return nil, errors.New("game store is required")
	}
	if store.Resolver == nil {
		return nil, errors.New("bundle resolver is required")
	}
	if store.Feedback == nil {
		return nil, errors.New("feedback log is required")
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m, err := newMetrics(cfg.Registry)
	if err != nil {
		return nil, err
	}

	return &API{
		store:   store,
		config:  cfg,
		metrics: m,
		logger:  cfg.Logger,
		locks:   keylock.New(),
	}, nil
}

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	allowed := a.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.config.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))
	r.Use(func(next http.Handler) http.Handler {
		return gzhttp.GzipHandler(next)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.config.Registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if a.config.RateLimit > 0 {
			r.Use(httprate.LimitByIP(a.config.RateLimit, time.Minute))
		}
		r.Post("/upload", a.handleUpload)
		r.Post("/reupload", a.handleReupload)
		r.Post("/delete", a.handleDelete)
		r.Post("/feedback", a.handleFeedback)
	})

	assets := &assetServer{
		games:    a.store.Games,
		resolver: a.store.Resolver,
		metrics:  a.metrics,
		logger:   a.logger,
	}
	r.Method(http.MethodGet, "/games/*", assets)
	r.Method(http.MethodHead, "/games/*", assets)

	return r, nil
}

func (a *API) handleReady(w http.ResponseWriter, _ *http.Request) {
	info, err := os.Stat(a.store.Games.Root())
	if err != nil || !info.IsDir() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("games root unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
