// Package httpapi exposes the cylinder service over JSON/HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"cylindercore/internal/archive"
	"cylindercore/internal/cache"
	"cylindercore/internal/core"
)

// Config wires the handler to its collaborators. Service is required.
type Config struct {
	Service *core.Service
	// Reports serves archived audit reports; the report routes answer 404
	// when it is nil.
	Reports *archive.ReportArchive
	// Cache stores idempotent responses; keys are ignored when it is nil.
	Cache          cache.Cache
	IdempotencyTTL time.Duration
	Log            *logrus.Logger
	// Registry receives HTTP metrics and is served on /metrics.
	Registry    *prometheus.Registry
	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
}

type api struct {
	svc     *core.Service
	reports *archive.ReportArchive
	log     logrus.FieldLogger
}

// New builds the HTTP handler.
func New(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("httpapi: service is required")
	}
	log := cfg.Log
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics, err := newHTTPMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	entry := log.WithField("component", "httpapi")
	a := &api{svc: cfg.Service, reports: cfg.Reports, log: entry}
	idem := &idempotency{cache: cfg.Cache, ttl: ttl, log: entry}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recoverer(entry))
	r.Use(requestLogger(entry))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", HeaderRequestID, HeaderActorID, HeaderActorRoles, HeaderIdempotencyKey},
		ExposedHeaders:   []string{HeaderRequestID, HeaderReplayed},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(metrics.handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		ok(w, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identify)
		if cfg.RateLimit > 0 {
			r.Use(newRateLimiter(cfg.RateLimit, cfg.RateBurst).handler)
		}
		r.Use(idem.handler)
		a.routes(r)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		fail(w, &apiError{status: http.StatusNotFound, Code: "NOT_FOUND", Message: "no route for " + r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		fail(w, &apiError{status: http.StatusMethodNotAllowed, Code: "BAD_REQUEST", Message: r.Method + " not allowed on " + r.URL.Path})
	})
	return r, nil
}

func (a *api) routes(r chi.Router) {
	a.referenceRoutes(r)
	a.cylinderRoutes(r)
	r.Route("/loans", func(r chi.Router) {
		r.Post("/additions", a.commitAddition)
		r.Post("/removals", a.commitRemoval)
		r.Post("/transfers", a.commitTransfer)
	})
	a.auditRoutes(r)
	a.conversionRoutes(r)
	a.refillRoutes(r)
}

// decode reads a JSON request body. Unknown fields are rejected.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			fail(w, badRequest("request body is required"))
		} else {
			fail(w, badRequest("invalid request body: "+err.Error()))
		}
		return false
	}
	if dec.More() {
		fail(w, badRequest("request body must hold a single JSON value"))
		return false
	}
	return true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := mapError(err)
	if e.status >= 500 {
		a.log.WithError(err).WithField("request_id", RequestIDFromContext(r.Context())).Error("request error")
	}
	fail(w, e)
}
