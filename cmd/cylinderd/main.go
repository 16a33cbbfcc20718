// Command cylinderd serves the cylinder lifecycle API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"cylindercore/internal/archive"
	"cylindercore/internal/cache"
	"cylindercore/internal/catalog"
	"cylindercore/internal/config"
	"cylindercore/internal/core"
	"cylindercore/internal/httpapi"
	"cylindercore/internal/logging"
)

var exitFunc = os.Exit

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cylinderd:", err)
		exitFunc(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// app holds the assembled handler and the resources it owns.
type app struct {
	handler http.Handler
	service *core.Service
	closers []io.Closer
	log     logrus.FieldLogger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.WithError(err).Warn("close resource")
		}
	}
}

// build wires storage, archive, cache, catalogue and metrics into the HTTP
// handler. On error every resource opened so far is released.
func build(ctx context.Context, cfg *config.Config, log *logrus.Logger) (_ *app, err error) {
	a := &app{log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	engine := core.NewDefaultRulesEngine()
	store, closer, err := core.OpenPersistentStore(ctx, cfg.Storage.StoreConfig(), engine)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, closer)

	objects, err := archive.Open(ctx, cfg.Archive.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	reports := archive.NewReportArchive(objects)

	kv, err := cache.Open(ctx, cfg.Cache.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.closers = append(a.closers, kv)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return nil, err
	}

	a.service = core.NewService(store,
		core.WithLogger(logging.NewAdapter(log, "core")),
		core.WithMetricsRecorder(metrics),
		core.WithCatalog(cat.Compatibility),
		core.WithAuthorizer(cat.Authorizer()),
		core.WithArchive(reports),
	)
	a.handler, err = httpapi.New(httpapi.Config{
		Service:        a.service,
		Reports:        reports,
		Cache:          kv,
		IdempotencyTTL: cfg.Cache.IdempotencyTTL,
		Log:            log,
		Registry:       reg,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimit:      cfg.RateLimit.RPS,
		RateBurst:      cfg.RateLimit.Burst,
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"storage": cfg.Storage.Driver,
		"archive": objects.Driver(),
		"cache":   cfg.Cache.Type,
		"catalog": cat.Version,
	}).Info("service assembled")
	return a, nil
}
