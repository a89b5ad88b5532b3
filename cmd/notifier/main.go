package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	config "github.com/NordCoder/Reminderus/internal/config/notifier"
	"github.com/NordCoder/Reminderus/internal/obs"
)

func main() {
	cfgPath := flag.String("config", "config/notifier.yaml", "path to the YAML config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	l.Info("starting notifier",
		zap.String("store", cfg.Store.Driver),
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
		zap.Bool("twilio", cfg.Twilio.Enable),
		zap.Bool("kafka", cfg.Kafka.Enable),
	)

	otelCloser, err := obs.SetupOTel(rootCtx, cfg.OTEL.AsOTELConfig(cfg.App))
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	} else {
		defer func() { _ = otelCloser.Shutdown(context.Background()) }()
	}

	app, err := build(rootCtx, cfg, l)
	if err != nil {
		l.Fatal("wiring", zap.Error(err))
	}
	defer app.close()

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, app.healthChecks, l)

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           otelhttp.NewHandler(app.router, "notifier.api"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	httpErrCh := make(chan error, 1)
	go func() {
		l.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		httpErrCh <- httpSrv.ListenAndServe()
	}()

	schedErrCh := make(chan error, 1)
	go func() { schedErrCh <- app.orchestrator.Run(rootCtx) }()

	schedDone := false
	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http serve", zap.Error(err))
		}
		stop()
	case err := <-schedErrCh:
		schedDone = true
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("scheduler", zap.Error(err))
		}
		stop()
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	_ = httpSrv.Shutdown(shCtx)
	if !schedDone {
		// Run returns once the jobs in flight have finished
		select {
		case <-schedErrCh:
		case <-shCtx.Done():
			l.Warn("jobs still running at shutdown deadline")
		}
	}
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
