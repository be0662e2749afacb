package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Bhavesh398/prioritygate/internal/api"
	"github.com/Bhavesh398/prioritygate/internal/auth"
	"github.com/Bhavesh398/prioritygate/internal/config"
	"github.com/Bhavesh398/prioritygate/internal/gemini"
	"github.com/Bhavesh398/prioritygate/internal/obs"
	"github.com/Bhavesh398/prioritygate/internal/ratelimit"
	"github.com/Bhavesh398/prioritygate/internal/scoring"
	"github.com/Bhavesh398/prioritygate/internal/triage"
)

// meteredGenerator counts outbound call outcomes around the real client.
type meteredGenerator struct {
	gen     triage.Generator
	metrics *obs.Metrics
}

func (g meteredGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	text, err := g.gen.GenerateContent(ctx, prompt)
	switch {
	case err == nil:
		g.metrics.OutboundTotal.WithLabelValues("ok").Inc()
	case ratelimit.IsRateLimited(err):
		g.metrics.OutboundTotal.WithLabelValues("rate_limited").Inc()
	default:
		g.metrics.OutboundTotal.WithLabelValues("error").Inc()
	}
	return text, err
}

func main() {

	cfg, err := config.Load("./config.yaml")

	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := obs.NewMetrics(reg)

	limiter, err := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.Limits.RequestsPerMinute,
		RequestsPerHour:   cfg.Limits.RequestsPerHour,
		MaxRetries:        cfg.Limits.RetryCount(),
		InitialRetryDelay: cfg.Limits.InitialRetryDelay(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid rate limit configuration")
	}
	limiter.OnWait = func(wait time.Duration) {
		metrics.AdmissionWaits.Observe(wait.Seconds())
		logger.Debug().Dur("wait", wait).Msg("rate limit reached, waiting for admission")
	}
	limiter.OnRetry = func(attempt int, delay time.Duration) {
		metrics.RetriesTotal.Inc()
		logger.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("rate limited upstream, backing off")
	}

	client, err := gemini.NewClient(gemini.Options{
		APIKey:  os.Getenv(cfg.Gemini.APIKeyEnv),
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: cfg.Gemini.Timeout(),
	})
	if err != nil {
		logger.Fatal().Err(err).Str("env", cfg.Gemini.APIKeyEnv).Msg("gemini client setup failed")
	}

	scorer := scoring.New(scoring.DefaultWeights())
	svc := triage.New(meteredGenerator{gen: client, metrics: metrics}, limiter, scorer, logger)

	logger.Info().
		Int("requests_per_minute", cfg.Limits.RequestsPerMinute).
		Int("requests_per_hour", cfg.Limits.RequestsPerHour).
		Str("model", cfg.Gemini.Model).
		Msg("triage service initialized")

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("v0.1.0"))
	})

	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	api.NewHandler(svc, logger).Register(mux)

	pairs := map[string]string{} // secret -> keyID
	for _, k := range cfg.Auth.Keys {
		if k.Secret != "" && k.ID != "" {
			pairs[k.Secret] = k.ID
		}
	}
	keyring := auth.NewStatic(cfg.Auth.Header, pairs)

	skip := map[string]struct{}{
		"/health":  {},
		"/version": {},
	}
	skip[cfg.Observability.PrometheusPath] = struct{}{}

	handler := api.Chain(
		mux,
		obs.Logger(logger),
		api.BodyLimit(cfg.Server.MaxBody()),
		keyring.Middleware(skip),
		metrics.Middleware(skip),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}

	// start
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("bye")
}
