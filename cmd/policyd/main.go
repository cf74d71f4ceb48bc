package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	policygate "github.com/policy-gate/policy-gate"
	"github.com/policy-gate/policy-gate/pkg/metrics"
	"github.com/policy-gate/policy-gate/pkg/store"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	configFilenameFlag string
	listenFlag         string
	originFlag         string
	providerFlag       string
	verbosityTraceFlag bool
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&listenFlag, "listen", "", "Address to listen on (overrides config)")
	flag.StringVar(&originFlag, "origin", "", "Origin to proxy to (overrides config)")
	flag.StringVar(&providerFlag, "provider", "", "Store provider to use (overrides config)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

func main() {
	_ = godotenv.Load()
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})

	config, err := policygate.LoadConfig(configFilenameFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load config")
	}
	if listenFlag != "" {
		config.Listen = listenFlag
	}
	if originFlag != "" {
		config.Origin = originFlag
	}
	if providerFlag != "" {
		config.Store.Driver = providerFlag
	}
	if config.Origin == "" {
		log.Fatal().Msg("Need an origin to proxy to")
	}
	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Str("origin", config.Origin).Msg("Invalid origin URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheStore, preflightStore, cleanup, err := buildStores(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Str("driver", config.Store.Driver).Msg("Could not initialize store")
	}
	defer cleanup()

	engine := policygate.New(policygate.Config{
		CORS:           config.CORSPolicy(),
		CacheStore:     cacheStore,
		PreflightStore: preflightStore,
		Offers:         config.OfferVariants(),
		Logger:         &log.Logger,
		Metrics:        metrics.New("policygate"),
	})

	proxy := httputil.NewSingleHostReverseProxy(originURL)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/*", engine.Wrap(proxy))

	server := &http.Server{
		Addr:    config.Listen,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("listen", config.Listen).Str("origin", originURL.String()).Msg("Starting policy gate")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}

func buildStores(ctx context.Context, config policygate.FileConfig) (cache, preflight store.Store, cleanup func(), err error) {
	switch config.Store.Driver {
	case "", "memory":
		return store.NewMemStore(), store.NewMemStore(), func() {}, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(config.Store.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		// preflight verdicts stay in memory; only response metadata is
		// worth persisting across restarts
		return s, store.NewMemStore(), func() { s.Close() }, nil
	case "redis":
		r := config.Store.Redis
		s, err := store.NewRedisStore(ctx, r.Addr, r.Password, r.DB, r.Prefix)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, func() { s.Close() }, nil
	default:
		return nil, nil, nil, errors.New("unknown store driver: " + config.Store.Driver)
	}
}
