package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/deepsearch/config"
	"github.com/mohammad-safakhou/deepsearch/internal/agent/core"
	"github.com/mohammad-safakhou/deepsearch/internal/agent/telemetry"
	"github.com/mohammad-safakhou/deepsearch/provider"
	"github.com/mohammad-safakhou/deepsearch/tools/web_search"
	"github.com/mohammad-safakhou/deepsearch/tools/web_search/cache"
	"github.com/mohammad-safakhou/deepsearch/tools/web_search/cache/inmemory"
	redis_cache "github.com/mohammad-safakhou/deepsearch/tools/web_search/cache/redis"
	"github.com/mohammad-safakhou/deepsearch/utils/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Agent bundles the controller with the process-level resources it depends on.
type Agent struct {
	Controller *core.Controller
	Registry   *prometheus.Registry
	Search     web_search.Provider
	Model      string

	closers []func(context.Context) error
}

// BuildAgent wires configuration into a ready Controller: logging, tracing,
// metrics, the LLM client, the search backend and its cache.
func BuildAgent(ctx context.Context, cfg *config.Config) (*Agent, error) {
	logger.SetLevel(cfg.General.LogLevel)
	if cfg.General.Debug {
		logger.SetDebug(true)
	}
	log := logger.NewLogger("runtime")

	a := &Agent{Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := telemetry.NewMetrics(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("metrics init: %w", err)
	}

	tele, tracer, err := SetupTelemetry(ctx, cfg.Telemetry, TelemetryOptions{ServiceVersion: Version})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, tele.Shutdown)

	llm, err := provider.NewProvider(cfg.LLM, logger.NewLogger("llm"))
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	a.Model = llm.Model()

	searcher, searchProvider, err := web_search.NewWebSearcher(cfg.Search)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to create web searcher: %w", err)
	}
	a.Search = searchProvider

	opts := []web_search.RetrieverOption{web_search.WithLogger(logger.NewLogger("search"))}
	if cfg.Cache.Enabled {
		opts = append(opts, web_search.WithCache(a.buildCache(ctx, cfg.Cache, log), cfg.Cache.TTL))
	}
	retriever := web_search.NewRetriever(searcher, searchProvider, cfg.Search.MaxResults, opts...)

	ctrl, err := core.NewController(llm, retriever,
		core.WithMaxSteps(cfg.Agent.MaxSteps),
		core.WithCompletionTimeout(cfg.Agent.CompletionTimeout),
		core.WithRetrievalTimeout(cfg.Agent.RetrievalTimeout),
		core.WithParseRetries(cfg.Agent.ParseRetries),
		core.WithStrictParsing(cfg.Agent.StrictParsing),
		core.WithLogger(logger.NewLogger("agent")),
		core.WithMetrics(metrics),
		core.WithTracer(tracer),
	)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Controller = ctrl
	log.Infow("agent ready", "model", a.Model, "search", a.Search, "max_steps", cfg.Agent.MaxSteps, "version", Version)
	return a, nil
}

// buildCache prefers Redis and falls back to the in-process cache when Redis
// is not configured or unreachable.
func (a *Agent) buildCache(ctx context.Context, cfg config.CacheConfig, log *zap.SugaredLogger) cache.Cache {
	if !cfg.Redis.Enabled() {
		return inmemory.NewInMemoryCache(cfg.MaxEntries)
	}
	store := redis_cache.NewRedisCache(cfg.Redis)
	if err := store.Ping(ctx); err != nil {
		log.Warnw("redis unavailable, using in-memory search cache", "addr", cfg.Redis.Addr(), "error", err)
		_ = store.Close()
		return inmemory.NewInMemoryCache(cfg.MaxEntries)
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	return store
}

// Close releases resources in reverse order of acquisition.
func (a *Agent) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
