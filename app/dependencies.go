package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/agentic-rag/config"
	"github.com/upb/agentic-rag/internal/guard"
	"github.com/upb/agentic-rag/internal/knowledge"
	"github.com/upb/agentic-rag/internal/observability"
	"github.com/upb/agentic-rag/internal/prompts"
	"github.com/upb/agentic-rag/services/audit"
	"github.com/upb/agentic-rag/services/generation"
	"github.com/upb/agentic-rag/services/pipeline"
	"github.com/upb/agentic-rag/services/providers"
	"github.com/upb/agentic-rag/services/providers/gemini"
	"github.com/upb/agentic-rag/services/providers/openai"
)

// Version is reported by the status endpoint and the CLI
var Version = "0.1.0"

// defaultModels is used when LLM_MODEL is unset
var defaultModels = map[string]string{
	config.ProviderGemini: "gemini-3-flash-preview",
	config.ProviderOpenAI: "gpt-4o-mini",
}

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Knowledge and prompts
	Catalog *prompts.Catalog
	Store   *knowledge.Store

	// Provider Registry
	ProviderRegistry *providers.Registry
	Model            string

	// Pipeline
	Generation   *generation.Service
	Orchestrator *pipeline.Orchestrator
	Audit        *audit.AuditService

	shutdownCtx context.Context
	shutdown    context.CancelFunc
	background  sync.WaitGroup
}

// NewDependencies creates and wires up all application dependencies.
// A provider that cannot be constructed leaves the pipeline unwired and the
// service not ready; invalid configuration is an error.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	shutdownCtx, shutdown := context.WithCancel(context.Background())
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		shutdownCtx: shutdownCtx,
		shutdown:    shutdown,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics(true)
	}

	if err := deps.initKnowledge(); err != nil {
		shutdown()
		return nil, fmt.Errorf("failed to load knowledge: %w", err)
	}

	if err := deps.initProviders(ctx, cfg); err != nil {
		shutdown()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initPipeline(cfg); err != nil {
		shutdown()
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.Bool("pipeline_ready", deps.Orchestrator != nil))
	return deps, nil
}

func (d *Dependencies) initKnowledge() error {
	catalog, err := prompts.NewDefaultCatalog()
	if err != nil {
		return err
	}
	store, err := knowledge.NewDefaultStore()
	if err != nil {
		return err
	}

	d.Catalog = catalog
	d.Store = store
	d.Logger.Info("knowledge loaded",
		zap.Int("documents", store.Len()),
		zap.String("catalog", catalog.Meta()))
	return nil
}

// initProviders registers the configured provider
func (d *Dependencies) initProviders(ctx context.Context, cfg *config.Config) error {
	registry := providers.NewRegistry()
	d.ProviderRegistry = registry

	var (
		provider providers.Provider
		err      error
	)
	switch cfg.Providers.Active {
	case config.ProviderGemini:
		provider, err = gemini.NewGeminiAdapter(ctx, providers.ProviderConfig{
			APIKey:  cfg.Providers.Gemini.APIKey,
			BaseURL: cfg.Providers.Gemini.BaseURL,
			Timeout: cfg.Providers.Gemini.Timeout,
		})
	case config.ProviderOpenAI:
		if cfg.Providers.OpenAI.APIKey == "" {
			err = errors.New("OPENAI_API_KEY is not set")
			break
		}
		provider = openai.NewOpenAIAdapter(providers.ProviderConfig{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			Timeout: cfg.Providers.OpenAI.Timeout,
		})
	default:
		return fmt.Errorf("unsupported LLM provider %q", cfg.Providers.Active)
	}
	if err != nil {
		d.Logger.Warn("no LLM provider configured",
			zap.String("provider", cfg.Providers.Active),
			zap.Error(err))
		return nil
	}

	model := cfg.Providers.Model
	if model == "" {
		model = defaultModels[cfg.Providers.Active]
	}
	if err := provider.ValidateModel(model); err != nil {
		return err
	}

	if err := registry.RegisterProvider(provider); err != nil {
		return err
	}
	d.Model = model
	d.Logger.Info("provider registered",
		zap.String("provider", provider.Name()),
		zap.String("model", model))
	return nil
}

func (d *Dependencies) initPipeline(cfg *config.Config) error {
	provider, err := d.ProviderRegistry.GetProvider(cfg.Providers.Active)
	if err != nil {
		// nothing registered
		return nil
	}

	safety, err := generation.ParseFallbackPolicy(cfg.Pipeline.SafetyFallback)
	if err != nil {
		return err
	}
	auditPolicy, err := generation.ParseFallbackPolicy(cfg.Pipeline.AuditFallback)
	if err != nil {
		return err
	}

	var opts []generation.Option
	if d.Metrics != nil {
		opts = append(opts, generation.WithMetrics(d.Metrics))
	}
	if cfg.Pipeline.LocalGuard {
		opts = append(opts, generation.WithGuard(guard.New(cfg.Pipeline.LocalGuardPII)))
	}

	d.Generation = generation.NewService(provider, d.Catalog, d.Store, generation.Config{
		Model:          d.Model,
		SafetyFallback: safety,
		AuditFallback:  auditPolicy,
	}, d.Logger.Named("generation"), opts...)

	d.Audit = audit.NewAuditService(audit.NewLogSink(d.Logger), d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.Workers,
	})
	if err := d.Audit.Start(); err != nil {
		return err
	}

	observers := []pipeline.Observer{pipeline.NewAuditObserver(d.Audit)}
	if d.Metrics != nil {
		observers = append(observers, pipeline.NewMetricsObserver(d.Metrics))
	}

	d.Orchestrator = pipeline.NewOrchestrator(
		d.Generation,
		d.Generation.Retriever(),
		d.Store,
		pipeline.Config{MaxAuditRounds: cfg.Pipeline.MaxAuditRounds},
		d.Logger.Named("pipeline"),
		observers...,
	)
	return nil
}

// Ready reports whether runs can be served, with per-component checks
func (d *Dependencies) Ready() (bool, map[string]string) {
	checks := map[string]string{}
	ready := true

	if d.ProviderRegistry == nil || d.ProviderRegistry.Count() == 0 {
		checks["providers"] = "none_configured"
		ready = false
	} else {
		checks["providers"] = "configured"
	}

	if d.Orchestrator == nil {
		checks["pipeline"] = "not_initialized"
		ready = false
	} else {
		checks["pipeline"] = "ready"
	}

	if d.Store == nil {
		checks["knowledge"] = "not_loaded"
		ready = false
	} else {
		checks["knowledge"] = "loaded"
	}

	switch {
	case d.Audit == nil:
		checks["audit"] = "disabled"
	case d.Audit.GetStats().Started:
		checks["audit"] = "running"
	default:
		checks["audit"] = "stopped"
		ready = false
	}

	return ready, checks
}

// Detach runs fn on its own goroutine. The context keeps ctx's values but
// not its cancellation, and is canceled when the dependencies shut down.
func (d *Dependencies) Detach(ctx context.Context, fn func(ctx context.Context)) {
	base := d.shutdownCtx
	if base == nil {
		base = context.Background()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(base, cancel)

	d.background.Add(1)
	go func() {
		defer d.background.Done()
		defer cancel()
		defer stop()
		fn(runCtx)
	}()
}

// Close cancels background runs, waits for them, and drains the audit trail
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.shutdown != nil {
		d.shutdown()
	}

	done := make(chan struct{})
	go func() {
		d.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("background runs did not finish: %w", ctx.Err()))
	}

	if d.Audit != nil {
		timeout := d.Config.Server.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if timeout <= 0 {
			timeout = 100 * time.Millisecond
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}
