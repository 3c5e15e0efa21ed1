package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/upb/agentic-rag/app"
	"github.com/upb/agentic-rag/config"
	"github.com/upb/agentic-rag/internal/observability"
	"github.com/upb/agentic-rag/models"
	"github.com/upb/agentic-rag/routes"
	"github.com/upb/agentic-rag/services/pipeline"
)

const usage = `usage:
  agentic-rag [serve]          start the HTTP server
  agentic-rag run -q "<query>" run one pipeline and print the trace
  agentic-rag version`

// errRunFailed marks a one-shot run that ended in the failed state
var errRunFailed = errors.New("pipeline run failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, errRunFailed):
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "agentic-rag: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "version":
		fmt.Fprintln(out, app.Version)
		return nil
	case "serve", "run":
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}

	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	logger, err := initLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if command == "run" {
		return runOnce(ctx, cfg, logger, args, out)
	}
	return serve(ctx, cfg, logger)
}

// initLogger builds the process logger from LOG_LEVEL and LOG_FORMAT
func initLogger() (*zap.Logger, error) {
	return observability.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           routes.SetupRoutes(deps),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agentic-rag listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("version", app.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Error("dependency shutdown failed", zap.Error(err))
	}

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	logger.Info("server stopped")
	return nil
}

// runOnce executes a single pipeline run and streams the trace to out
func runOnce(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(out)
	query := fs.String("q", "", "query to run through the pipeline")
	timeout := fs.Duration("timeout", 5*time.Minute, "abort the run after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*query) == "" && fs.NArg() > 0 {
		*query = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(*query) == "" {
		return errors.New("-q is required")
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = deps.Close(closeCtx)
	}()

	if deps.Generation == nil {
		return fmt.Errorf("no LLM provider configured for %q", cfg.Providers.Active)
	}

	printer := newTracePrinter(out)
	orchestrator := pipeline.NewOrchestrator(
		deps.Generation,
		deps.Generation.Retriever(),
		deps.Store,
		pipeline.Config{MaxAuditRounds: cfg.Pipeline.MaxAuditRounds},
		logger.Named("pipeline"),
		printer,
		pipeline.NewBlockingAuditObserver(deps.Audit, cfg.Server.ShutdownTimeout),
	)

	runCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	printer.header(*query, deps.Model)
	p, err := orchestrator.Run(runCtx, *query)
	if err != nil {
		return err
	}
	if p.Status == models.StatusFailed {
		return errRunFailed
	}
	return nil
}
