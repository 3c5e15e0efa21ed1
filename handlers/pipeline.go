package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/upb/agentic-rag/app"
	"github.com/upb/agentic-rag/middleware"
	"github.com/upb/agentic-rag/services"
	"github.com/upb/agentic-rag/utils"
)

// RunRequest is the body of POST /api/v1/pipeline/runs
type RunRequest struct {
	Query string `json:"query" validate:"required,notblank,max=4000"`
}

// StartRun starts a pipeline run. By default the run continues in the
// background and the initial projection is returned with 202; with
// ?wait=true the terminal projection is returned with 200.
func StartRun(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(deps, r)

		if deps.Orchestrator == nil {
			_ = utils.WriteError(w, http.StatusServiceUnavailable, "pipeline is not configured", nil)
			return
		}

		wait, err := waitParam(r)
		if err != nil {
			HandleServiceError(w, err, logger)
			return
		}

		var req RunRequest
		if err := utils.DecodeJSON(w, r, &req); err != nil {
			HandleValidationError(w, err, logger)
			return
		}
		if err := utils.ValidateStruct(&req); err != nil {
			HandleValidationError(w, err, logger)
			return
		}

		if wait {
			projection, err := deps.Orchestrator.Run(r.Context(), req.Query)
			if err != nil {
				HandleServiceError(w, conflictDetails(deps, err), logger)
				return
			}
			_ = utils.WriteOK(w, projection)
			return
		}

		run, projection, err := deps.Orchestrator.Start(req.Query)
		if err != nil {
			HandleServiceError(w, conflictDetails(deps, err), logger)
			return
		}

		deps.Detach(r.Context(), func(ctx context.Context) {
			final := run.Execute(ctx)
			logger.Debug("background run finished",
				zap.String("run_id", run.ID()),
				zap.String("status", string(final.Status)))
		})

		w.Header().Set("Location", "/api/v1/pipeline")
		_ = utils.WriteAccepted(w, projection)
	}
}

// GetPipeline returns the current projection
func GetPipeline(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Orchestrator == nil {
			_ = utils.WriteError(w, http.StatusServiceUnavailable, "pipeline is not configured", nil)
			return
		}
		_ = utils.WriteOK(w, deps.Orchestrator.Snapshot())
	}
}

func waitParam(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("wait")
	if raw == "" {
		return false, nil
	}
	wait, err := strconv.ParseBool(raw)
	if err != nil {
		return false, services.WrapError(services.ErrorTypeValidation, "wait must be a boolean", err)
	}
	return wait, nil
}

// conflictDetails attaches the active run to a run-in-progress error
func conflictDetails(deps *app.Dependencies, err error) error {
	if !errors.Is(err, services.ErrRunInProgress) {
		return err
	}
	current := deps.Orchestrator.Snapshot()
	return services.NewDomainError(services.ErrorTypeConflict, services.ErrRunInProgress.Message, err).
		WithDetail("run_id", current.RunID.String()).
		WithDetail("status", string(current.Status))
}

func requestLogger(deps *app.Dependencies, r *http.Request) *zap.Logger {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
}
