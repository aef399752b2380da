package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospitalops/shiftsolver/internal/orchestrator"
	"github.com/hospitalops/shiftsolver/internal/repository"
	"github.com/hospitalops/shiftsolver/internal/validation"
)

// Handlers holds every HTTP handler's dependencies: the orchestrator (C5)
// for submit/status/list, the catalog store for the seed operation, and
// optional health probes for the Postgres/Redis backing stores.
type Handlers struct {
	orchestrator *orchestrator.Orchestrator
	catalog      repository.CatalogStore
	dbHealth     func(ctx context.Context) error
	redisHealth  func(ctx context.Context) error
}

// NewHandlers builds a Handlers. dbHealth/redisHealth may be nil, in which
// case the corresponding health endpoint reports UP unconditionally (the
// in-memory-store / no-broker development mode).
func NewHandlers(
	o *orchestrator.Orchestrator,
	catalog repository.CatalogStore,
	dbHealth, redisHealth func(context.Context) error,
) *Handlers {
	return &Handlers{orchestrator: o, catalog: catalog, dbHealth: dbHealth, redisHealth: redisHealth}
}

// CreateRun handles the request endpoint (spec §6): validates and submits
// a new run, returning {run_id, status: "QUEUED"} on success.
func (h *Handlers) CreateRun(c echo.Context) error {
	var dto submitRequestDTO
	if err := c.Bind(&dto); err != nil {
		return RespondError(c, http.StatusBadRequest, "INVALID_BODY", err.Error())
	}

	req, err := dto.toRequest()
	if err != nil {
		return RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	}

	runID, err := h.orchestrator.Submit(c.Request().Context(), req)
	if err != nil {
		var invalid *validation.InvalidRequest
		switch {
		case errors.As(err, &invalid):
			return RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		case errors.Is(err, orchestrator.ErrQueueSaturated):
			return RespondError(c, http.StatusServiceUnavailable, "QUEUE_SATURATED", err.Error())
		default:
			return RespondError(c, http.StatusInternalServerError, "SUBMIT_FAILED", err.Error())
		}
	}

	return Respond(c, http.StatusAccepted, map[string]any{
		"run_id": runID,
		"status": "QUEUED",
	})
}

// GetRun handles the status endpoint (spec §6): polls a run and, when
// terminal and successful, returns the enriched roster and coverage
// accounting alongside it.
func (h *Handlers) GetRun(c echo.Context) error {
	id := c.Param("id")

	view, err := h.orchestrator.Status(c.Request().Context(), id)
	if err != nil {
		if repository.IsNotFound(err) {
			return RespondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
		}
		return RespondError(c, http.StatusInternalServerError, "STATUS_FAILED", err.Error())
	}

	return Respond(c, http.StatusOK, toRunResponse(view))
}

// ListRuns handles the list endpoint (spec §6): summaries ordered by
// created_at desc, never enriched.
func (h *Handlers) ListRuns(c echo.Context) error {
	summaries, err := h.orchestrator.List(c.Request().Context())
	if err != nil {
		return RespondError(c, http.StatusInternalServerError, "LIST_FAILED", err.Error())
	}
	return Respond(c, http.StatusOK, summaries)
}

// SeedCatalog handles the idempotent "load demo catalog" operation (spec
// §6): resets the catalog tables to a fixed dataset with no effect on runs.
func (h *Handlers) SeedCatalog(c echo.Context) error {
	if err := h.catalog.Seed(c.Request().Context()); err != nil {
		return RespondError(c, http.StatusInternalServerError, "SEED_FAILED", err.Error())
	}
	return Respond(c, http.StatusOK, map[string]any{"seeded": true})
}

// Health reports the process as up if it can still serve HTTP.
func (h *Handlers) Health(c echo.Context) error {
	return Respond(c, http.StatusOK, map[string]any{"status": "UP"})
}

// HealthDB reports Postgres connectivity, when the store is Postgres-backed.
func (h *Handlers) HealthDB(c echo.Context) error {
	if h.dbHealth == nil {
		return Respond(c, http.StatusOK, map[string]any{"database": "UP"})
	}
	if err := h.dbHealth(c.Request().Context()); err != nil {
		return RespondError(c, http.StatusServiceUnavailable, "DB_DOWN", err.Error())
	}
	return Respond(c, http.StatusOK, map[string]any{"database": "UP"})
}

// HealthRedis reports the asynq broker's connectivity.
func (h *Handlers) HealthRedis(c echo.Context) error {
	if h.redisHealth == nil {
		return Respond(c, http.StatusOK, map[string]any{"redis": "UP"})
	}
	if err := h.redisHealth(c.Request().Context()); err != nil {
		return RespondError(c, http.StatusServiceUnavailable, "REDIS_DOWN", err.Error())
	}
	return Respond(c, http.StatusOK, map[string]any{"redis": "UP"})
}

func toRunResponse(view orchestrator.StatusView) runResponse {
	run := view.Run
	resp := runResponse{
		RunID:          run.ID,
		Status:         run.Status,
		ObjectiveValue: run.ObjectiveValue,
		CreatedAt:      run.CreatedAt,
		CompletedAt:    run.CompletedAt,
		Logs:           run.Logs,
		Assignments:    view.Enriched,
	}

	for _, d := range view.Coverage.Details {
		resp.Coverage = append(resp.Coverage, coverageDetailDTO{
			Date:      d.Key.Date.Format(dateLayout),
			ShiftID:   d.Key.ShiftID,
			Skill:     d.Key.Skill,
			Required:  d.Required,
			Assigned:  d.Assigned,
			Shortfall: d.Shortfall,
			Status:    string(d.Status),
		})
	}

	return resp
}
