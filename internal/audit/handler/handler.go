package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"schooladmin/internal/audit/service"
	id "schooladmin/pkg/domain"
	audit "schooladmin/pkg/platform/audit"
	"schooladmin/pkg/platform/httputil"
	"schooladmin/pkg/platform/middleware/admin"
	"schooladmin/pkg/platform/middleware/auth"
	"schooladmin/pkg/requestcontext"
)

// Service defines the audit query operations the handler exposes.
type Service interface {
	List(ctx context.Context, filter audit.Filter, page audit.Page) (*service.ListResult, error)
	ListMine(ctx context.Context, filter audit.Filter, page audit.Page) (*service.ListResult, error)
	Get(ctx context.Context, recordID id.AuditRecordID) (*audit.Record, error)
	Stats(ctx context.Context, from, to *time.Time) (*service.Stats, error)
	Purge(ctx context.Context, days int) (*service.PurgeResult, error)
	Delete(ctx context.Context, recordID id.AuditRecordID) error
}

// Handler wires audit trail endpoints to the audit service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an audit handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts audit endpoints on the router. Every route requires an
// authenticated caller; all but /audit-logs/me require an elevated role.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.logger))
		r.Get("/audit-logs/me", h.HandleListMine)

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireElevated(h.logger))
			r.Get("/audit-logs", h.HandleList)
			r.Get("/audit-logs/stats", h.HandleStats)
			r.Get("/audit-logs/{id}", h.HandleGet)
			r.Delete("/audit-logs/old", h.HandlePurge)
			r.Delete("/audit-logs/{id}", h.HandleDelete)
		})
	})
}

// HandleList handles GET /audit-logs.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "list", h.service.List)
}

// HandleListMine handles GET /audit-logs/me.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "list_mine", h.service.ListMine)
}

type listFunc func(context.Context, audit.Filter, audit.Page) (*service.ListResult, error)

func (h *Handler) list(w http.ResponseWriter, r *http.Request, op string, fn listFunc) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, err := ParseListRequest(r.URL.Query())
	if err != nil {
		h.logger.WarnContext(ctx, "invalid audit query",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	res, err := fn(ctx, req.Filter, req.Page)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit listing failed",
			"request_id", requestID,
			"operation", op,
			"user_id", requestcontext.UserID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromListResult(res))
}

// HandleGet handles GET /audit-logs/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	recordID, err := ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.Get(ctx, recordID)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit record lookup failed",
			"request_id", requestID,
			"record_id", recordID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, rec)
}

// HandleStats handles GET /audit-logs/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, err := ParseStatsRequest(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	stats, err := h.service.Stats(ctx, req.From, req.To)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit statistics failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit statistics computed",
		"request_id", requestID,
		"total", stats.TotalLogs,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromStats(stats))
}

// HandlePurge handles DELETE /audit-logs/old?days=N.
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	days, err := ParsePurgeDays(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.Purge(ctx, days)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit purge failed",
			"request_id", requestID,
			"days", days,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromPurgeResult(res))
}

// HandleDelete handles DELETE /audit-logs/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	recordID, err := ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Delete(ctx, recordID); err != nil {
		h.logger.ErrorContext(ctx, "audit record delete failed",
			"request_id", requestID,
			"record_id", recordID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
