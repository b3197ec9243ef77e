package operator

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/hrctl/internal/audit"
	"github.com/wisbric/hrctl/internal/auth"
	"github.com/wisbric/hrctl/internal/db"
	"github.com/wisbric/hrctl/internal/httpserver"
	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/lifecycle"
	"github.com/wisbric/hrctl/pkg/tenant"
	"github.com/wisbric/hrctl/pkg/usage"
)

// Handler is the HTTP surface of C7. Every route requires RoleSuperAdmin;
// every mutating route is paired with an audit.Writer entry, mirroring the
// teacher's incident handler.
type Handler struct {
	logger    *slog.Logger
	audit     *audit.Writer
	store     *Store
	db        db.DBTX
	lifecycle *lifecycle.Manager
	scanner   *usage.Scanner
	sessions  *auth.SessionManager
	impTTL    time.Duration
}

func NewHandler(logger *slog.Logger, auditW *audit.Writer, store *Store, dbtx db.DBTX, lm *lifecycle.Manager, scanner *usage.Scanner, sessions *auth.SessionManager, impersonationTTL time.Duration) *Handler {
	return &Handler{
		logger: logger, audit: auditW, store: store, db: dbtx,
		lifecycle: lm, scanner: scanner, sessions: sessions, impTTL: impersonationTTL,
	}
}

// Routes returns the chi.Router mounting every operator endpoint, gated on
// RoleSuperAdmin.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRole(auth.RoleSuperAdmin))

	r.Get("/tenants", h.handleListTenants)
	r.Get("/dashboard", h.handleDashboard)
	r.Get("/alerts", h.handleListAlerts)
	r.Post("/alerts/{id}/mark", h.handleMarkAlert)
	r.Post("/alerts/{id}/resolve", h.handleResolveAlert)

	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Get("/", h.handleTenantDetail)
		r.Post("/impersonate", h.handleImpersonate)
		r.Post("/retry-provisioning", h.handleRetryProvisioning)
		r.Post("/suspend", h.handleForceSuspend)
		r.Post("/resume", h.handleForceResume)
		r.Post("/cancel", h.handleForceCancel)
		r.Post("/usage-rescan", h.handleTriggerUsageRescan)
		r.Get("/export", h.handleExportTenantArchive)
	})

	return r
}

func (h *Handler) handleListTenants(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	filters := TenantFilters{
		Status: r.URL.Query().Get("status"),
		Plan:   r.URL.Query().Get("plan"),
	}

	items, total, err := h.store.ListTenants(r.Context(), filters, params)
	if err != nil {
		h.logger.Error("listing tenants", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list tenants")
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

func (h *Handler) handleTenantDetail(w http.ResponseWriter, r *http.Request) {
	id := tenant.ID(chi.URLParam(r, "tenantID"))
	detail, err := h.store.TenantDetail(r.Context(), id)
	if err != nil {
		h.logger.Error("loading tenant detail", "error", err, "tenant_id", id)
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "tenant not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, detail)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	topN := 10
	dashboard, err := h.store.BuildDashboard(r.Context(), topN)
	if err != nil {
		h.logger.Error("building operator dashboard", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to build dashboard")
		return
	}
	httpserver.Respond(w, http.StatusOK, dashboard)
}

// impersonateRequest is the request body for handleImpersonate.
type impersonateRequest struct {
	TargetRole string `json:"target_role"` // role the impersonation session assumes, default RoleAdmin
}

// impersonateResponse carries the short-lived token the operator uses to
// act as the tenant's admin.
type impersonateResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleImpersonate(w http.ResponseWriter, r *http.Request) {
	id := tenant.ID(chi.URLParam(r, "tenantID"))
	operatorIdentity := auth.FromContext(r.Context())
	if operatorIdentity == nil || operatorIdentity.UserID == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "operator identity missing a user id")
		return
	}

	var req impersonateRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // body is optional
	role := req.TargetRole
	if role == "" || !auth.IsValidRole(role) {
		role = auth.RoleAdmin
	}

	claims := auth.SessionClaims{
		Subject:        operatorIdentity.Subject,
		Email:          operatorIdentity.Email,
		Role:           role,
		TenantID:       id.String(),
		UserID:         operatorIdentity.UserID.String(),
		Method:         auth.MethodImpersonation,
		ImpersonatorID: operatorIdentity.UserID.String(),
	}

	token, err := h.sessions.IssueShortLivedToken(claims, h.impTTL)
	if err != nil {
		h.logger.Error("issuing impersonation token", "error", err, "tenant_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to issue impersonation token")
		return
	}

	detail, _ := json.Marshal(map[string]string{"target_tenant": id.String(), "target_role": role})
	h.audit.LogFromRequest(r, "impersonate", "tenant", id.String(), detail)

	httpserver.Respond(w, http.StatusOK, impersonateResponse{Token: token, ExpiresAt: time.Now().Add(h.impTTL)})
}

func (h *Handler) handleRetryProvisioning(w http.ResponseWriter, r *http.Request) {
	id := tenant.ID(chi.URLParam(r, "tenantID"))
	if err := h.lifecycle.RetryProvisioning(r.Context(), id); err != nil {
		h.logger.Error("retrying provisioning", "error", err, "tenant_id", id)
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	h.audit.LogFromRequest(r, "retry_provisioning", "tenant", id.String(), nil)
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "retried"})
}

func (h *Handler) handleForceSuspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id tenant.ID, reason, by string) error {
		return h.lifecycle.Suspend(r.Context(), id, reason, by)
	}, "force_suspend")
}

func (h *Handler) handleForceResume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id tenant.ID, reason, by string) error {
		return h.lifecycle.Resume(r.Context(), id, reason, by)
	}, "force_resume")
}

func (h *Handler) handleForceCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id tenant.ID, reason, by string) error {
		return h.lifecycle.Cancel(r.Context(), id, reason, by)
	}, "force_cancel")
}

// transitionRequest carries the operator-supplied justification for a
// housekeeping lifecycle override.
type transitionRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(id tenant.ID, reason, by string) error, action string) {
	id := tenant.ID(chi.URLParam(r, "tenantID"))
	var req transitionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "operator override"
	}

	by := "operator"
	if identity := auth.FromContext(r.Context()); identity != nil {
		by = identity.Subject
	}

	if err := apply(id, req.Reason, by); err != nil {
		h.logger.Error(action, "error", err, "tenant_id", id)
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	detail, _ := json.Marshal(map[string]string{"reason": req.Reason})
	h.audit.LogFromRequest(r, action, "tenant", id.String(), detail)
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleTriggerUsageRescan(w http.ResponseWriter, r *http.Request) {
	id := tenant.ID(chi.URLParam(r, "tenantID"))
	scope := isolation.NewOperatorScope(h.db, id)
	if err := h.scanner.EvaluateNow(r.Context(), &scope.Scope, id); err != nil {
		h.logger.Error("triggering usage rescan", "error", err, "tenant_id", id)
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	h.audit.LogFromRequest(r, "trigger_usage_rescan", "tenant", id.String(), nil)
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "rescanned"})
}

// archiveBundle is the export payload returned for a Cancelled or
// PendingDeletion tenant still inside its retention window.
type archiveBundle struct {
	Tenant       TenantDetail `json:"tenant"`
	ExportedAt   time.Time    `json:"exported_at"`
}

func (h *Handler) handleExportTenantArchive(w http.ResponseWriter, r *http.Request) {
	id := tenant.ID(chi.URLParam(r, "tenantID"))
	detail, err := h.store.TenantDetail(r.Context(), id)
	if err != nil {
		h.logger.Error("loading tenant for export", "error", err, "tenant_id", id)
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "tenant not found")
		return
	}
	if detail.Status != tenant.StatusCancelled && detail.Status != tenant.StatusPendingDeletion {
		httpserver.RespondError(w, http.StatusConflict, "conflict", "tenant archive is only retrievable for cancelled or pending-deletion tenants")
		return
	}

	h.audit.LogFromRequest(r, "export_tenant_archive", "tenant", id.String(), nil)
	httpserver.Respond(w, http.StatusOK, archiveBundle{Tenant: detail, ExportedAt: time.Now()})
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	id := tenant.ID(r.URL.Query().Get("tenant_id"))
	alerts, err := h.store.ListAlerts(r.Context(), id)
	if err != nil {
		h.logger.Error("listing alerts", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list alerts")
		return
	}
	httpserver.Respond(w, http.StatusOK, alerts)
}

func (h *Handler) handleMarkAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid alert id")
		return
	}
	if err := h.store.MarkAlert(r.Context(), id); err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	h.audit.LogFromRequest(r, "mark_alert", "alert", id.String(), nil)
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

func (h *Handler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid alert id")
		return
	}
	if err := h.store.ResolveAlert(r.Context(), id); err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	h.audit.LogFromRequest(r, "resolve_alert", "alert", id.String(), nil)
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "resolved"})
}
