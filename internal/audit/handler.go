package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/hrctl/internal/httpserver"
	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	scopeFor func(r *http.Request) *isolation.Scope
	logger   *slog.Logger
}

// NewHandler creates an audit log Handler. scopeFor builds the tenant scope
// for the request (tenant-admin callers see only their own entries; an
// operator call wraps an OperatorScope instead).
func NewHandler(scopeFor func(r *http.Request) *isolation.Scope, logger *slog.Logger) *Handler {
	return &Handler{scopeFor: scopeFor, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

type logEntry struct {
	ID              uuid.UUID       `json:"id"`
	TenantID        tenant.ID       `json:"tenant_id"`
	UserID          *uuid.UUID      `json:"user_id,omitempty"`
	APIKeyID        *uuid.UUID      `json:"api_key_id,omitempty"`
	Action          string          `json:"action"`
	Resource        string          `json:"resource"`
	ResourceID      string          `json:"resource_id"`
	Detail          json.RawMessage `json:"detail,omitempty"`
	ActedAsOperator bool            `json:"acted_as_operator"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	scope := h.scopeFor(r)
	filter, args := scope.Filter(1)
	args = append(args, params.PageSize, params.Offset)

	query := fmt.Sprintf(`
		SELECT id, tenant_id, user_id, api_key_id, action, resource, resource_id,
		       detail, acted_as_operator, created_at
		FROM audit_log
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, filter, len(args)-1, len(args))
	rows, err := scope.DB.Query(r.Context(), query, args...)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}
	defer rows.Close()

	var entries []logEntry
	for rows.Next() {
		var e logEntry
		var tenantIDRaw int64
		if err := rows.Scan(&e.ID, &tenantIDRaw, &e.UserID, &e.APIKeyID, &e.Action,
			&e.Resource, &e.ResourceID, &e.Detail, &e.ActedAsOperator, &e.CreatedAt); err != nil {
			h.logger.Error("scanning audit log row", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
			return
		}
		e.TenantID = tenant.IDFromInt64(tenantIDRaw)
		entries = append(entries, e)
	}

	httpserver.Respond(w, http.StatusOK, entries)
}
