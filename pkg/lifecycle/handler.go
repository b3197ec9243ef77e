package lifecycle

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/hrctl/internal/httpserver"
)

// SignupHandler exposes the public, pre-authentication entry point into the
// provisioning workflow.
type SignupHandler struct {
	manager *Manager
	logger  *slog.Logger
}

func NewSignupHandler(manager *Manager, logger *slog.Logger) *SignupHandler {
	return &SignupHandler{manager: manager, logger: logger}
}

// Routes mounts POST /signup.
func (h *SignupHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/signup", h.handleSignup)
	return r
}

type signupRequest struct {
	TenantName       string `json:"tenantName" validate:"required,min=1,max=120"`
	AdminEmail       string `json:"adminEmail" validate:"required,email"`
	IdempotencyToken string `json:"idempotencyToken" validate:"required"`
}

type signupResponse struct {
	TenantID string `json:"tenantId"`
}

// handleSignup provisions a tenant. Resubmitting the same idempotencyToken
// returns the original tenant id instead of creating a second tenant.
func (h *SignupHandler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id, err := h.manager.Provision(r.Context(), ProvisionRequest{
		Name:             req.TenantName,
		Domain:           req.TenantName,
		AdminEmail:       req.AdminEmail,
		IdempotencyToken: req.IdempotencyToken,
	})
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, signupResponse{TenantID: id.String()})
}
