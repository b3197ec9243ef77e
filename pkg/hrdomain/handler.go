package hrdomain

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/hrctl/internal/auth"
	"github.com/wisbric/hrctl/internal/db"
	"github.com/wisbric/hrctl/internal/httpserver"
	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/rbac"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// Handler exposes the tenant-scoped department/employee CRUD surface.
// Every route is mounted under the per-request tenant scope, and every
// mutation is gated by the caller's role permission on the relevant page.
type Handler struct {
	db     db.DBTX
	depts  *DepartmentStore
	emps   *EmployeeStore
	perms  *rbac.Store
	logger *slog.Logger
}

func NewHandler(dbtx db.DBTX, logger *slog.Logger) *Handler {
	return &Handler{db: dbtx, depts: NewDepartmentStore(), emps: NewEmployeeStore(), perms: rbac.NewStore(), logger: logger}
}

// Routes returns the chi.Router mounting department and employee endpoints.
// Mount it under a chain that already applied auth.Middleware and
// tenant.Middleware, so identity and tenant are on the request context.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/departments", h.handleListDepartments)
	r.Post("/departments", h.handleCreateDepartment)
	r.Put("/departments/{id}", h.handleUpdateDepartment)
	r.Get("/employees", h.handleListEmployees)
	r.Post("/employees", h.handleCreateEmployee)
	r.Get("/employees/{id}", h.handleGetEmployee)
	r.Put("/employees/{id}", h.handleUpdateEmployee)
	return r
}

func (h *Handler) scope(r *http.Request) *isolation.Scope {
	info := tenant.FromContext(r.Context())
	return isolation.New(h.db, info.ID)
}

// checkPermission enforces the role→page permission model. SuperAdmin
// identities never reach here (the operator surface is a separate router).
func (h *Handler) checkPermission(r *http.Request, scope *isolation.Scope, page string, need func(rbac.Permission) bool) error {
	ident := auth.FromContext(r.Context())
	if ident == nil {
		return rbac.RequirePermission(false)
	}
	perm, err := h.perms.Check(r.Context(), scope, ident.Role, page)
	if err != nil {
		return err
	}
	return rbac.RequirePermission(need(perm))
}

func canView(p rbac.Permission) bool   { return p.CanAccess && p.CanView }
func canCreate(p rbac.Permission) bool { return p.CanAccess && p.CanCreate }
func canEdit(p rbac.Permission) bool   { return p.CanAccess && p.CanEdit }

type createDepartmentRequest struct {
	Name string `json:"name" validate:"required,min=1,max=120"`
}

func (h *Handler) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	scope := h.scope(r)
	if err := h.checkPermission(r, scope, "/departments", canView); err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	out, err := h.depts.List(r.Context(), scope)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list departments")
		return
	}
	httpserver.Respond(w, http.StatusOK, out)
}

func (h *Handler) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	scope := h.scope(r)
	if err := h.checkPermission(r, scope, "/departments", canCreate); err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	var req createDepartmentRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	out, err := h.depts.Create(r.Context(), scope, Department{Name: req.Name})
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create department")
		return
	}
	httpserver.Respond(w, http.StatusCreated, out)
}

func (h *Handler) handleUpdateDepartment(w http.ResponseWriter, r *http.Request) {
	scope := h.scope(r)
	if err := h.checkPermission(r, scope, "/departments", canEdit); err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid department id")
		return
	}
	var req createDepartmentRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	out, err := h.depts.Update(r.Context(), scope, id, req.Name)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, out)
}

type createEmployeeRequest struct {
	EmployeeID   string     `json:"employee_id" validate:"required,min=1,max=64"`
	FullName     string     `json:"full_name" validate:"required,min=1,max=200"`
	Email        string     `json:"email" validate:"required,email"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	PositionID   *uuid.UUID `json:"position_id,omitempty"`
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	scope := h.scope(r)
	if err := h.checkPermission(r, scope, "/employees", canView); err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	out, err := h.emps.List(r.Context(), scope)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list employees")
		return
	}
	httpserver.Respond(w, http.StatusOK, out)
}

func (h *Handler) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	scope := h.scope(r)
	if err := h.checkPermission(r, scope, "/employees", canView); err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid employee id")
		return
	}
	out, err := h.emps.Get(r.Context(), scope, id)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "employee not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, out)
}

type updateEmployeeRequest struct {
	FullName     string     `json:"full_name" validate:"required,min=1,max=200"`
	Email        string     `json:"email" validate:"required,email"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	PositionID   *uuid.UUID `json:"position_id,omitempty"`
	IsActive     bool       `json:"is_active"`
}

func (h *Handler) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	scope := h.scope(r)
	if err := h.checkPermission(r, scope, "/employees", canEdit); err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid employee id")
		return
	}
	var req updateEmployeeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	out, err := h.emps.Update(r.Context(), scope, id, Employee{
		FullName:     req.FullName,
		Email:        req.Email,
		DepartmentID: req.DepartmentID,
		PositionID:   req.PositionID,
		IsActive:     req.IsActive,
	})
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, out)
}

func (h *Handler) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	scope := h.scope(r)
	if err := h.checkPermission(r, scope, "/employees", canCreate); err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	var req createEmployeeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	out, err := h.emps.Create(r.Context(), scope, Employee{
		EmployeeID:   req.EmployeeID,
		FullName:     req.FullName,
		Email:        req.Email,
		DepartmentID: req.DepartmentID,
		PositionID:   req.PositionID,
	})
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create employee")
		return
	}
	httpserver.Respond(w, http.StatusCreated, out)
}
