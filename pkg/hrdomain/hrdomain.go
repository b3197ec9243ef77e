// Package hrdomain holds the minimal tenant-scoped HR entities — Employee,
// Department, Position — that participate in usage counting (C6) and give
// the isolation layer (C2) something real to guard. Onboarding workflows,
// org charts, and leave approval are intentionally absent; these are
// reference entities, not a complete HRIS.
package hrdomain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// Department is a tenant-scoped organizational unit.
type Department struct {
	ID        uuid.UUID `json:"id"`
	TenantID  tenant.ID `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (d Department) GetTenantID() tenant.ID { return d.TenantID }

// Position is a tenant-scoped job title, optionally attached to a department.
type Position struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     tenant.ID  `json:"tenant_id"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	Title        string     `json:"title"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (p Position) GetTenantID() tenant.ID { return p.TenantID }

// Employee is a tenant-scoped person record, the primary unit counted by
// usage metering's employee count.
type Employee struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     tenant.ID  `json:"tenant_id"`
	EmployeeID   string     `json:"employee_id"` // external/HR-facing identifier, unique per tenant
	FullName     string     `json:"full_name"`
	Email        string     `json:"email"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	PositionID   *uuid.UUID `json:"position_id,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (e Employee) GetTenantID() tenant.ID { return e.TenantID }

// DepartmentStore provides CRUD for departments.
type DepartmentStore struct{}

func NewDepartmentStore() *DepartmentStore { return &DepartmentStore{} }

func (s *DepartmentStore) Create(ctx context.Context, scope *isolation.Scope, d Department) (Department, error) {
	_, val, err := scope.StampInsert()
	if err != nil {
		return Department{}, err
	}
	row := scope.DB.QueryRow(ctx,
		`INSERT INTO departments (tenant_id, name, created_at) VALUES ($1, $2, now()) RETURNING id, tenant_id, name, created_at`,
		val, d.Name)
	return scanDepartment(row)
}

// Get returns a single department by id, scoped to the caller's tenant.
func (s *DepartmentStore) Get(ctx context.Context, scope *isolation.Scope, id uuid.UUID) (Department, error) {
	filter, args := scope.Filter(2)
	row := scope.DB.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, tenant_id, name, created_at FROM departments WHERE id = $1 AND %s`, filter),
		append([]any{id}, args...)...)
	return scanDepartment(row)
}

// Update renames a department. It loads the row's owning tenant first
// (unfiltered) and runs it through the scope's mutation guard before writing,
// so an id belonging to another tenant is rejected as a cross-tenant access
// rather than matching zero rows in the WHERE clause and being reported as
// merely "not found".
func (s *DepartmentStore) Update(ctx context.Context, scope *isolation.Scope, id uuid.UUID, name string) (Department, error) {
	var ownerRaw int64
	if err := scope.DB.QueryRow(ctx, `SELECT tenant_id FROM departments WHERE id = $1`, id).Scan(&ownerRaw); err != nil {
		return Department{}, fmt.Errorf("department not found: %w", err)
	}
	if err := scope.Commit(ctx, Department{ID: id, TenantID: tenant.IDFromInt64(ownerRaw)}); err != nil {
		return Department{}, err
	}
	filter, args := scope.Filter(3)
	row := scope.DB.QueryRow(ctx, fmt.Sprintf(
		`UPDATE departments SET name = $1 WHERE id = $2 AND %s RETURNING id, tenant_id, name, created_at`, filter),
		append([]any{name, id}, args...)...)
	return scanDepartment(row)
}

func (s *DepartmentStore) List(ctx context.Context, scope *isolation.Scope) ([]Department, error) {
	filter, args := scope.Filter(1)
	rows, err := scope.DB.Query(ctx, fmt.Sprintf(`SELECT id, tenant_id, name, created_at FROM departments WHERE %s ORDER BY name`, filter), args...)
	if err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	defer rows.Close()
	var out []Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDepartment(row interface{ Scan(dest ...any) error }) (Department, error) {
	var d Department
	var tenantIDRaw int64
	err := row.Scan(&d.ID, &tenantIDRaw, &d.Name, &d.CreatedAt)
	d.TenantID = tenant.IDFromInt64(tenantIDRaw)
	if err != nil {
		return Department{}, fmt.Errorf("scanning department: %w", err)
	}
	return d, nil
}

// EmployeeStore provides CRUD for employees plus the count query C6 uses.
type EmployeeStore struct{}

func NewEmployeeStore() *EmployeeStore { return &EmployeeStore{} }

func (s *EmployeeStore) Create(ctx context.Context, scope *isolation.Scope, e Employee) (Employee, error) {
	_, val, err := scope.StampInsert()
	if err != nil {
		return Employee{}, err
	}
	row := scope.DB.QueryRow(ctx,
		`INSERT INTO employees (tenant_id, employee_id, full_name, email, department_id, position_id, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, true, now())
		 RETURNING id, tenant_id, employee_id, full_name, email, department_id, position_id, is_active, created_at`,
		val, e.EmployeeID, e.FullName, e.Email, e.DepartmentID, e.PositionID)
	return scanEmployee(row)
}

func (s *EmployeeStore) Get(ctx context.Context, scope *isolation.Scope, id uuid.UUID) (Employee, error) {
	filter, args := scope.Filter(2)
	row := scope.DB.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, tenant_id, employee_id, full_name, email, department_id, position_id, is_active, created_at
		 FROM employees WHERE id = $1 AND %s`, filter), append([]any{id}, args...)...)
	return scanEmployee(row)
}

// Update replaces an employee's mutable fields in place. Like
// DepartmentStore.Update, it loads the row's owning tenant (unfiltered) and
// runs it through the scope's mutation guard before writing, turning a
// cross-tenant id into a rejected mutation rather than a silent no-op.
func (s *EmployeeStore) Update(ctx context.Context, scope *isolation.Scope, id uuid.UUID, e Employee) (Employee, error) {
	var ownerRaw int64
	if err := scope.DB.QueryRow(ctx, `SELECT tenant_id FROM employees WHERE id = $1`, id).Scan(&ownerRaw); err != nil {
		return Employee{}, fmt.Errorf("employee not found: %w", err)
	}
	if err := scope.Commit(ctx, Employee{ID: id, TenantID: tenant.IDFromInt64(ownerRaw)}); err != nil {
		return Employee{}, err
	}
	filter, args := scope.Filter(7)
	row := scope.DB.QueryRow(ctx, fmt.Sprintf(
		`UPDATE employees SET full_name = $1, email = $2, department_id = $3, position_id = $4, is_active = $5
		 WHERE id = $6 AND %s
		 RETURNING id, tenant_id, employee_id, full_name, email, department_id, position_id, is_active, created_at`, filter),
		append([]any{e.FullName, e.Email, e.DepartmentID, e.PositionID, e.IsActive, id}, args...)...)
	return scanEmployee(row)
}

func (s *EmployeeStore) List(ctx context.Context, scope *isolation.Scope) ([]Employee, error) {
	filter, args := scope.Filter(1)
	rows, err := scope.DB.Query(ctx, fmt.Sprintf(
		`SELECT id, tenant_id, employee_id, full_name, email, department_id, position_id, is_active, created_at
		 FROM employees WHERE %s ORDER BY full_name`, filter), args...)
	if err != nil {
		return nil, fmt.Errorf("listing employees: %w", err)
	}
	defer rows.Close()
	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of active employees for the scope's tenant, the
// figure usage.Store seeds into Metric.EmployeeCount when it first creates a
// period's row.
func (s *EmployeeStore) Count(ctx context.Context, scope *isolation.Scope) (int, error) {
	filter, args := scope.Filter(1)
	var n int
	err := scope.DB.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM employees WHERE %s AND is_active = true`, filter), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting employees: %w", err)
	}
	return n, nil
}

func scanEmployee(row interface{ Scan(dest ...any) error }) (Employee, error) {
	var e Employee
	var tenantIDRaw int64
	err := row.Scan(&e.ID, &tenantIDRaw, &e.EmployeeID, &e.FullName, &e.Email,
		&e.DepartmentID, &e.PositionID, &e.IsActive, &e.CreatedAt)
	e.TenantID = tenant.IDFromInt64(tenantIDRaw)
	if err != nil {
		return Employee{}, fmt.Errorf("scanning employee: %w", err)
	}
	return e, nil
}
