package tenant

import (
	"fmt"
	"strconv"
)

// ID is the canonical tenant identity: a stringified integer primary key.
// It is carried as a string through context, JWT claims, and HTTP headers,
// and parsed back to its integer form only at the store boundary.
type ID string

// Default is the platform/master scope used for signup and operator
// endpoints that have not yet resolved (or never resolve) a real tenant.
const Default ID = "default"

// IDFromInt64 builds the canonical ID from the underlying integer primary key.
func IDFromInt64(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

// Int64 parses the canonical ID back to its integer primary key. It fails
// for the literal Default scope, which has no row in the Tenant table.
func (id ID) Int64() (int64, error) {
	if id == Default || id == "" {
		return 0, fmt.Errorf("tenant id %q has no integer form", id)
	}
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("tenant id %q is not a valid integer: %w", id, err)
	}
	return n, nil
}

func (id ID) String() string { return string(id) }

// IsDefault reports whether id is the platform/master scope.
func (id ID) IsDefault() bool { return id == Default || id == "" }
