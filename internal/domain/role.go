package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownRole is returned when a role name is outside the closed set.
var ErrUnknownRole = errors.New("unknown role")

// Role enumerates account roles. Every user has exactly one.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
	RoleDesigner Role = "DESIGNER"
	RoleSale     Role = "SALE"
	RoleStaff    Role = "STAFF"
)

type roleInfo struct {
	displayName  string
	landingRoute string
}

var roleTable = map[Role]roleInfo{
	RoleAdmin:    {displayName: "Administrator", landingRoute: "/admin"},
	RoleCustomer: {displayName: "Customer", landingRoute: "/"},
	RoleDesigner: {displayName: "Designer", landingRoute: "/designer"},
	RoleSale:     {displayName: "Sales", landingRoute: "/sale"},
	RoleStaff:    {displayName: "Manager", landingRoute: "/manager"},
}

// Roles lists every known role in a stable order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleCustomer, RoleDesigner, RoleSale, RoleStaff}
}

// ParseRole validates a role name.
func ParseRole(name string) (Role, error) {
	role := Role(name)
	if _, ok := roleTable[role]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	return role, nil
}

// Valid reports whether r belongs to the closed set.
func (r Role) Valid() bool {
	_, ok := roleTable[r]
	return ok
}

// DisplayName is the human readable label for the role.
func (r Role) DisplayName() string {
	return roleTable[r].displayName
}

// LandingRoute is the portal page a user of this role lands on after login.
func (r Role) LandingRoute() string {
	return roleTable[r].landingRoute
}

// UnmarshalJSON rejects names outside the closed set.
func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseRole(name)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleRef is the wire shape of a user's role: an object carrying the name.
type RoleRef struct {
	Name        Role   `json:"name"`
	Description string `json:"description,omitempty"`
}
