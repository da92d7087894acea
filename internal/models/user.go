package models

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"
)

// Role is a coarse capability group assigned to a user.
type Role string

const (
	// RoleUser can watch and rate.
	RoleUser Role = "USER"

	// RoleCritic can additionally write reviews.
	RoleCritic Role = "CRITIC"

	// RoleAdmin can manage the catalog and moderate reviews.
	RoleAdmin Role = "ADMIN"
)

// Roles is a set of roles persisted as a comma separated column.
type Roles []Role

// ParseRoles parses "USER,CRITIC" style input, ignoring blanks and case.
func ParseRoles(s string) Roles {
	var roles Roles
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		r := Role(part)
		if !roles.Has(r) {
			roles = append(roles, r)
		}
	}
	return roles
}

// Has reports whether the set contains role.
func (r Roles) Has(role Role) bool {
	return slices.Contains(r, role)
}

// String joins the roles with commas.
func (r Roles) String() string {
	parts := make([]string, len(r))
	for i, role := range r {
		parts[i] = string(role)
	}
	return strings.Join(parts, ",")
}

// Value implements driver.Valuer for database storage.
func (r Roles) Value() (driver.Value, error) {
	return r.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (r *Roles) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*r = nil
	case string:
		*r = ParseRoles(v)
	case []byte:
		*r = ParseRoles(string(v))
	default:
		return fmt.Errorf("unsupported type for Roles: %T", value)
	}
	return nil
}

// GormDataType returns the GORM data type for Roles.
func (Roles) GormDataType() string {
	return "varchar(128)"
}

// User is a viewer account. Authentication happens outside mediarr; only the
// identity and roles are stored here.
type User struct {
	BaseModel
	Username string `gorm:"size:128;not null;uniqueIndex" json:"username"`
	Roles    Roles  `gorm:"type:varchar(128);not null;default:'USER'" json:"roles"`
}

// TableName returns the table name for the User model.
func (User) TableName() string {
	return "users"
}

// Validate checks the user fields.
func (u *User) Validate() error {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return ErrUsernameRequired
	}
	if len(u.Roles) == 0 {
		u.Roles = Roles{RoleUser}
	}
	return nil
}
