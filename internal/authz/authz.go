// Package authz decides which roles may perform which catalog actions.
//
// Every mutating service operation calls Check once, before validation.
// Ownership rules (only the author edits a review) are applied by the
// service on top of the capability check.
package authz

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/jmylchreest/mediarr/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Action is a capability checked before a write.
type Action string

const (
	// ActionManageCatalog covers media create, update and delete.
	ActionManageCatalog Action = "catalog:manage"

	// ActionPostRating covers rating upserts.
	ActionPostRating Action = "rating:post"

	// ActionWriteReview covers posting and editing one's own reviews.
	ActionWriteReview Action = "review:write"

	// ActionModerateReview covers deleting other users' reviews.
	ActionModerateReview Action = "review:moderate"

	// ActionRecordWatch covers playback reports.
	ActionRecordWatch Action = "watch:record"

	// ActionRefreshViews covers forcing a refresh of watch-derived views.
	ActionRefreshViews Action = "cache:refresh"
)

// Authorizer evaluates the role policy.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewAuthorizer loads the embedded model and policy.
func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("loading authz model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("creating authz enforcer: %w", err)
	}
	if err := loadPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}
	return &Authorizer{enforcer: enforcer}, nil
}

func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) != 3 {
			return fmt.Errorf("malformed policy line %q", line)
		}

		var err error
		switch parts[0] {
		case "p":
			_, err = enforcer.AddPolicy(parts[1], parts[2])
		case "g":
			_, err = enforcer.AddGroupingPolicy(parts[1], parts[2])
		default:
			err = fmt.Errorf("unknown policy type %q", parts[0])
		}
		if err != nil {
			return fmt.Errorf("loading policy line %q: %w", line, err)
		}
	}
	return nil
}

// Can reports whether any of roles grants action.
func (a *Authorizer) Can(roles models.Roles, action Action) bool {
	for _, role := range roles {
		ok, err := a.enforcer.Enforce(string(role), string(action))
		if err == nil && ok {
			return true
		}
	}
	return false
}

// Check returns models.ErrForbidden when no role grants action.
func (a *Authorizer) Check(roles models.Roles, action Action) error {
	if a.Can(roles, action) {
		return nil
	}
	return fmt.Errorf("%w: roles %q may not %s", models.ErrForbidden, roles.String(), action)
}

var defaultAuthorizer = sync.OnceValue(func() *Authorizer {
	a, err := NewAuthorizer()
	if err != nil {
		panic(err)
	}
	return a
})

// Default returns the process-wide authorizer built from the embedded policy.
func Default() *Authorizer {
	return defaultAuthorizer()
}

// Can reports whether roles grant action under the embedded policy.
func Can(roles models.Roles, action Action) bool {
	return Default().Can(roles, action)
}

// Check is Can returning models.ErrForbidden on denial.
func Check(roles models.Roles, action Action) error {
	return Default().Check(roles, action)
}
