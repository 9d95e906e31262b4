// Package authz decides whether an actor may perform an action on a resource.
package authz

import (
	"github.com/noah-isme/parc-api/internal/models"
	appErrors "github.com/noah-isme/parc-api/pkg/errors"
)

// Action is a verb on the API surface.
type Action string

const (
	ActionApplicationSubmit Action = "application:submit"
	ActionApplicationReview Action = "application:review"
	ActionScheduleManage    Action = "schedule:manage"
	ActionBatchManage       Action = "batch:manage"
	ActionBatchImport       Action = "batch:import"
	ActionAccountCreate     Action = "account:create"
	ActionAccountRead       Action = "account:read"
	ActionAccountUpdate     Action = "account:update"
	ActionAccountChangeRole Action = "account:change_role"
	ActionPasswordSet       Action = "account:set_password"
	ActionTaskAssign        Action = "task:assign"
	ActionMaterialsAssign   Action = "materials:assign"
	ActionDocumentUpload    Action = "document:upload"
	ActionDocumentManage    Action = "document:manage"
)

// Actor is the caller. A nil Actor or one without ID is anonymous.
type Actor struct {
	ID    string
	Role  models.Role
	Staff bool
}

// Anonymous reports whether the caller is unauthenticated.
func (a *Actor) Anonymous() bool {
	return a == nil || a.ID == ""
}

// Elevated reports admin-equivalent privileges.
func (a *Actor) Elevated() bool {
	return !a.Anonymous() && (a.Role == models.RoleAdmin || a.Staff)
}

// Owns reports whether the resource belongs to the actor.
func (a *Actor) Owns(res Resource) bool {
	return !a.Anonymous() && res.OwnerID != "" && res.OwnerID == a.ID
}

// Resource describes what is being acted on. Zero values mean "not applicable".
type Resource struct {
	OwnerID    string
	TargetRole models.Role
}

// Effect is the outcome a matching rule produces.
type Effect int

const (
	Deny Effect = iota
	Allow
)

// Rule is one row of the matrix. Empty Actions matches every action.
type Rule struct {
	Name            string
	Actions         []Action
	When            func(actor *Actor, res Resource) bool
	Effect          Effect
	Reason          string
	Unauthenticated bool
}

func (r Rule) matches(actor *Actor, action Action, res Resource) bool {
	if len(r.Actions) > 0 {
		found := false
		for _, a := range r.Actions {
			if a == action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return r.When == nil || r.When(actor, res)
}

// Decision is the result of Authorize.
type Decision struct {
	Allowed         bool
	Rule            string
	Reason          string
	Unauthenticated bool
}

// Err converts a denial into the matching typed error.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Unauthenticated {
		return appErrors.Clone(appErrors.ErrUnauthorized, d.Reason)
	}
	return appErrors.Clone(appErrors.ErrForbidden, d.Reason)
}

// Matrix evaluates rules in order; the first match wins and no match denies.
type Matrix struct {
	rules []Rule
}

// NewMatrix builds a matrix from an ordered rule list.
func NewMatrix(rules ...Rule) *Matrix {
	return &Matrix{rules: rules}
}

// Authorize is pure and deterministic.
func (m *Matrix) Authorize(actor *Actor, action Action, res Resource) Decision {
	for _, rule := range m.rules {
		if !rule.matches(actor, action, res) {
			continue
		}
		return Decision{
			Allowed:         rule.Effect == Allow,
			Rule:            rule.Name,
			Reason:          rule.Reason,
			Unauthenticated: rule.Unauthenticated,
		}
	}
	return Decision{Rule: "default", Reason: "action not permitted"}
}
