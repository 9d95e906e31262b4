package authz

import "github.com/noah-isme/parc-api/internal/models"

// DefaultRules is the access table for the platform.
var DefaultRules = []Rule{
	{
		Name:    "public-application",
		Actions: []Action{ActionApplicationSubmit},
		Effect:  Allow,
	},
	{
		Name:            "anonymous",
		When:            func(a *Actor, _ Resource) bool { return a.Anonymous() },
		Effect:          Deny,
		Reason:          "authentication required",
		Unauthenticated: true,
	},
	{
		Name:    "task-target-employee",
		Actions: []Action{ActionTaskAssign},
		When:    func(_ *Actor, r Resource) bool { return r.TargetRole != models.RoleEmployee },
		Effect:  Deny,
		Reason:  "tasks can only be assigned to employees",
	},
	{
		Name:    "materials-target-student",
		Actions: []Action{ActionMaterialsAssign},
		When:    func(_ *Actor, r Resource) bool { return r.TargetRole != models.RoleStudent },
		Effect:  Deny,
		Reason:  "materials can only be assigned to students",
	},
	{
		Name:    "document-upload-own-profile",
		Actions: []Action{ActionDocumentUpload},
		When: func(a *Actor, r Resource) bool {
			return a.Role != models.RoleEmployee || !a.Owns(r)
		},
		Effect: Deny,
		Reason: "only employees can upload documents to their own profile",
	},
	{
		Name:    "change-role-elevated-only",
		Actions: []Action{ActionAccountChangeRole},
		When:    func(a *Actor, _ Resource) bool { return !a.Elevated() },
		Effect:  Deny,
		Reason:  "you do not have permission to change roles",
	},
	{
		Name:   "elevated",
		When:   func(a *Actor, _ Resource) bool { return a.Elevated() },
		Effect: Allow,
	},
	{
		Name:    "self-account",
		Actions: []Action{ActionAccountRead, ActionAccountUpdate, ActionPasswordSet},
		When:    func(a *Actor, r Resource) bool { return a.Owns(r) },
		Effect:  Allow,
	},
	{
		Name:    "employee-own-documents",
		Actions: []Action{ActionDocumentUpload, ActionDocumentManage},
		When:    func(a *Actor, r Resource) bool { return a.Owns(r) },
		Effect:  Allow,
	},
	{
		Name:    "employee-self-task",
		Actions: []Action{ActionTaskAssign},
		When: func(a *Actor, r Resource) bool {
			return a.Role == models.RoleEmployee && a.Owns(r)
		},
		Effect: Allow,
	},
	{
		Name:    "trainer-materials",
		Actions: []Action{ActionMaterialsAssign},
		When:    func(a *Actor, _ Resource) bool { return a.Role == models.RoleTrainer },
		Effect:  Allow,
	},
}

// Default returns a matrix over DefaultRules.
func Default() *Matrix {
	return NewMatrix(DefaultRules...)
}
