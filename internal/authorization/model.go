package authorization

// rbacModel grants an action when the subject's role (or a role it
// inherits) holds a policy for the object with that action or "*".
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && (p.act == "*" || r.act == p.act)
`

const (
	RoleOwner     = "owner"
	RoleManager   = "manager"
	RoleStaff     = "staff"
	RoleFrontDesk = "front_desk"
)

const ObjectMembership = "membership"

const (
	ActionCreate       = "create"
	ActionRead         = "read"
	ActionModifyDates  = "modify_dates"
	ActionModifyLimits = "modify_limits"
	ActionHold         = "hold"
	ActionResume       = "resume"
	ActionCancel       = "cancel"
	ActionUpgrade      = "upgrade"
	ActionTransfer     = "transfer"
	ActionReinstate    = "reinstate"
	ActionCheckout     = "checkout"
	ActionExportNotes  = "export_notes"
)

// defaultPolicies are seeded when the policy table is empty.
var defaultPolicies = [][]string{
	{RoleOwner, ObjectMembership, "*"},
	{RoleManager, ObjectMembership, ActionModifyDates},
	{RoleManager, ObjectMembership, ActionModifyLimits},
	{RoleManager, ObjectMembership, ActionCancel},
	{RoleManager, ObjectMembership, ActionUpgrade},
	{RoleManager, ObjectMembership, ActionTransfer},
	{RoleManager, ObjectMembership, ActionReinstate},
	{RoleManager, ObjectMembership, ActionExportNotes},
	{RoleStaff, ObjectMembership, ActionCreate},
	{RoleStaff, ObjectMembership, ActionHold},
	{RoleStaff, ObjectMembership, ActionResume},
	{RoleFrontDesk, ObjectMembership, ActionRead},
	{RoleFrontDesk, ObjectMembership, ActionCheckout},
}

var defaultGroupings = [][]string{
	{RoleManager, RoleStaff},
	{RoleStaff, RoleFrontDesk},
}
