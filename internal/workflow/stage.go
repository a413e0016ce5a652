package workflow

// Stage is the value of a requisition's request_stage column: the role that must act next,
// or one of the terminal outcomes.
type Stage string

const (
	StageHOD         Stage = "HOD"
	StageLogistics   Stage = "Logistics Officer"
	StageBursar      Stage = "Bursar"
	StageWarehouse   Stage = "Warehouse Officer"
	StageRector      Stage = "Rector"
	StageProcurement Stage = "Procurement Officer"
	StageDelivered   Stage = "delivered"

	StageRejectedLogistics   Stage = "Rejected Logistics Officer"
	StageRejectedBursar      Stage = "Rejected Bursar"
	StageRejectedRector      Stage = "Rejected Rector"
	StageRejectedProcurement Stage = "Rejected Procurement Officer"
)

var allStages = []Stage{
	StageHOD, StageLogistics, StageBursar, StageWarehouse, StageRector, StageProcurement, StageDelivered,
	StageRejectedLogistics, StageRejectedBursar, StageRejectedRector, StageRejectedProcurement,
}

// ParseStage reports whether s is a known stage value.
func ParseStage(s string) (Stage, bool) {
	for _, st := range allStages {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsRejected reports whether the stage is one of the Rejected * outcomes.
func (s Stage) IsRejected() bool {
	switch s {
	case StageRejectedLogistics, StageRejectedBursar, StageRejectedRector, StageRejectedProcurement:
		return true
	}
	return false
}

// IsTerminal reports whether no further action can change the stage.
func (s Stage) IsTerminal() bool {
	return s == StageDelivered || s.IsRejected()
}

// Role is a user's role as carried in the access token.
type Role string

const (
	RoleHOD         Role = "HOD"
	RoleLogistics   Role = "Logistics Officer"
	RoleBursar      Role = "Bursar"
	RoleWarehouse   Role = "Warehouse Officer"
	RoleRector      Role = "Rector"
	RoleProcurement Role = "Procurement Officer"
	RoleSupplier    Role = "Supplier"
	RoleSuperAdmin  Role = "Super Admin"

	// RoleSystem acts for cascades triggered by other entities (order delivery).
	// It is never issued in a token.
	RoleSystem Role = "system"
)

// UserRoles lists the roles a user account may hold.
var UserRoles = []Role{
	RoleHOD, RoleLogistics, RoleBursar, RoleWarehouse, RoleRector, RoleProcurement, RoleSupplier, RoleSuperAdmin,
}

// ParseRole reports whether s is a role a user account may hold.
func ParseRole(s string) (Role, bool) {
	for _, r := range UserRoles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Action is what an actor does to a requisition at its current stage.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionDeliver Action = "deliver"
)

// Kind distinguishes the two requisition entities that share the workflow.
type Kind string

const (
	KindDemandForm Kind = "demand_form"
	KindRequest    Kind = "request"
)

// Valid reports whether k is a known requisition kind.
func (k Kind) Valid() bool {
	return k == KindDemandForm || k == KindRequest
}

// Block names the per-role approval record a transition writes.
type Block string

const (
	BlockNone        Block = ""
	BlockLogistics   Block = "logistics"
	BlockBursar      Block = "bursar"
	BlockWarehouse   Block = "warehouse"
	BlockRector      Block = "rector"
	BlockProcurement Block = "procurement"
)

// Blocks lists every approval record in chain order.
var Blocks = []Block{BlockLogistics, BlockBursar, BlockWarehouse, BlockRector, BlockProcurement}
