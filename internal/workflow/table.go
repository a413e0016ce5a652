package workflow

import (
	"fmt"
	"time"

	"procurement/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Snapshot is the part of a requisition the transition table needs to decide.
type Snapshot struct {
	Stage               Stage
	TotalCost           decimal.Decimal
	ProcurementApproved bool
}

// Evidence carries action-specific facts supplied by the actor.
type Evidence struct {
	// BalanceAvailable is the Bursar's declared budget balance; nil when no budget was supplied.
	BalanceAvailable *decimal.Decimal
}

// Precondition restricts a transition on the procurement approval flag, which is the only
// state that is not encoded in the stage itself.
type Precondition int

const (
	PreNone Precondition = iota
	PreProcurementPending
	PreProcurementApproved
)

// Transition is one row of the table.
type Transition struct {
	From   Stage
	Action Action
	Roles  []Role
	To     Stage
	Block  Block
	Pre    Precondition
	Guard  func(Snapshot, Evidence) error
}

// Change is the outcome of applying a transition; repositories persist it as one conditional update.
type Change struct {
	From          Stage
	To            Stage
	Action        Action
	Block         Block
	BlockApproved bool
	IsApproved    *bool
	Actor         uuid.UUID
	At            time.Time
	Reason        string
}

var tables = map[Kind][]Transition{
	KindDemandForm: buildTable(KindDemandForm),
	KindRequest:    buildTable(KindRequest),
}

func buildTable(kind Kind) []Transition {
	afterLogistics := StageRector
	if kind == KindDemandForm {
		afterLogistics = StageBursar
	}

	rows := []Transition{
		{From: StageHOD, Action: ActionSubmit, Roles: []Role{RoleHOD}, To: StageLogistics},

		{From: StageLogistics, Action: ActionApprove, Roles: []Role{RoleLogistics}, To: afterLogistics, Block: BlockLogistics},
		{From: StageLogistics, Action: ActionReject, Roles: []Role{RoleLogistics}, To: StageRejectedLogistics, Block: BlockLogistics},
	}

	if kind == KindDemandForm {
		rows = append(rows,
			Transition{From: StageBursar, Action: ActionApprove, Roles: []Role{RoleBursar}, To: StageRector, Block: BlockBursar, Guard: budgetCovers},
			Transition{From: StageBursar, Action: ActionReject, Roles: []Role{RoleBursar}, To: StageRejectedBursar, Block: BlockBursar},
		)
	}

	rows = append(rows,
		Transition{From: StageRector, Action: ActionApprove, Roles: []Role{RoleRector}, To: StageProcurement, Block: BlockRector},
		Transition{From: StageRector, Action: ActionReject, Roles: []Role{RoleRector}, To: StageRejectedRector, Block: BlockRector},

		// Procurement approval keeps the stage and marks the requisition ready for tendering.
		Transition{From: StageProcurement, Action: ActionApprove, Roles: []Role{RoleProcurement}, To: StageProcurement, Block: BlockProcurement, Pre: PreProcurementPending},
		Transition{From: StageProcurement, Action: ActionReject, Roles: []Role{RoleProcurement}, To: StageRejectedProcurement, Block: BlockProcurement, Pre: PreProcurementPending},

		Transition{From: StageProcurement, Action: ActionDeliver, Roles: []Role{RoleWarehouse, RoleSystem}, To: StageDelivered, Block: BlockWarehouse, Pre: PreProcurementApproved},
	)
	return rows
}

// budgetCovers is the Bursar gate: the declared balance must cover the requisition's total cost.
func budgetCovers(s Snapshot, ev Evidence) error {
	if ev.BalanceAvailable == nil {
		return fmt.Errorf("%w: budget record is required for bursar approval", domain.ErrValidation)
	}
	if ev.BalanceAvailable.LessThan(s.TotalCost) {
		return fmt.Errorf("%w: balance available %s is less than total cost %s",
			domain.ErrValidation, ev.BalanceAvailable.StringFixed(2), s.TotalCost.StringFixed(2))
	}
	return nil
}

// Table returns the transitions defined for a kind.
func Table(kind Kind) []Transition {
	return tables[kind]
}

// Resolve finds the transition an actor with the given role may take for action at stage.
func Resolve(kind Kind, stage Stage, action Action, role Role) (Transition, error) {
	rows, ok := tables[kind]
	if !ok {
		return Transition{}, fmt.Errorf("%w: unknown requisition kind %q", domain.ErrValidation, kind)
	}
	if stage.IsTerminal() {
		return Transition{}, fmt.Errorf("%w: stage %q is terminal", domain.ErrInvalidStage, stage)
	}

	for _, t := range rows {
		if t.From != stage || t.Action != action {
			continue
		}
		for _, r := range t.Roles {
			if r == role {
				return t, nil
			}
		}
		return Transition{}, fmt.Errorf("%w: role %q cannot %s at stage %q", domain.ErrForbidden, role, action, stage)
	}

	return Transition{}, fmt.Errorf("%w: %s is not allowed at stage %q", domain.ErrInvalidStage, action, stage)
}

// Check evaluates the transition's precondition and guard against the current state.
func (t Transition) Check(s Snapshot, ev Evidence) error {
	if s.Stage != t.From {
		return fmt.Errorf("%w: expected stage %q, found %q", domain.ErrInvalidStage, t.From, s.Stage)
	}
	switch t.Pre {
	case PreProcurementPending:
		if s.ProcurementApproved {
			return fmt.Errorf("%w: procurement approval already recorded", domain.ErrInvalidStage)
		}
	case PreProcurementApproved:
		if !s.ProcurementApproved {
			return fmt.Errorf("%w: procurement approval is still pending", domain.ErrInvalidStage)
		}
	}
	if t.Guard != nil {
		return t.Guard(s, ev)
	}
	return nil
}

// Change builds the mutation for this transition.
func (t Transition) Change(actor uuid.UUID, at time.Time, reason string) Change {
	c := Change{
		From:   t.From,
		To:     t.To,
		Action: t.Action,
		Block:  t.Block,
		Actor:  actor,
		At:     at,
	}

	switch {
	case t.Action == ActionReject:
		c.Reason = reason
		// nil IsApproved marks the rejection
	case t.To == t.From || t.To == StageDelivered:
		settled := true
		c.IsApproved = &settled
		c.BlockApproved = true
	default:
		pending := false
		c.IsApproved = &pending
		c.BlockApproved = t.Block != BlockNone
	}
	return c
}

// Queue describes what a role's dashboard shows: requisitions at Stage, optionally filtered on
// the procurement approval flag.
type Queue struct {
	Stage               Stage
	ProcurementApproved *bool
}

// QueuesFor returns the stages at which role has a forward action for kind.
func QueuesFor(kind Kind, role Role) []Queue {
	var out []Queue
	for _, t := range tables[kind] {
		if t.Action == ActionReject {
			continue
		}
		allowed := false
		for _, r := range t.Roles {
			if r == role {
				allowed = true
				break
			}
		}
		if !allowed {
			continue
		}
		q := Queue{Stage: t.From}
		switch t.Pre {
		case PreProcurementPending:
			q.ProcurementApproved = boolPtr(false)
		case PreProcurementApproved:
			q.ProcurementApproved = boolPtr(true)
		}
		out = append(out, q)
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
