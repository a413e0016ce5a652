package model

import (
	"fmt"
	"time"

	"procurement/internal/domain"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RequirementType classifies how soon a requisition is needed
type RequirementType string

const (
	RequirementUrgent   RequirementType = "Urgent"
	RequirementPriority RequirementType = "Priority"
	RequirementRoutine  RequirementType = "Routine"
)

// LineItem is one requested item. Demand forms and requests share the table through the
// polymorphic owner columns.
type LineItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_line_items_owner" json:"-"`
	OwnerType   string          `gorm:"type:varchar(20);not null;index:idx_line_items_owner" json:"-"`
	SrNo        int             `gorm:"type:int;not null" json:"sr_no"`
	Description string          `gorm:"type:text;not null" json:"description"`
	PartNo      string          `gorm:"type:varchar(100)" json:"part_no"`
	Deno        string          `gorm:"type:varchar(50)" json:"deno"`
	Qty         int             `gorm:"type:int;not null" json:"qty"`
	ApproxCost  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"approx_cost"`
}

// LogisticsLogEntry is the stock record the Logistics Officer attaches per item
type LogisticsLogEntry struct {
	SrNo              int              `json:"sr_no"`
	StockAvailable    int              `json:"stock_available"`
	LastIssueDate     *time.Time       `json:"last_issue_date,omitempty"`
	LastPurchaseDate  *time.Time       `json:"last_purchase_date,omitempty"`
	LastPurchasePrice *decimal.Decimal `json:"last_purchase_price,omitempty"`
}

// ApprovalTrail holds one approval record per reviewing role.
type ApprovalTrail struct {
	LogisticsIsApproved   bool       `gorm:"default:false" json:"logistics_is_approved"`
	LogisticsCreatedAt    *time.Time `json:"logistics_created_at"`
	LogisticsUserID       *uuid.UUID `gorm:"type:uuid" json:"logistics_user_id"`
	BursarIsApproved      bool       `gorm:"default:false" json:"bursar_is_approved"`
	BursarCreatedAt       *time.Time `json:"bursar_created_at"`
	BursarUserID          *uuid.UUID `gorm:"type:uuid" json:"bursar_user_id"`
	WarehouseIsApproved   bool       `gorm:"default:false" json:"warehouse_is_approved"`
	WarehouseCreatedAt    *time.Time `json:"warehouse_created_at"`
	WarehouseUserID       *uuid.UUID `gorm:"type:uuid" json:"warehouse_user_id"`
	RectorIsApproved      bool       `gorm:"default:false" json:"rector_is_approved"`
	RectorCreatedAt       *time.Time `json:"rector_created_at"`
	RectorUserID          *uuid.UUID `gorm:"type:uuid" json:"rector_user_id"`
	ProcurementIsApproved bool       `gorm:"default:false;index" json:"procurement_is_approved"`
	ProcurementCreatedAt  *time.Time `json:"procurement_created_at"`
	ProcurementUserID     *uuid.UUID `gorm:"type:uuid" json:"procurement_user_id"`
}

func (a *ApprovalTrail) record(block workflow.Block, approved bool, at time.Time, actor uuid.UUID) {
	ts := at
	var id *uuid.UUID
	if actor != uuid.Nil {
		id = &actor
	}
	switch block {
	case workflow.BlockLogistics:
		a.LogisticsIsApproved, a.LogisticsCreatedAt, a.LogisticsUserID = approved, &ts, id
	case workflow.BlockBursar:
		a.BursarIsApproved, a.BursarCreatedAt, a.BursarUserID = approved, &ts, id
	case workflow.BlockWarehouse:
		a.WarehouseIsApproved, a.WarehouseCreatedAt, a.WarehouseUserID = approved, &ts, id
	case workflow.BlockRector:
		a.RectorIsApproved, a.RectorCreatedAt, a.RectorUserID = approved, &ts, id
	case workflow.BlockProcurement:
		a.ProcurementIsApproved, a.ProcurementCreatedAt, a.ProcurementUserID = approved, &ts, id
	}
}

// Requisition is the part shared by demand forms and requests.
//
// IsApproved is false while the current stage is pending, true once the current stage's
// action succeeded and nil after a rejection.
type Requisition struct {
	Department      string                                 `gorm:"type:varchar(255);not null;index" json:"department"`
	Requirement     string                                 `gorm:"type:text;not null" json:"requirement"`
	Specifications  string                                 `gorm:"type:text" json:"specifications"`
	UseFor          string                                 `gorm:"type:text" json:"use_for"`
	RequirementType RequirementType                        `gorm:"type:varchar(20);not null;default:'Routine'" json:"requirement_type"`
	TotalCost       decimal.Decimal                        `gorm:"type:decimal(18,2);not null;default:0" json:"total_cost"`
	RequestStage    workflow.Stage                         `gorm:"type:varchar(40);not null;default:'HOD';index" json:"request_stage"`
	IsApproved      *bool                                  `json:"is_approved"`
	RejectionReason string                                 `gorm:"type:text" json:"rejection_reason,omitempty"`
	CreatedBy       uuid.UUID                              `gorm:"type:uuid;not null;index" json:"created_by"`
	LogNotes        string                                 `gorm:"type:text" json:"log_notes,omitempty"`
	LogEntries      datatypes.JSONSlice[LogisticsLogEntry] `gorm:"type:jsonb" json:"log_entries"`
	ApprovalTrail   `gorm:"embedded"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Snapshot exposes the state the workflow table decides on.
func (r *Requisition) Snapshot() workflow.Snapshot {
	return workflow.Snapshot{
		Stage:               r.RequestStage,
		TotalCost:           r.TotalCost,
		ProcurementApproved: r.ProcurementIsApproved,
	}
}

// Apply mirrors ChangeColumns on the in-memory record.
func (r *Requisition) Apply(c workflow.Change) {
	r.RequestStage = c.To
	r.IsApproved = c.IsApproved
	if c.Action == workflow.ActionReject {
		r.RejectionReason = c.Reason
	}
	r.UpdatedAt = c.At
	if c.Block != workflow.BlockNone {
		r.ApprovalTrail.record(c.Block, c.BlockApproved, c.At, c.Actor)
	}
}

// ChangeColumns returns the column updates that persist a workflow change.
func ChangeColumns(c workflow.Change) map[string]interface{} {
	cols := map[string]interface{}{
		"request_stage": string(c.To),
		"is_approved":   c.IsApproved,
		"updated_at":    c.At,
	}
	if c.Action == workflow.ActionReject {
		cols["rejection_reason"] = c.Reason
	}
	if c.Block != workflow.BlockNone {
		prefix := string(c.Block)
		cols[prefix+"_is_approved"] = c.BlockApproved
		cols[prefix+"_created_at"] = c.At
		if c.Actor != uuid.Nil {
			cols[prefix+"_user_id"] = c.Actor
		} else {
			cols[prefix+"_user_id"] = nil
		}
	}
	return cols
}

// SumItems returns Σ qty × approxCost.
func SumItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.ApproxCost.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	return total
}

// ValidateItems checks the per-item invariants.
func ValidateItems(items []LineItem) error {
	for i, it := range items {
		if it.Qty < 1 {
			return fmt.Errorf("%w: item %d: qty must be at least 1", domain.ErrValidation, i+1)
		}
		if it.ApproxCost.IsNegative() {
			return fmt.Errorf("%w: item %d: approx cost must not be negative", domain.ErrValidation, i+1)
		}
	}
	return nil
}

// prepare runs before every save; the stored total is always derived from the items.
func (r *Requisition) prepare(items []LineItem) error {
	if err := ValidateItems(items); err != nil {
		return err
	}
	r.TotalCost = SumItems(items)
	return nil
}

// BursarBudget is the budget record captured when the Bursar approves a demand form.
type BursarBudget struct {
	ProvisionsAvailability *decimal.Decimal `gorm:"type:decimal(18,2)" json:"provisions_availability"`
	VoteParticulars        string           `gorm:"type:text" json:"vote_particulars"`
	ProvisionsAllocated    *decimal.Decimal `gorm:"type:decimal(18,2)" json:"provisions_allocated"`
	TotalExpenditure       *decimal.Decimal `gorm:"type:decimal(18,2)" json:"total_expenditure"`
	BalanceAvailable       *decimal.Decimal `gorm:"type:decimal(18,2)" json:"balance_available"`
	ApprovalDate           *time.Time       `json:"budget_approval_date"`
}

func (b BursarBudget) columns() map[string]interface{} {
	return map[string]interface{}{
		"budget_provisions_availability": b.ProvisionsAvailability,
		"budget_vote_particulars":        b.VoteParticulars,
		"budget_provisions_allocated":    b.ProvisionsAllocated,
		"budget_total_expenditure":       b.TotalExpenditure,
		"budget_balance_available":       b.BalanceAvailable,
		"budget_approval_date":           b.ApprovalDate,
	}
}

// DemandForm is a requisition that passes through the Bursar's budget check
type DemandForm struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DemandNo    string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"demand_no"`
	Requisition `gorm:"embedded"`
	Budget      BursarBudget `gorm:"embedded;embeddedPrefix:budget_" json:"budget"`
	Items       []LineItem   `gorm:"polymorphic:Owner;polymorphicValue:demand_form" json:"items"`
}

func (d *DemandForm) BeforeSave(tx *gorm.DB) error {
	return d.Requisition.prepare(d.Items)
}

func (d *DemandForm) Kind() workflow.Kind { return workflow.KindDemandForm }
func (d *DemandForm) Key() uuid.UUID { return d.ID }
func (d *DemandForm) Base() *Requisition { return &d.Requisition }
func (d *DemandForm) LineItems() []LineItem { return d.Items }
func (d *DemandForm) SetLineItems(items []LineItem) { d.Items = items }
func (d *DemandForm) Number() string { return d.DemandNo }
func (d *DemandForm) SetNumber(n string) { d.DemandNo = n }

// Request is a requisition that goes from Logistics straight to the Rector
type Request struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestNo   string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"request_no"`
	Requisition `gorm:"embedded"`
	Items       []LineItem `gorm:"polymorphic:Owner;polymorphicValue:request" json:"items"`
}

func (r *Request) BeforeSave(tx *gorm.DB) error {
	return r.Requisition.prepare(r.Items)
}

func (r *Request) Kind() workflow.Kind { return workflow.KindRequest }
func (r *Request) Key() uuid.UUID { return r.ID }
func (r *Request) Base() *Requisition { return &r.Requisition }
func (r *Request) LineItems() []LineItem { return r.Items }
func (r *Request) SetLineItems(items []LineItem) { r.Items = items }
func (r *Request) Number() string { return r.RequestNo }
func (r *Request) SetNumber(n string) { r.RequestNo = n }

// RequisitionRecord lets repositories and services treat both requisition kinds alike.
type RequisitionRecord interface {
	Kind() workflow.Kind
	Key() uuid.UUID
	Base() *Requisition
	LineItems() []LineItem
	SetLineItems(items []LineItem)
	Number() string
	SetNumber(n string)
}

// NewRecord returns an empty record of the given kind.
func NewRecord(kind workflow.Kind) (RequisitionRecord, error) {
	switch kind {
	case workflow.KindDemandForm:
		return &DemandForm{}, nil
	case workflow.KindRequest:
		return &Request{}, nil
	}
	return nil, fmt.Errorf("%w: unknown requisition kind %q", domain.ErrValidation, kind)
}

// NumberPrefix is the prefix of generated document numbers, e.g. DF-20260115-.
func NumberPrefix(kind workflow.Kind, day time.Time) string {
	code := "RQ"
	if kind == workflow.KindDemandForm {
		code = "DF"
	}
	return fmt.Sprintf("%s-%s-", code, day.Format("20060102"))
}

// StageExtras carries the data a reviewer attaches alongside a transition.
type StageExtras struct {
	Budget     *BursarBudget
	LogEntries []LogisticsLogEntry
	LogNotes   *string
}

// Columns returns the extra column updates for kind.
func (e StageExtras) Columns(kind workflow.Kind) map[string]interface{} {
	cols := map[string]interface{}{}
	if e.Budget != nil && kind == workflow.KindDemandForm {
		for k, v := range e.Budget.columns() {
			cols[k] = v
		}
	}
	if e.LogEntries != nil {
		cols["log_entries"] = datatypes.NewJSONSlice(e.LogEntries)
	}
	if e.LogNotes != nil {
		cols["log_notes"] = *e.LogNotes
	}
	return cols
}

// ApplyTo mirrors Columns on the in-memory record.
func (e StageExtras) ApplyTo(rec RequisitionRecord) {
	if df, ok := rec.(*DemandForm); ok && e.Budget != nil {
		df.Budget = *e.Budget
	}
	if e.LogEntries != nil {
		rec.Base().LogEntries = datatypes.NewJSONSlice(e.LogEntries)
	}
	if e.LogNotes != nil {
		rec.Base().LogNotes = *e.LogNotes
	}
}
