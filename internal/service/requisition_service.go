package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurement/internal/domain"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type LineItemRequest struct {
	SrNo        int             `json:"sr_no" binding:"omitempty,gte=1"`
	Description string          `json:"description" binding:"required"`
	PartNo      string          `json:"part_no"`
	Deno        string          `json:"deno"`
	Qty         int             `json:"qty" binding:"required,gte=1"`
	ApproxCost  decimal.Decimal `json:"approx_cost"`
}

type CreateRequisitionRequest struct {
	Number          string            `json:"number" binding:"omitempty,max=50"`
	Department      string            `json:"department" binding:"required"`
	Requirement     string            `json:"requirement" binding:"required"`
	Specifications  string            `json:"specifications"`
	UseFor          string            `json:"use_for"`
	RequirementType string            `json:"requirement_type" binding:"required,oneof=Urgent Priority Routine"`
	Items           []LineItemRequest `json:"items" binding:"required,min=1,dive"`
}

type UpdateRequisitionRequest struct {
	Department      string            `json:"department" binding:"required"`
	Requirement     string            `json:"requirement" binding:"required"`
	Specifications  string            `json:"specifications"`
	UseFor          string            `json:"use_for"`
	RequirementType string            `json:"requirement_type" binding:"required,oneof=Urgent Priority Routine"`
	Items           []LineItemRequest `json:"items" binding:"required,min=1,dive"`
}

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// ReviewRequest is the body of every approve/reject endpoint. Reason is required on reject.
type ReviewRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
	Reason   string `json:"reason"`
}

type LogisticsReviewRequest struct {
	ReviewRequest
	LogEntries []model.LogisticsLogEntry `json:"log_entries"`
	LogNotes   *string                   `json:"log_notes"`
}

// BudgetRequest carries the Bursar's budget record; amounts are decimal strings.
type BudgetRequest struct {
	ProvisionsAvailability string     `json:"provisions_availability" binding:"required,numeric"`
	VoteParticulars        string     `json:"vote_particulars" binding:"required"`
	ProvisionsAllocated    string     `json:"provisions_allocated" binding:"required,numeric"`
	TotalExpenditure       string     `json:"total_expenditure" binding:"required,numeric"`
	BalanceAvailable       string     `json:"balance_available" binding:"required,numeric"`
	BudgetApprovalDate     *time.Time `json:"budget_approval_date"`
}

type BursarReviewRequest struct {
	ReviewRequest
	Budget *BudgetRequest `json:"budget"`
}

type RequisitionListFilter struct {
	Stage           string
	Department      string
	RequirementType string
	Page            int
	Limit           int
}

// --- Interface ---

// RequisitionService drives demand forms and requests through the approval chain. Every stage
// change goes through the workflow table and is persisted as one conditional update.
type RequisitionService interface {
	Create(ctx context.Context, actor Actor, kind workflow.Kind, req CreateRequisitionRequest) (model.RequisitionRecord, error)
	UpdateDraft(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID, req UpdateRequisitionRequest) (model.RequisitionRecord, error)
	DeleteDraft(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID) error
	Get(ctx context.Context, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error)
	List(ctx context.Context, kind workflow.Kind, filter RequisitionListFilter) ([]model.RequisitionRecord, int64, error)
	ListPending(ctx context.Context, actor Actor, kind workflow.Kind, page, limit int) ([]model.RequisitionRecord, int64, error)

	Submit(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error)
	ReviewLogistics(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID, req LogisticsReviewRequest) (model.RequisitionRecord, error)
	ReviewBursar(ctx context.Context, actor Actor, id uuid.UUID, req BursarReviewRequest) (model.RequisitionRecord, error)
	ReviewRector(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID, req ReviewRequest) (model.RequisitionRecord, error)
	ReviewProcurement(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID, req ReviewRequest) (model.RequisitionRecord, error)
	ConfirmDelivery(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error)

	// ApplyDelivery marks the document delivered on behalf of the system. It joins the caller's
	// transaction and returns a func that publishes the stage change; call it only after that
	// transaction commits. The func is nil when the document was already delivered.
	ApplyDelivery(ctx context.Context, kind workflow.Kind, id uuid.UUID) (func(), error)
}

type requisitionService struct {
	repo      repository.RequisitionRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	events    EventPublisher
	now       func() time.Time
}

func NewRequisitionService(
	repo repository.RequisitionRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	events EventPublisher,
) RequisitionService {
	return &requisitionService{
		repo:      repo,
		auditRepo: auditRepo,
		txManager: txManager,
		events:    publisherOrNop(events),
		now:       time.Now,
	}
}

// --- Drafts ---

func buildItems(reqs []LineItemRequest) []model.LineItem {
	items := make([]model.LineItem, 0, len(reqs))
	for i, r := range reqs {
		srNo := r.SrNo
		if srNo == 0 {
			srNo = i + 1
		}
		items = append(items, model.LineItem{
			SrNo:        srNo,
			Description: r.Description,
			PartNo:      r.PartNo,
			Deno:        r.Deno,
			Qty:         r.Qty,
			ApproxCost:  r.ApproxCost,
		})
	}
	return items
}

func requireKind(kind workflow.Kind) error {
	if !kind.Valid() {
		return invalid("unknown requisition kind %q", kind)
	}
	return nil
}

func (s *requisitionService) Create(ctx context.Context, actor Actor, kind workflow.Kind, req CreateRequisitionRequest) (model.RequisitionRecord, error) {
	if err := requireKind(kind); err != nil {
		return nil, err
	}
	if actor.Role != workflow.RoleHOD {
		return nil, forbidden("only a HOD can raise a %s", kind)
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	items := buildItems(req.Items)
	if err := model.ValidateItems(items); err != nil {
		return nil, err
	}

	rec, err := model.NewRecord(kind)
	if err != nil {
		return nil, err
	}
	pending := false
	base := rec.Base()
	base.Department = req.Department
	base.Requirement = req.Requirement
	base.Specifications = req.Specifications
	base.UseFor = req.UseFor
	base.RequirementType = model.RequirementType(req.RequirementType)
	base.RequestStage = workflow.StageHOD
	base.IsApproved = &pending
	base.CreatedBy = actor.ID
	rec.SetLineItems(items)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		number := req.Number
		if number == "" {
			n, err := s.repo.NextNumber(txCtx, kind, s.now())
			if err != nil {
				return err
			}
			number = n
		}
		rec.SetNumber(number)

		if err := s.repo.Create(txCtx, rec); err != nil {
			return fmt.Errorf("failed to create %s: %w", kind, err)
		}

		audit := model.NewAuditLog(actor.ID, model.ActionCreateRequisition, rec.Key().String(), rec.Number(), map[string]interface{}{
			"kind":       kind,
			"total_cost": base.TotalCost.StringFixed(2),
			"items":      len(items),
		})
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(EventRequisitionCreated, map[string]interface{}{
		"kind": kind, "id": rec.Key(), "number": rec.Number(), "stage": base.RequestStage,
	})
	return rec, nil
}

// lockDraft loads the record under lock and checks the actor may still edit it.
func (s *requisitionService) lockDraft(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error) {
	if actor.Role != workflow.RoleHOD {
		return nil, forbidden("only a HOD can edit a %s", kind)
	}
	rec, err := s.repo.FindForUpdate(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	base := rec.Base()
	if base.CreatedBy != actor.ID {
		return nil, forbidden("%s %s belongs to another HOD", kind, id)
	}
	if base.RequestStage != workflow.StageHOD {
		return nil, fmt.Errorf("%w: %s %s has left the HOD stage", domain.ErrInvalidStage, kind, id)
	}
	return rec, nil
}

func (s *requisitionService) UpdateDraft(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID, req UpdateRequisitionRequest) (model.RequisitionRecord, error) {
	if err := requireKind(kind); err != nil {
		return nil, err
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	items := buildItems(req.Items)
	if err := model.ValidateItems(items); err != nil {
		return nil, err
	}

	var rec model.RequisitionRecord
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		rec, err = s.lockDraft(txCtx, actor, kind, id)
		if err != nil {
			return err
		}

		base := rec.Base()
		base.Department = req.Department
		base.Requirement = req.Requirement
		base.Specifications = req.Specifications
		base.UseFor = req.UseFor
		base.RequirementType = model.RequirementType(req.RequirementType)
		rec.SetLineItems(items)

		if err := s.repo.SaveDraft(txCtx, rec); err != nil {
			return fmt.Errorf("failed to update %s: %w", kind, err)
		}

		audit := model.NewAuditLog(actor.ID, model.ActionUpdateRequisition, id.String(), rec.Number(), map[string]interface{}{
			"kind":       kind,
			"total_cost": base.TotalCost.StringFixed(2),
			"items":      len(items),
		})
		return s.auditRepo.Log(txCtx, audit)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *requisitionService) DeleteDraft(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID) error {
	if err := requireKind(kind); err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		rec, err := s.lockDraft(txCtx, actor, kind, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(txCtx, kind, id); err != nil {
			return err
		}
		audit := model.NewAuditLog(actor.ID, model.ActionDeleteRequisition, id.String(), rec.Number(), map[string]interface{}{"kind": kind})
		return s.auditRepo.Log(txCtx, audit)
	})
}

// --- Queries ---

func (s *requisitionService) Get(ctx context.Context, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error) {
	if err := requireKind(kind); err != nil {
		return nil, err
	}
	return s.repo.Find(ctx, kind, id)
}

func (s *requisitionService) List(ctx context.Context, kind workflow.Kind, f RequisitionListFilter) ([]model.RequisitionRecord, int64, error) {
	if err := requireKind(kind); err != nil {
		return nil, 0, err
	}
	filter := repository.RequisitionFilter{
		Department:      f.Department,
		RequirementType: f.RequirementType,
	}
	if f.Stage != "" {
		stage, ok := workflow.ParseStage(f.Stage)
		if !ok {
			return nil, 0, invalid("unknown stage %q", f.Stage)
		}
		filter.Stage = stage
	}
	filter.Page, filter.Limit = normalizePage(f.Page, f.Limit)
	return s.repo.List(ctx, kind, filter)
}

// ListPending returns what is waiting on the actor's role. A HOD's queue is their own drafts.
func (s *requisitionService) ListPending(ctx context.Context, actor Actor, kind workflow.Kind, page, limit int) ([]model.RequisitionRecord, int64, error) {
	if err := requireKind(kind); err != nil {
		return nil, 0, err
	}
	queues := workflow.QueuesFor(kind, actor.Role)
	if len(queues) == 0 {
		return []model.RequisitionRecord{}, 0, nil
	}

	filter := repository.RequisitionFilter{Queues: queues}
	if actor.Role == workflow.RoleHOD {
		filter.CreatedBy = &actor.ID
	}
	filter.Page, filter.Limit = normalizePage(page, limit)
	return s.repo.List(ctx, kind, filter)
}

// --- Stage transitions ---

func decisionAction(req ReviewRequest) (workflow.Action, error) {
	switch req.Decision {
	case DecisionApprove:
		return workflow.ActionApprove, nil
	case DecisionReject:
		if req.Reason == "" {
			return "", invalid("a reason is required to reject")
		}
		return workflow.ActionReject, nil
	}
	return "", invalid("decision must be approve or reject")
}

func (s *requisitionService) Submit(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error) {
	return s.transition(ctx, actor, kind, id, workflow.ActionSubmit, "", workflow.Evidence{}, model.StageExtras{})
}

func (s *requisitionService) ReviewLogistics(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID, req LogisticsReviewRequest) (model.RequisitionRecord, error) {
	action, err := decisionAction(req.ReviewRequest)
	if err != nil {
		return nil, err
	}
	extras := model.StageExtras{LogEntries: req.LogEntries, LogNotes: req.LogNotes}
	return s.transition(ctx, actor, kind, id, action, req.Reason, workflow.Evidence{}, extras)
}

// ReviewBursar applies the Bursar's decision on a demand form. Approval needs a complete budget
// record whose balance covers the form's total cost.
func (s *requisitionService) ReviewBursar(ctx context.Context, actor Actor, id uuid.UUID, req BursarReviewRequest) (model.RequisitionRecord, error) {
	action, err := decisionAction(req.ReviewRequest)
	if err != nil {
		return nil, err
	}
	if action == workflow.ActionReject {
		return s.transition(ctx, actor, workflow.KindDemandForm, id, action, req.Reason, workflow.Evidence{}, model.StageExtras{})
	}

	if req.Budget == nil {
		return nil, invalid("budget record is required for bursar approval")
	}
	budget, err := s.parseBudget(*req.Budget)
	if err != nil {
		return nil, err
	}
	ev := workflow.Evidence{BalanceAvailable: budget.BalanceAvailable}
	return s.transition(ctx, actor, workflow.KindDemandForm, id, action, "", ev, model.StageExtras{Budget: budget})
}

func (s *requisitionService) parseBudget(req BudgetRequest) (*model.BursarBudget, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	amounts := make([]decimal.Decimal, 4)
	for i, raw := range []string{req.ProvisionsAvailability, req.ProvisionsAllocated, req.TotalExpenditure, req.BalanceAvailable} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, invalid("invalid amount %q", raw)
		}
		amounts[i] = d
	}
	approvedAt := s.now()
	if req.BudgetApprovalDate != nil {
		approvedAt = *req.BudgetApprovalDate
	}
	return &model.BursarBudget{
		ProvisionsAvailability: &amounts[0],
		VoteParticulars:        req.VoteParticulars,
		ProvisionsAllocated:    &amounts[1],
		TotalExpenditure:       &amounts[2],
		BalanceAvailable:       &amounts[3],
		ApprovalDate:           &approvedAt,
	}, nil
}

func (s *requisitionService) ReviewRector(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID, req ReviewRequest) (model.RequisitionRecord, error) {
	action, err := decisionAction(req)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, kind, id, action, req.Reason, workflow.Evidence{}, model.StageExtras{})
}

func (s *requisitionService) ReviewProcurement(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID, req ReviewRequest) (model.RequisitionRecord, error) {
	action, err := decisionAction(req)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, kind, id, action, req.Reason, workflow.Evidence{}, model.StageExtras{})
}

func (s *requisitionService) ConfirmDelivery(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error) {
	return s.transition(ctx, actor, kind, id, workflow.ActionDeliver, "", workflow.Evidence{}, model.StageExtras{})
}

func (s *requisitionService) ApplyDelivery(ctx context.Context, kind workflow.Kind, id uuid.UUID) (func(), error) {
	rec, change, err := s.applyTransition(ctx, SystemActor, kind, id, workflow.ActionDeliver, "", workflow.Evidence{}, model.StageExtras{})
	if errors.Is(err, errAlreadyDelivered) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return func() { s.publishStage(kind, id, rec, workflow.ActionDeliver, change) }, nil
}

var errAlreadyDelivered = errors.New("already delivered")

// transition is the single path by which a requisition changes stage.
func (s *requisitionService) transition(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID, action workflow.Action, reason string, ev workflow.Evidence, extras model.StageExtras) (model.RequisitionRecord, error) {
	rec, change, err := s.applyTransition(ctx, actor, kind, id, action, reason, ev, extras)
	if err != nil {
		return nil, err
	}
	s.publishStage(kind, id, rec, action, change)
	return s.repo.Find(ctx, kind, id)
}

// applyTransition writes the stage change and its audit row without publishing anything.
func (s *requisitionService) applyTransition(ctx context.Context, actor Actor, kind workflow.Kind, id uuid.UUID, action workflow.Action, reason string, ev workflow.Evidence, extras model.StageExtras) (model.RequisitionRecord, workflow.Change, error) {
	if err := requireKind(kind); err != nil {
		return nil, workflow.Change{}, err
	}

	var (
		rec    model.RequisitionRecord
		change workflow.Change
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		rec, err = s.repo.FindForUpdate(txCtx, kind, id)
		if err != nil {
			return err
		}
		base := rec.Base()

		if actor.Role == workflow.RoleSystem && action == workflow.ActionDeliver && base.RequestStage == workflow.StageDelivered {
			return errAlreadyDelivered
		}

		tr, err := workflow.Resolve(kind, base.RequestStage, action, actor.Role)
		if err != nil {
			return err
		}
		if action == workflow.ActionSubmit && base.CreatedBy != actor.ID {
			return forbidden("%s %s belongs to another HOD", kind, id)
		}
		snap := base.Snapshot()
		if err := tr.Check(snap, ev); err != nil {
			return err
		}

		change = tr.Change(actor.ID, s.now(), reason)
		if err := s.repo.ApplyTransition(txCtx, kind, id, snap.ProcurementApproved, change, extras); err != nil {
			return err
		}
		base.Apply(change)
		extras.ApplyTo(rec)

		details := map[string]interface{}{
			"kind":   kind,
			"action": action,
			"from":   change.From,
			"to":     change.To,
			"role":   actor.Role,
		}
		if reason != "" && action == workflow.ActionReject {
			details["reason"] = reason
		}
		audit := model.NewAuditLog(actor.ID, model.ActionStageTransition, id.String(), rec.Number(), details)
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, workflow.Change{}, err
	}
	return rec, change, nil
}

func (s *requisitionService) publishStage(kind workflow.Kind, id uuid.UUID, rec model.RequisitionRecord, action workflow.Action, change workflow.Change) {
	s.events.Publish(EventStageChanged, map[string]interface{}{
		"kind":        kind,
		"id":          id,
		"number":      rec.Number(),
		"action":      action,
		"from":        change.From,
		"to":          change.To,
		"is_approved": change.IsApproved,
	})
}
