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
)

type CreateTenderRequest struct {
	ReferenceNo  string     `json:"reference_no" binding:"omitempty,max=50"`
	Title        string     `json:"title" binding:"required"`
	Description  string     `json:"description"`
	RequestID    *uuid.UUID `json:"request_id"`
	DemandFormID *uuid.UUID `json:"demand_form_id"`
	StartingDate *time.Time `json:"starting_date"`
	ClosingDate  time.Time  `json:"closing_date" binding:"required"`
}

type TenderListFilter struct {
	Status string
	Page   int
	Limit  int
}

type TenderService interface {
	CreateTender(ctx context.Context, actor Actor, req CreateTenderRequest) (*model.Tender, error)
	ListTenders(ctx context.Context, actor Actor, filter TenderListFilter) ([]model.Tender, int64, error)
	GetTender(ctx context.Context, actor Actor, id uuid.UUID) (*model.Tender, error)
	CloseTender(ctx context.Context, actor Actor, id uuid.UUID) (*model.Tender, error)
	CloseExpired(ctx context.Context) (int, error)
}

type tenderService struct {
	repo            repository.TenderRepository
	requisitionRepo repository.RequisitionRepository
	auditRepo       repository.AuditRepository
	txManager       repository.TransactionManager
	events          EventPublisher
	now             func() time.Time
}

func NewTenderService(
	repo repository.TenderRepository,
	requisitionRepo repository.RequisitionRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	events EventPublisher,
) TenderService {
	return &tenderService{
		repo:            repo,
		requisitionRepo: requisitionRepo,
		auditRepo:       auditRepo,
		txManager:       txManager,
		events:          publisherOrNop(events),
		now:             time.Now,
	}
}

// CreateTender opens a tender on one source document. The document must sit at the
// Procurement Officer stage with procurement approval, and may carry at most one active
// tender at a time.
func (s *tenderService) CreateTender(ctx context.Context, actor Actor, req CreateTenderRequest) (*model.Tender, error) {
	if actor.Role != workflow.RoleProcurement {
		return nil, forbidden("only a Procurement Officer can create tenders")
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	tender := &model.Tender{
		ReferenceNo:  req.ReferenceNo,
		Title:        req.Title,
		Description:  req.Description,
		RequestID:    req.RequestID,
		DemandFormID: req.DemandFormID,
		Status:       model.TenderActive,
		StartingDate: s.now(),
		ClosingDate:  req.ClosingDate,
		CreatedBy:    actor.ID,
	}
	if req.StartingDate != nil {
		tender.StartingDate = *req.StartingDate
	}
	if err := tender.Validate(); err != nil {
		return nil, err
	}
	kind, sourceID := tender.Source()

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.LockSource(txCtx, sourceID); err != nil {
			return fmt.Errorf("failed to lock source document: %w", err)
		}

		source, err := s.requisitionRepo.Find(txCtx, kind, sourceID)
		if err != nil {
			return err
		}
		base := source.Base()
		if base.RequestStage != workflow.StageProcurement || !base.ProcurementIsApproved {
			return fmt.Errorf("%w: %s %s is at stage %q and not approved for tender",
				domain.ErrInvalidStage, kind, source.Number(), base.RequestStage)
		}

		existing, err := s.repo.FindActiveBySource(txCtx, kind, sourceID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: active tender %s (%s) already exists for %s %s",
				domain.ErrConflict, existing.ID, existing.ReferenceNo, kind, source.Number())
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		if tender.ReferenceNo == "" {
			ref, err := s.repo.NextReferenceNo(txCtx, s.now())
			if err != nil {
				return err
			}
			tender.ReferenceNo = ref
		}
		if err := s.repo.Create(txCtx, tender); err != nil {
			return fmt.Errorf("failed to create tender: %w", err)
		}

		audit := model.NewAuditLog(actor.ID, model.ActionCreateTender, tender.ID.String(), tender.ReferenceNo, map[string]interface{}{
			"source_kind":   kind,
			"source_id":     sourceID,
			"source_number": source.Number(),
			"closing_date":  tender.ClosingDate,
		})
		return s.auditRepo.Log(txCtx, audit)
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(EventTenderCreated, map[string]interface{}{
		"id": tender.ID, "reference_no": tender.ReferenceNo, "source_kind": kind, "source_id": sourceID,
	})
	return tender, nil
}

// ListTenders lists tenders; suppliers only ever see active ones.
func (s *tenderService) ListTenders(ctx context.Context, actor Actor, f TenderListFilter) ([]model.Tender, int64, error) {
	filter := repository.TenderFilter{Status: model.TenderStatus(f.Status)}
	switch filter.Status {
	case "", model.TenderActive, model.TenderClosed:
	default:
		return nil, 0, invalid("unknown tender status %q", f.Status)
	}
	if actor.Role == workflow.RoleSupplier {
		filter.Status = model.TenderActive
	}
	filter.Page, filter.Limit = normalizePage(f.Page, f.Limit)
	return s.repo.List(ctx, filter)
}

func (s *tenderService) GetTender(ctx context.Context, actor Actor, id uuid.UUID) (*model.Tender, error) {
	tender, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == workflow.RoleSupplier && tender.Status != model.TenderActive {
		return nil, fmt.Errorf("%w: tender %s", domain.ErrNotFound, id)
	}
	return tender, nil
}

func (s *tenderService) CloseTender(ctx context.Context, actor Actor, id uuid.UUID) (*model.Tender, error) {
	if actor.Role != workflow.RoleProcurement {
		return nil, forbidden("only a Procurement Officer can close tenders")
	}

	var tender *model.Tender
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.UpdateStatus(txCtx, id, model.TenderActive, model.TenderClosed); err != nil {
			return err
		}
		var err error
		tender, err = s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		audit := model.NewAuditLog(actor.ID, model.ActionCloseTender, id.String(), tender.ReferenceNo, nil)
		return s.auditRepo.Log(txCtx, audit)
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(EventTenderClosed, map[string]interface{}{"id": id, "reference_no": tender.ReferenceNo})
	return tender, nil
}

// CloseExpired closes every active tender past its closing date.
func (s *tenderService) CloseExpired(ctx context.Context) (int, error) {
	var closed []model.Tender
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		closed, err = s.repo.CloseExpired(txCtx, s.now())
		if err != nil {
			return err
		}
		for _, t := range closed {
			audit := model.NewAuditLog(uuid.Nil, model.ActionCloseTender, t.ID.String(), t.ReferenceNo, map[string]interface{}{
				"reason":       "closing date passed",
				"closing_date": t.ClosingDate,
			})
			if err := s.auditRepo.Log(txCtx, audit); err != nil {
				return fmt.Errorf("failed to write audit log: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, t := range closed {
		s.events.Publish(EventTenderClosed, map[string]interface{}{"id": t.ID, "reference_no": t.ReferenceNo})
	}
	return len(closed), nil
}
