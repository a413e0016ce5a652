package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"procurement/internal/domain"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	TenderID uuid.UUID       `json:"tender_id" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Notes    string          `json:"notes"`
}

type UpdateOrderStatusRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject cancel complete delivered"`
}

type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" binding:"required,oneof=unpaid partial paid"`
}

type OrderListFilter struct {
	TenderID *uuid.UUID
	Status   string
	Page     int
	Limit    int
}

type OrderService interface {
	CreateOrder(ctx context.Context, actor Actor, req CreateOrderRequest) (*model.Order, error)
	ListOrders(ctx context.Context, actor Actor, filter OrderListFilter) ([]model.Order, int64, error)
	GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*model.Order, error)
	UpdateOrderStatusByAction(ctx context.Context, actor Actor, id uuid.UUID, action string) (*model.Order, error)
	UpdatePaymentStatus(ctx context.Context, actor Actor, id uuid.UUID, status string) (*model.Order, error)
	SummaryByTender(ctx context.Context, tenderID *uuid.UUID) ([]model.TenderOrderSummary, error)
}

type orderService struct {
	repo         repository.OrderRepository
	tenderRepo   repository.TenderRepository
	requisitions RequisitionService
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	events       EventPublisher
}

func NewOrderService(
	repo repository.OrderRepository,
	tenderRepo repository.TenderRepository,
	requisitions RequisitionService,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	events EventPublisher,
) OrderService {
	return &orderService{
		repo:         repo,
		tenderRepo:   tenderRepo,
		requisitions: requisitions,
		auditRepo:    auditRepo,
		txManager:    txManager,
		events:       publisherOrNop(events),
	}
}

// CreateOrder places the supplier's bid on an active tender. One order per supplier and tender.
func (s *orderService) CreateOrder(ctx context.Context, actor Actor, req CreateOrderRequest) (*model.Order, error) {
	if actor.Role != workflow.RoleSupplier {
		return nil, forbidden("only suppliers can place orders")
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, invalid("amount must be greater than zero")
	}

	order := &model.Order{
		TenderID:      req.TenderID,
		UserID:        actor.ID,
		Amount:        req.Amount,
		Notes:         req.Notes,
		Status:        model.OrderPending,
		PaymentStatus: model.PaymentUnpaid,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		tender, err := s.tenderRepo.FindByID(txCtx, req.TenderID)
		if err != nil {
			return err
		}
		if tender.Status != model.TenderActive {
			return fmt.Errorf("%w: tender %s is %s", domain.ErrInvalidStage, tender.ReferenceNo, tender.Status)
		}

		existing, err := s.repo.FindByUserAndTender(txCtx, actor.ID, req.TenderID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: order %s already placed on tender %s", domain.ErrConflict, existing.ID, tender.ReferenceNo)
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		if err := s.repo.Create(txCtx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		audit := model.NewAuditLog(actor.ID, model.ActionCreateOrder, order.ID.String(), tender.ReferenceNo, map[string]interface{}{
			"tender_id": tender.ID,
			"amount":    order.Amount.StringFixed(2),
		})
		return s.auditRepo.Log(txCtx, audit)
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(EventOrderCreated, map[string]interface{}{"id": order.ID, "tender_id": order.TenderID})
	return order, nil
}

// ListOrders lists orders; suppliers only see their own.
func (s *orderService) ListOrders(ctx context.Context, actor Actor, f OrderListFilter) ([]model.Order, int64, error) {
	filter := repository.OrderFilter{TenderID: f.TenderID, Status: model.OrderStatus(f.Status)}
	if actor.Role == workflow.RoleSupplier {
		filter.UserID = &actor.ID
	}
	filter.Page, filter.Limit = normalizePage(f.Page, f.Limit)
	return s.repo.List(ctx, filter)
}

func (s *orderService) GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*model.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == workflow.RoleSupplier && order.UserID != actor.ID {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	return order, nil
}

// supplierActions are the moves a supplier may make on their own order.
var supplierActions = map[string]bool{
	model.OrderActionCancel:   true,
	model.OrderActionComplete: true,
}

// mayApplyOrderAction reports whether role can apply action. Procurement Officers run the
// bid lifecycle; the Warehouse Officer only confirms delivery.
func mayApplyOrderAction(role workflow.Role, action string) bool {
	switch role {
	case workflow.RoleProcurement:
		return true
	case workflow.RoleWarehouse:
		return action == model.OrderActionDelivered
	case workflow.RoleSupplier:
		return supplierActions[action]
	}
	return false
}

// UpdateOrderStatusByAction sets the status mapped from action. Delivering an order also
// delivers the tender's source document in the same transaction.
func (s *orderService) UpdateOrderStatusByAction(ctx context.Context, actor Actor, id uuid.UUID, action string) (*model.Order, error) {
	status, ok := model.StatusForAction(action)
	if !ok {
		return nil, invalid("unknown order action %q", action)
	}
	if !mayApplyOrderAction(actor.Role, action) {
		if actor.Role == workflow.RoleSupplier {
			return nil, forbidden("suppliers may only cancel or complete their orders")
		}
		return nil, forbidden("%s cannot %s orders", actor.Role, action)
	}

	var (
		from          model.OrderStatus
		notifyCascade func()
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.FindForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if actor.Role == workflow.RoleSupplier && order.UserID != actor.ID {
			return fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
		}
		from = order.Status

		if from == status && status == model.OrderDelivered {
			return nil
		}
		if from.IsFinal() {
			return fmt.Errorf("%w: order %s is already %s", domain.ErrInvalidStage, id, from)
		}
		if err := s.repo.UpdateStatus(txCtx, id, from, status); err != nil {
			return err
		}

		audit := model.NewAuditLog(actor.ID, model.ActionUpdateOrderStatus, id.String(), string(status), map[string]interface{}{
			"action": action,
			"from":   from,
			"to":     status,
		})
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}

		if status == model.OrderDelivered {
			notifyCascade, err = s.cascadeDelivery(txCtx, order)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != status {
		s.events.Publish(EventOrderStatusChanged, map[string]interface{}{"id": id, "from": from, "to": status})
	}
	if notifyCascade != nil {
		notifyCascade()
	}
	return s.repo.FindByID(ctx, id)
}

// cascadeDelivery marks the tender's source document delivered. A missing tender or document is
// logged and tolerated; any other failure aborts the order update. The returned func publishes the
// source's stage change and is nil when nothing changed.
func (s *orderService) cascadeDelivery(ctx context.Context, order *model.Order) (func(), error) {
	tender, err := s.tenderRepo.FindByID(ctx, order.TenderID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("[order] delivery cascade skipped for order %s: tender %s not found", order.ID, order.TenderID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delivery cascade: %w", err)
	}

	kind, sourceID := tender.Source()
	notify, err := s.requisitions.ApplyDelivery(ctx, kind, sourceID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("[order] delivery cascade skipped for order %s: %s %s not found", order.ID, kind, sourceID)
		return nil, nil
	}
	if err != nil {
		log.Printf("[order] delivery cascade failed for order %s on %s %s: %v", order.ID, kind, sourceID, err)
		return nil, fmt.Errorf("delivery cascade: %w", err)
	}
	if notify == nil {
		return nil, nil
	}

	audit := model.NewAuditLog(uuid.Nil, model.ActionDeliveryCascade, sourceID.String(), tender.ReferenceNo, map[string]interface{}{
		"order_id":    order.ID,
		"source_kind": kind,
	})
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		return nil, fmt.Errorf("failed to write audit log: %w", err)
	}
	return notify, nil
}

func (s *orderService) UpdatePaymentStatus(ctx context.Context, actor Actor, id uuid.UUID, status string) (*model.Order, error) {
	ps, ok := model.ParsePaymentStatus(status)
	if !ok {
		return nil, invalid("unknown payment status %q", status)
	}
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.UpdatePaymentStatus(txCtx, id, ps); err != nil {
			return err
		}
		audit := model.NewAuditLog(actor.ID, model.ActionUpdateOrderPayment, id.String(), string(ps), nil)
		return s.auditRepo.Log(txCtx, audit)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *orderService) SummaryByTender(ctx context.Context, tenderID *uuid.UUID) ([]model.TenderOrderSummary, error) {
	return s.repo.SummaryByTender(ctx, tenderID)
}
