package repository

import (
	"context"
	"fmt"
	"time"

	"procurement/internal/domain"
	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderFilter struct {
	UserID   *uuid.UUID
	TenderID *uuid.UUID
	Status   model.OrderStatus
	Page     int
	Limit    int
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error)
	FindByUserAndTender(ctx context.Context, userID, tenderID uuid.UUID) (*model.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error
	SummaryByTender(ctx context.Context, tenderID *uuid.UUID) ([]model.TenderOrderSummary, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return translate(GetDB(ctx, r.db).Create(order).Error)
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := GetDB(ctx, r.db).
		Preload("Tender").
		Preload("User").
		First(&order, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepository) FindByUserAndTender(ctx context.Context, userID, tenderID uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := GetDB(ctx, r.db).
		Where("user_id = ? AND tender_id = ?", userID, tenderID).
		First(&order).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func applyOrderFilter(query *gorm.DB, f OrderFilter) *gorm.DB {
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.TenderID != nil {
		query = query.Where("tender_id = ?", *f.TenderID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	return query
}

func (r *orderRepository) List(ctx context.Context, f OrderFilter) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	db := GetDB(ctx, r.db)
	if err := applyOrderFilter(db.Model(&model.Order{}), f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	if err := applyOrderFilter(db.Preload("Tender").Preload("User"), f).
		Order("created_at DESC").
		Offset(offset).
		Limit(f.Limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatus moves an order from one status to another; zero rows means someone else moved it first.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) error {
	res := GetDB(ctx, r.db).Model(&model.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %s is no longer %s", domain.ErrInvalidStage, id, from)
	}
	return nil
}

func (r *orderRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error {
	res := GetDB(ctx, r.db).Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"payment_status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	return nil
}

// SummaryByTender aggregates orders per tender, most contested tenders first.
func (r *orderRepository) SummaryByTender(ctx context.Context, tenderID *uuid.UUID) ([]model.TenderOrderSummary, error) {
	var rows []model.TenderOrderSummary
	query := GetDB(ctx, r.db).Table("orders").
		Select(`tenders.id AS tender_id, tenders.reference_no, tenders.title, tenders.status AS tender_status,
			COUNT(orders.id) AS total_orders,
			COALESCE(SUM(orders.amount), 0) AS total_amount,
			COUNT(orders.id) FILTER (WHERE orders.status = ?) AS delivered_count,
			COALESCE(MIN(orders.amount), 0) AS lowest_amount`, model.OrderDelivered).
		Joins("JOIN tenders ON tenders.id = orders.tender_id")
	if tenderID != nil {
		query = query.Where("orders.tender_id = ?", *tenderID)
	}
	if err := query.
		Group("tenders.id, tenders.reference_no, tenders.title, tenders.status").
		Order("total_orders DESC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to summarise orders: %w", err)
	}
	return rows, nil
}
