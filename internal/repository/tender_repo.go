package repository

import (
	"context"
	"fmt"
	"time"

	"procurement/internal/domain"
	"procurement/internal/model"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TenderFilter struct {
	Status model.TenderStatus
	Page   int
	Limit  int
}

type TenderRepository interface {
	Create(ctx context.Context, tender *model.Tender) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Tender, error)
	FindActiveBySource(ctx context.Context, kind workflow.Kind, sourceID uuid.UUID) (*model.Tender, error)
	LockSource(ctx context.Context, sourceID uuid.UUID) error
	List(ctx context.Context, filter TenderFilter) ([]model.Tender, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.TenderStatus) error
	CloseExpired(ctx context.Context, now time.Time) ([]model.Tender, error)
	NextReferenceNo(ctx context.Context, day time.Time) (string, error)
}

type tenderRepository struct {
	db *gorm.DB
}

func NewTenderRepository(db *gorm.DB) TenderRepository {
	return &tenderRepository{db: db}
}

func (r *tenderRepository) Create(ctx context.Context, tender *model.Tender) error {
	return translate(GetDB(ctx, r.db).Create(tender).Error)
}

func (r *tenderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Tender, error) {
	var tender model.Tender
	if err := GetDB(ctx, r.db).First(&tender, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &tender, nil
}

// FindActiveBySource returns the active tender for a source document, or ErrNotFound.
func (r *tenderRepository) FindActiveBySource(ctx context.Context, kind workflow.Kind, sourceID uuid.UUID) (*model.Tender, error) {
	var tender model.Tender
	err := GetDB(ctx, r.db).
		Where(model.SourceColumn(kind)+" = ? AND status = ?", sourceID, model.TenderActive).
		First(&tender).Error
	if err != nil {
		return nil, translate(err)
	}
	return &tender, nil
}

// LockSource serialises tender creation per source document until the transaction ends.
func (r *tenderRepository) LockSource(ctx context.Context, sourceID uuid.UUID) error {
	return GetDB(ctx, r.db).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "tender:"+sourceID.String()).Error
}

func (r *tenderRepository) List(ctx context.Context, f TenderFilter) ([]model.Tender, int64, error) {
	var tenders []model.Tender
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Tender{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	fetch := db.Order("created_at DESC").Offset(offset).Limit(f.Limit)
	if f.Status != "" {
		fetch = fetch.Where("status = ?", f.Status)
	}
	if err := fetch.Find(&tenders).Error; err != nil {
		return nil, 0, err
	}
	return tenders, total, nil
}

func (r *tenderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.TenderStatus) error {
	res := GetDB(ctx, r.db).Model(&model.Tender{}).
		Session(&gorm.Session{SkipHooks: true}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: tender %s is not %s", domain.ErrInvalidStage, id, from)
	}
	return nil
}

// CloseExpired closes every active tender whose closing date has passed and returns them.
func (r *tenderRepository) CloseExpired(ctx context.Context, now time.Time) ([]model.Tender, error) {
	var closed []model.Tender
	err := GetDB(ctx, r.db).Model(&closed).
		Session(&gorm.Session{SkipHooks: true}).
		Clauses(clause.Returning{}).
		Where("status = ? AND closing_date < ?", model.TenderActive, now).
		Updates(map[string]interface{}{"status": model.TenderClosed, "updated_at": now}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to close expired tenders: %w", err)
	}
	return closed, nil
}

func (r *tenderRepository) NextReferenceNo(ctx context.Context, day time.Time) (string, error) {
	return nextNumber(GetDB(ctx, r.db), "tenders", "reference_no", model.TenderNumberPrefix(day))
}
