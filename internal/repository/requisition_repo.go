package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"procurement/internal/domain"
	"procurement/internal/model"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequisitionFilter narrows List. Queues, when set, restricts to rows matching any queue.
type RequisitionFilter struct {
	Stage           workflow.Stage
	Department      string
	RequirementType string
	CreatedBy       *uuid.UUID
	Queues          []workflow.Queue
	Page            int
	Limit           int
}

// RequisitionRepository persists demand forms and requests. Every method takes the kind so
// one implementation serves both tables.
type RequisitionRepository interface {
	Create(ctx context.Context, rec model.RequisitionRecord) error
	Find(ctx context.Context, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error)
	FindForUpdate(ctx context.Context, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error)
	SaveDraft(ctx context.Context, rec model.RequisitionRecord) error
	Delete(ctx context.Context, kind workflow.Kind, id uuid.UUID) error
	List(ctx context.Context, kind workflow.Kind, filter RequisitionFilter) ([]model.RequisitionRecord, int64, error)
	ApplyTransition(ctx context.Context, kind workflow.Kind, id uuid.UUID, procurementApproved bool, change workflow.Change, extras model.StageExtras) error
	NextNumber(ctx context.Context, kind workflow.Kind, day time.Time) (string, error)
}

type requisitionRepository struct {
	db *gorm.DB
}

func NewRequisitionRepository(db *gorm.DB) RequisitionRepository {
	return &requisitionRepository{db: db}
}

func tableFor(kind workflow.Kind) string {
	if kind == workflow.KindDemandForm {
		return "demand_forms"
	}
	return "requests"
}

func numberColumn(kind workflow.Kind) string {
	if kind == workflow.KindDemandForm {
		return "demand_no"
	}
	return "request_no"
}

func itemsBySrNo(db *gorm.DB) *gorm.DB {
	return db.Order("sr_no ASC")
}

func (r *requisitionRepository) Create(ctx context.Context, rec model.RequisitionRecord) error {
	return translate(GetDB(ctx, r.db).Create(rec).Error)
}

func (r *requisitionRepository) Find(ctx context.Context, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error) {
	rec, err := model.NewRecord(kind)
	if err != nil {
		return nil, err
	}
	if err := GetDB(ctx, r.db).Preload("Items", itemsBySrNo).First(rec, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return rec, nil
}

// FindForUpdate loads the row under FOR UPDATE without its items.
func (r *requisitionRepository) FindForUpdate(ctx context.Context, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error) {
	rec, err := model.NewRecord(kind)
	if err != nil {
		return nil, err
	}
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(rec, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return rec, nil
}

// SaveDraft replaces the record's items and rewrites its fields. Callers check the stage under lock first.
func (r *requisitionRepository) SaveDraft(ctx context.Context, rec model.RequisitionRecord) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("owner_id = ? AND owner_type = ?", rec.Key(), string(rec.Kind())).
		Delete(&model.LineItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	for i := range rec.LineItems() {
		rec.LineItems()[i].ID = uuid.Nil
	}
	return translate(db.Save(rec).Error)
}

func (r *requisitionRepository) Delete(ctx context.Context, kind workflow.Kind, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("owner_id = ? AND owner_type = ?", id, string(kind)).
		Delete(&model.LineItem{}).Error; err != nil {
		return fmt.Errorf("failed to delete items: %w", err)
	}
	rec, err := model.NewRecord(kind)
	if err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(rec)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	}
	return nil
}

func (r *requisitionRepository) List(ctx context.Context, kind workflow.Kind, f RequisitionFilter) ([]model.RequisitionRecord, int64, error) {
	db := GetDB(ctx, r.db)

	var total int64
	if err := applyRequisitionFilter(db.Table(tableFor(kind)), f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	query := applyRequisitionFilter(db.Preload("Items", itemsBySrNo), f).
		Order("created_at DESC").
		Offset(offset).
		Limit(f.Limit)

	var (
		out []model.RequisitionRecord
		err error
	)
	switch kind {
	case workflow.KindDemandForm:
		out, err = findRecords[model.DemandForm](query)
	case workflow.KindRequest:
		out, err = findRecords[model.Request](query)
	default:
		_, err = model.NewRecord(kind)
	}
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func findRecords[T any, P interface {
	*T
	model.RequisitionRecord
}](query *gorm.DB) ([]model.RequisitionRecord, error) {
	var rows []T
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.RequisitionRecord, 0, len(rows))
	for i := range rows {
		out = append(out, P(&rows[i]))
	}
	return out, nil
}

func applyRequisitionFilter(query *gorm.DB, f RequisitionFilter) *gorm.DB {
	if f.Stage != "" {
		query = query.Where("request_stage = ?", string(f.Stage))
	}
	if f.Department != "" {
		query = query.Where("department = ?", f.Department)
	}
	if f.RequirementType != "" {
		query = query.Where("requirement_type = ?", f.RequirementType)
	}
	if f.CreatedBy != nil {
		query = query.Where("created_by = ?", *f.CreatedBy)
	}
	if len(f.Queues) > 0 {
		parts := make([]string, 0, len(f.Queues))
		args := make([]interface{}, 0, len(f.Queues)*2)
		for _, q := range f.Queues {
			if q.ProcurementApproved != nil {
				parts = append(parts, "(request_stage = ? AND procurement_is_approved = ?)")
				args = append(args, string(q.Stage), *q.ProcurementApproved)
				continue
			}
			parts = append(parts, "request_stage = ?")
			args = append(args, string(q.Stage))
		}
		query = query.Where(strings.Join(parts, " OR "), args...)
	}
	return query
}

// ApplyTransition persists a workflow change with a single conditional update. The row must
// still be at change.From with the given procurement approval flag; otherwise nothing is written
// and the result is NotFound (row gone) or InvalidStage (row moved on).
func (r *requisitionRepository) ApplyTransition(ctx context.Context, kind workflow.Kind, id uuid.UUID, procurementApproved bool, change workflow.Change, extras model.StageExtras) error {
	cols := model.ChangeColumns(change)
	for k, v := range extras.Columns(kind) {
		cols[k] = v
	}

	db := GetDB(ctx, r.db)
	res := db.Table(tableFor(kind)).
		Where("id = ? AND request_stage = ? AND procurement_is_approved = ?", id, string(change.From), procurementApproved).
		Updates(cols)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := db.Table(tableFor(kind)).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	}
	return fmt.Errorf("%w: %s %s is no longer at stage %q", domain.ErrInvalidStage, kind, id, change.From)
}

func (r *requisitionRepository) NextNumber(ctx context.Context, kind workflow.Kind, day time.Time) (string, error) {
	return nextNumber(GetDB(ctx, r.db), tableFor(kind), numberColumn(kind), model.NumberPrefix(kind, day))
}
