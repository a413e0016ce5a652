package repository

import (
	"context"
	"fmt"
	"time"

	"procurement/internal/model"
	"procurement/internal/workflow"

	"gorm.io/gorm"
)

// StatisticsRepository runs the dashboard aggregates. Every window is on created_at, inclusive.
type StatisticsRepository interface {
	StageCounts(ctx context.Context, kind workflow.Kind, start, end time.Time) ([]model.StageCount, error)
	TenderStatusCounts(ctx context.Context, start, end time.Time) ([]model.StatusCount, error)
	OrderStatusCounts(ctx context.Context, start, end time.Time) ([]model.StatusCount, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

func (r *statisticsRepository) StageCounts(ctx context.Context, kind workflow.Kind, start, end time.Time) ([]model.StageCount, error) {
	var rows []model.StageCount
	if err := GetDB(ctx, r.db).Table(tableFor(kind)).
		Select("request_stage AS stage, COUNT(*) AS count, COALESCE(SUM(total_cost), 0) AS total_cost").
		Where("created_at >= ? AND created_at <= ?", start, end).
		Group("request_stage").
		Order("count DESC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count %s by stage: %w", tableFor(kind), err)
	}
	return rows, nil
}

func (r *statisticsRepository) TenderStatusCounts(ctx context.Context, start, end time.Time) ([]model.StatusCount, error) {
	var rows []model.StatusCount
	if err := GetDB(ctx, r.db).Table("tenders").
		Select("status, COUNT(*) AS count, 0 AS amount").
		Where("created_at >= ? AND created_at <= ?", start, end).
		Group("status").
		Order("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count tenders by status: %w", err)
	}
	return rows, nil
}

func (r *statisticsRepository) OrderStatusCounts(ctx context.Context, start, end time.Time) ([]model.StatusCount, error) {
	var rows []model.StatusCount
	if err := GetDB(ctx, r.db).Table("orders").
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Where("created_at >= ? AND created_at <= ?", start, end).
		Group("status").
		Order("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders by status: %w", err)
	}
	return rows, nil
}
