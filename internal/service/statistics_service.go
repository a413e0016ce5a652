package service

import (
	"context"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"

	"github.com/shopspring/decimal"
)

type StatisticsService interface {
	GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.StatisticsResponse, error)
}

type statisticsService struct {
	repo repository.StatisticsRepository
}

func NewStatisticsService(repo repository.StatisticsRepository) StatisticsService {
	return &statisticsService{repo: repo}
}

// GetStatistics aggregates documents created inside [startDate, endDate].
func (s *statisticsService) GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.StatisticsResponse, error) {
	if endDate.Before(startDate) {
		return model.StatisticsResponse{}, invalid("end_date %s is before start_date %s",
			endDate.Format(time.RFC3339), startDate.Format(time.RFC3339))
	}
	res := model.StatisticsResponse{
		TimeRangeStartDate: startDate,
		TimeRangeEndDate:   endDate,
		DeliveredValue:     decimal.Zero,
	}

	var err error
	if res.DemandForms, err = s.repo.StageCounts(ctx, workflow.KindDemandForm, startDate, endDate); err != nil {
		return res, err
	}
	if res.Requests, err = s.repo.StageCounts(ctx, workflow.KindRequest, startDate, endDate); err != nil {
		return res, err
	}
	if res.Tenders, err = s.repo.TenderStatusCounts(ctx, startDate, endDate); err != nil {
		return res, err
	}
	if res.Orders, err = s.repo.OrderStatusCounts(ctx, startDate, endDate); err != nil {
		return res, err
	}

	for _, row := range res.Orders {
		if row.Status == string(model.OrderDelivered) {
			res.DeliveredValue = res.DeliveredValue.Add(row.Amount)
		}
	}
	return res, nil
}
