package model

import (
	"time"

	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TenderOrderSummary aggregates the orders placed on one tender
type TenderOrderSummary struct {
	TenderID       uuid.UUID       `json:"tender_id"`
	ReferenceNo    string          `json:"reference_no"`
	Title          string          `json:"title"`
	TenderStatus   TenderStatus    `json:"tender_status"`
	TotalOrders    int64           `json:"total_orders"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DeliveredCount int64           `json:"delivered_count"`
	LowestAmount   decimal.Decimal `json:"lowest_amount"`
}

// StageCount is the number of requisitions sitting at one stage and their combined cost.
type StageCount struct {
	Stage     workflow.Stage  `json:"stage"`
	Count     int64           `json:"count"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// StatusCount groups tenders or orders by status. Amount is zero for tenders.
type StatusCount struct {
	Status string          `json:"status"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// StatisticsResponse feeds the role dashboards for one creation-date window.
type StatisticsResponse struct {
	TimeRangeStartDate time.Time       `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time       `json:"time_range_end_date"`
	DemandForms        []StageCount    `json:"demand_forms"`
	Requests           []StageCount    `json:"requests"`
	Tenders            []StatusCount   `json:"tenders"`
	Orders             []StatusCount   `json:"orders"`
	DeliveredValue     decimal.Decimal `json:"delivered_value"`
}
