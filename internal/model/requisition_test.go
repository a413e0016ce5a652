package model

import (
	"testing"
	"time"

	"procurement/internal/domain"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(qty int, cost string) LineItem {
	return LineItem{Description: "item", Qty: qty, ApproxCost: decimal.RequireFromString(cost)}
}

func TestTotalCostIsDerivedOnSave(t *testing.T) {
	df := &DemandForm{Items: []LineItem{item(2, "50"), item(1, "30")}}
	df.TotalCost = decimal.NewFromInt(999)

	require.NoError(t, df.BeforeSave(nil))
	assert.True(t, df.TotalCost.Equal(decimal.NewFromInt(130)), "got %s", df.TotalCost)

	df.Items = df.Items[:1]
	require.NoError(t, df.BeforeSave(nil))
	assert.True(t, df.TotalCost.Equal(decimal.NewFromInt(100)))
}

func TestRequestTotalCostUsesDecimals(t *testing.T) {
	rq := &Request{Items: []LineItem{item(3, "0.10"), item(1, "0.20")}}
	require.NoError(t, rq.BeforeSave(nil))
	assert.Equal(t, "0.50", rq.TotalCost.StringFixed(2))
}

func TestItemValidation(t *testing.T) {
	err := (&Request{Items: []LineItem{item(0, "10")}}).BeforeSave(nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = (&DemandForm{Items: []LineItem{item(1, "-1")}}).BeforeSave(nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.NoError(t, ValidateItems([]LineItem{item(1, "0")}))
}

func TestApplyMatchesChangeColumns(t *testing.T) {
	tr, err := workflow.Resolve(workflow.KindDemandForm, workflow.StageLogistics, workflow.ActionApprove, workflow.RoleLogistics)
	require.NoError(t, err)

	actor := uuid.New()
	at := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	c := tr.Change(actor, at, "")

	var r Requisition
	r.RequestStage = workflow.StageLogistics
	r.Apply(c)

	assert.Equal(t, workflow.StageBursar, r.RequestStage)
	require.NotNil(t, r.IsApproved)
	assert.False(t, *r.IsApproved)
	assert.True(t, r.LogisticsIsApproved)
	assert.Equal(t, actor, *r.LogisticsUserID)
	assert.Equal(t, at, *r.LogisticsCreatedAt)

	cols := ChangeColumns(c)
	assert.Equal(t, "Bursar", cols["request_stage"])
	assert.Equal(t, true, cols["logistics_is_approved"])
	assert.Equal(t, actor, cols["logistics_user_id"])
	assert.NotContains(t, cols, "rejection_reason")
}

func TestRejectionClearsIsApproved(t *testing.T) {
	tr, err := workflow.Resolve(workflow.KindRequest, workflow.StageRector, workflow.ActionReject, workflow.RoleRector)
	require.NoError(t, err)
	c := tr.Change(uuid.New(), time.Now(), "not needed this term")

	var r Requisition
	r.RequestStage = workflow.StageRector
	pending := false
	r.IsApproved = &pending
	r.Apply(c)

	assert.Nil(t, r.IsApproved)
	assert.Equal(t, workflow.StageRejectedRector, r.RequestStage)
	assert.Equal(t, "not needed this term", r.RejectionReason)
	assert.False(t, r.RectorIsApproved)
	assert.NotNil(t, r.RectorCreatedAt)

	cols := ChangeColumns(c)
	assert.Equal(t, "not needed this term", cols["rejection_reason"])
	assert.Nil(t, cols["is_approved"].(*bool))
}

func TestStageExtras(t *testing.T) {
	balance := decimal.NewFromInt(150)
	notes := "stock checked"
	extras := StageExtras{
		Budget:     &BursarBudget{BalanceAvailable: &balance, VoteParticulars: "Vote 12"},
		LogEntries: []LogisticsLogEntry{{SrNo: 1, StockAvailable: 4}},
		LogNotes:   &notes,
	}

	cols := extras.Columns(workflow.KindDemandForm)
	assert.Contains(t, cols, "budget_balance_available")
	assert.Contains(t, cols, "log_entries")
	assert.Equal(t, "stock checked", cols["log_notes"])

	assert.NotContains(t, extras.Columns(workflow.KindRequest), "budget_balance_available")

	df := &DemandForm{}
	extras.ApplyTo(df)
	assert.Equal(t, "Vote 12", df.Budget.VoteParticulars)
	assert.Len(t, df.LogEntries, 1)
	assert.Equal(t, "stock checked", df.LogNotes)
}

func TestNewRecordAndNumbers(t *testing.T) {
	rec, err := NewRecord(workflow.KindDemandForm)
	require.NoError(t, err)
	assert.Equal(t, workflow.KindDemandForm, rec.Kind())

	_, err = NewRecord("invoice")
	assert.ErrorIs(t, err, domain.ErrValidation)

	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "DF-20260309-", NumberPrefix(workflow.KindDemandForm, day))
	assert.Equal(t, "RQ-20260309-", NumberPrefix(workflow.KindRequest, day))
	assert.Equal(t, "TN-20260309-", TenderNumberPrefix(day))
}
