package service

import (
	"context"
	"testing"
	"time"

	"procurement/internal/model"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type fixture struct {
	st     *store
	events *fakePublisher

	requisitions RequisitionService
	tenders      TenderService
	orders       OrderService
	users        UserService
	audits       AuditService

	hod, otherHOD, logistics, bursar, rector, procurement, warehouse, supplier, admin Actor
}

func newActor(role workflow.Role) Actor {
	return Actor{ID: uuid.New(), Role: role}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newStore()
	events := &fakePublisher{}
	tx := fakeTx{st: st}
	reqRepo := fakeRequisitionRepo{st: st}
	auditRepo := fakeAuditRepo{st: st}

	requisitions := NewRequisitionService(reqRepo, auditRepo, tx, events)
	f := &fixture{
		st:           st,
		events:       events,
		requisitions: requisitions,
		tenders:      NewTenderService(fakeTenderRepo{st: st}, reqRepo, auditRepo, tx, events),
		orders:       NewOrderService(fakeOrderRepo{st: st}, fakeTenderRepo{st: st}, requisitions, auditRepo, tx, events),
		users:        NewUserService(fakeUserRepo{st: st}, auditRepo, tx, AuthSettings{Secret: testSecret}),
		audits:       NewAuditService(auditRepo),

		hod:         newActor(workflow.RoleHOD),
		otherHOD:    newActor(workflow.RoleHOD),
		logistics:   newActor(workflow.RoleLogistics),
		bursar:      newActor(workflow.RoleBursar),
		rector:      newActor(workflow.RoleRector),
		procurement: newActor(workflow.RoleProcurement),
		warehouse:   newActor(workflow.RoleWarehouse),
		supplier:    newActor(workflow.RoleSupplier),
		admin:       newActor(workflow.RoleSuperAdmin),
	}
	return f
}

func cost(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// sampleRequisition totals 2*50 + 1*30 = 130.
func sampleRequisition() CreateRequisitionRequest {
	return CreateRequisitionRequest{
		Department:      "Engineering",
		Requirement:     "Lab consumables",
		RequirementType: "Routine",
		Items: []LineItemRequest{
			{Description: "Multimeter", Qty: 2, ApproxCost: cost("50")},
			{Description: "Soldering kit", Qty: 1, ApproxCost: cost("30")},
		},
	}
}

func (f *fixture) create(t *testing.T, kind workflow.Kind) uuid.UUID {
	t.Helper()
	rec, err := f.requisitions.Create(context.Background(), f.hod, kind, sampleRequisition())
	require.NoError(t, err)
	return rec.Key()
}

func budget(balance string) *BudgetRequest {
	return &BudgetRequest{
		ProvisionsAvailability: "1000",
		VoteParticulars:        "Vote 12-3 Lab equipment",
		ProvisionsAllocated:    "500",
		TotalExpenditure:       "200",
		BalanceAvailable:       balance,
	}
}

var approve = ReviewRequest{Decision: DecisionApprove}

// approveToProcurement walks a fresh document up to a procurement-approved state.
func (f *fixture) approveToProcurement(t *testing.T, kind workflow.Kind) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := f.create(t, kind)

	_, err := f.requisitions.Submit(ctx, f.hod, kind, id)
	require.NoError(t, err)
	_, err = f.requisitions.ReviewLogistics(ctx, f.logistics, kind, id, LogisticsReviewRequest{ReviewRequest: approve})
	require.NoError(t, err)
	if kind == workflow.KindDemandForm {
		_, err = f.requisitions.ReviewBursar(ctx, f.bursar, id, BursarReviewRequest{ReviewRequest: approve, Budget: budget("150")})
		require.NoError(t, err)
	}
	_, err = f.requisitions.ReviewRector(ctx, f.rector, kind, id, approve)
	require.NoError(t, err)
	_, err = f.requisitions.ReviewProcurement(ctx, f.procurement, kind, id, approve)
	require.NoError(t, err)
	return id
}

func (f *fixture) openTender(t *testing.T, kind workflow.Kind, sourceID uuid.UUID) *model.Tender {
	t.Helper()
	req := CreateTenderRequest{Title: "Lab consumables", ClosingDate: time.Now().Add(72 * time.Hour)}
	if kind == workflow.KindDemandForm {
		req.DemandFormID = &sourceID
	} else {
		req.RequestID = &sourceID
	}
	tender, err := f.tenders.CreateTender(context.Background(), f.procurement, req)
	require.NoError(t, err)
	return tender
}
