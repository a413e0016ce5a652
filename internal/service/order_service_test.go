package service

import (
	"context"
	"testing"

	"procurement/internal/domain"
	"procurement/internal/model"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) placeOrder(t *testing.T, supplier Actor, tenderID uuid.UUID, amount string) *model.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), supplier, CreateOrderRequest{TenderID: tenderID, Amount: cost(amount)})
	require.NoError(t, err)
	return order
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tender := f.openTender(t, workflow.KindRequest, f.approveToProcurement(t, workflow.KindRequest))

	order := f.placeOrder(t, f.supplier, tender.ID, "120.50")
	assert.Equal(t, model.OrderPending, order.Status)
	assert.Equal(t, model.PaymentUnpaid, order.PaymentStatus)
	assert.Equal(t, f.supplier.ID, order.UserID)

	_, err := f.orders.CreateOrder(ctx, f.supplier, CreateOrderRequest{TenderID: tender.ID, Amount: cost("99")})
	assert.ErrorIs(t, err, domain.ErrConflict, "one order per supplier and tender")

	other := newActor(workflow.RoleSupplier)
	f.placeOrder(t, other, tender.ID, "99")

	_, err = f.orders.CreateOrder(ctx, f.procurement, CreateOrderRequest{TenderID: tender.ID, Amount: cost("1")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.orders.CreateOrder(ctx, newActor(workflow.RoleSupplier), CreateOrderRequest{TenderID: tender.ID, Amount: cost("0")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.orders.CreateOrder(ctx, newActor(workflow.RoleSupplier), CreateOrderRequest{TenderID: uuid.New(), Amount: cost("1")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderOnClosedTender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tender := f.openTender(t, workflow.KindRequest, f.approveToProcurement(t, workflow.KindRequest))
	_, err := f.tenders.CloseTender(ctx, f.procurement, tender.ID)
	require.NoError(t, err)

	_, err = f.orders.CreateOrder(ctx, f.supplier, CreateOrderRequest{TenderID: tender.ID, Amount: cost("10")})
	assert.ErrorIs(t, err, domain.ErrInvalidStage)
}

func TestSupplierVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tender := f.openTender(t, workflow.KindRequest, f.approveToProcurement(t, workflow.KindRequest))
	mine := f.placeOrder(t, f.supplier, tender.ID, "10")
	theirs := f.placeOrder(t, newActor(workflow.RoleSupplier), tender.ID, "11")

	list, total, err := f.orders.ListOrders(ctx, f.supplier, OrderListFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, mine.ID, list[0].ID)

	_, total, err = f.orders.ListOrders(ctx, f.procurement, OrderListFilter{TenderID: &tender.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	_, err = f.orders.GetOrder(ctx, f.supplier, theirs.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.orders.UpdateOrderStatusByAction(ctx, f.supplier, theirs.ID, model.OrderActionCancel)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderStatusActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tender := f.openTender(t, workflow.KindRequest, f.approveToProcurement(t, workflow.KindRequest))
	order := f.placeOrder(t, f.supplier, tender.ID, "10")

	_, err := f.orders.UpdateOrderStatusByAction(ctx, f.procurement, order.ID, "ship")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.orders.UpdateOrderStatusByAction(ctx, f.supplier, order.ID, model.OrderActionApprove)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.orders.UpdateOrderStatusByAction(ctx, f.procurement, order.ID, model.OrderActionApprove)
	require.NoError(t, err)
	assert.Equal(t, model.OrderApproved, got.Status)

	got, err = f.orders.UpdateOrderStatusByAction(ctx, f.supplier, order.ID, model.OrderActionComplete)
	require.NoError(t, err)
	assert.Equal(t, model.OrderShipped, got.Status)

	got, err = f.orders.UpdateOrderStatusByAction(ctx, f.supplier, order.ID, model.OrderActionCancel)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, got.Status)

	_, err = f.orders.UpdateOrderStatusByAction(ctx, f.procurement, order.ID, model.OrderActionApprove)
	assert.ErrorIs(t, err, domain.ErrInvalidStage, "cancelled is final")
}

func TestDeliveredOrderDeliversSource(t *testing.T) {
	for _, kind := range []workflow.Kind{workflow.KindRequest, workflow.KindDemandForm} {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			sourceID := f.approveToProcurement(t, kind)
			tender := f.openTender(t, kind, sourceID)
			order := f.placeOrder(t, f.supplier, tender.ID, "10")

			got, err := f.orders.UpdateOrderStatusByAction(ctx, f.procurement, order.ID, model.OrderActionDelivered)
			require.NoError(t, err)
			assert.Equal(t, model.OrderDelivered, got.Status)

			rec, err := f.requisitions.Get(ctx, kind, sourceID)
			require.NoError(t, err)
			assert.Equal(t, workflow.StageDelivered, rec.Base().RequestStage)
			assert.True(t, rec.Base().WarehouseIsApproved)
			assert.Contains(t, f.st.auditActions(), model.ActionDeliveryCascade)
			names := f.events.names()
			assert.Equal(t, []string{EventOrderStatusChanged, EventStageChanged}, names[len(names)-2:])

			cascades := len(f.st.audits)
			got, err = f.orders.UpdateOrderStatusByAction(ctx, f.procurement, order.ID, model.OrderActionDelivered)
			require.NoError(t, err, "re-delivering is a no-op")
			assert.Equal(t, model.OrderDelivered, got.Status)
			assert.Len(t, f.st.audits, cascades)
		})
	}
}

func TestDeliveryCascadeFailureRollsBackOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sourceID := f.approveToProcurement(t, workflow.KindRequest)
	tender := f.openTender(t, workflow.KindRequest, sourceID)
	order := f.placeOrder(t, f.supplier, tender.ID, "10")
	audits, events := len(f.st.audits), len(f.events.events)

	// the source transition succeeds, then the cascade's own audit row fails
	f.st.failAudit = model.ActionDeliveryCascade
	_, err := f.orders.UpdateOrderStatusByAction(ctx, f.procurement, order.ID, model.OrderActionDelivered)
	require.Error(t, err)

	assert.Equal(t, model.OrderPending, f.st.orders[order.ID].Status)
	assert.Equal(t, workflow.StageProcurement, f.st.requests[sourceID].RequestStage)
	assert.Len(t, f.st.audits, audits)
	assert.Len(t, f.events.events, events, "nothing published for a rolled back delivery")

	f.st.failAudit = ""
	got, err := f.orders.UpdateOrderStatusByAction(ctx, f.procurement, order.ID, model.OrderActionDelivered)
	require.NoError(t, err)
	assert.Equal(t, model.OrderDelivered, got.Status)
	assert.Equal(t, workflow.StageDelivered, f.st.requests[sourceID].RequestStage)
}

func TestOrderStatusRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sourceID := f.approveToProcurement(t, workflow.KindRequest)
	tender := f.openTender(t, workflow.KindRequest, sourceID)
	order := f.placeOrder(t, f.supplier, tender.ID, "10")

	for _, a := range []Actor{f.hod, f.logistics, f.bursar, f.rector, f.admin} {
		for _, action := range []string{model.OrderActionApprove, model.OrderActionReject, model.OrderActionDelivered} {
			_, err := f.orders.UpdateOrderStatusByAction(ctx, a, order.ID, action)
			assert.ErrorIs(t, err, domain.ErrForbidden, "%s %s", a.Role, action)
		}
	}
	_, err := f.orders.UpdateOrderStatusByAction(ctx, f.warehouse, order.ID, model.OrderActionApprove)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Equal(t, model.OrderPending, f.st.orders[order.ID].Status)
	assert.Equal(t, workflow.StageProcurement, f.st.requests[sourceID].RequestStage)

	got, err := f.orders.UpdateOrderStatusByAction(ctx, f.warehouse, order.ID, model.OrderActionDelivered)
	require.NoError(t, err)
	assert.Equal(t, model.OrderDelivered, got.Status)
	assert.Equal(t, workflow.StageDelivered, f.st.requests[sourceID].RequestStage)
}

func TestDeliveryCascadeToleratesMissingSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sourceID := f.approveToProcurement(t, workflow.KindRequest)
	tender := f.openTender(t, workflow.KindRequest, sourceID)
	order := f.placeOrder(t, f.supplier, tender.ID, "10")
	delete(f.st.requests, sourceID)

	got, err := f.orders.UpdateOrderStatusByAction(ctx, f.procurement, order.ID, model.OrderActionDelivered)
	require.NoError(t, err)
	assert.Equal(t, model.OrderDelivered, got.Status)
	assert.NotContains(t, f.st.auditActions(), model.ActionDeliveryCascade)
}

func TestPaymentStatusAndSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tender := f.openTender(t, workflow.KindRequest, f.approveToProcurement(t, workflow.KindRequest))
	a := f.placeOrder(t, f.supplier, tender.ID, "40")
	f.placeOrder(t, newActor(workflow.RoleSupplier), tender.ID, "25.50")

	_, err := f.orders.UpdatePaymentStatus(ctx, f.procurement, a.ID, "refunded")
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.orders.UpdatePaymentStatus(ctx, f.procurement, a.ID, "paid")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)

	summary, err := f.orders.SummaryByTender(ctx, &tender.ID)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.EqualValues(t, 2, summary[0].TotalOrders)
	assert.True(t, summary[0].TotalAmount.Equal(cost("65.50")))
	assert.True(t, summary[0].LowestAmount.Equal(cost("25.50")))
	assert.Equal(t, tender.ReferenceNo, summary[0].ReferenceNo)
}
