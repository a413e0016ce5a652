package handler

import (
	"net/http"

	"procurement/internal/middleware"
	"procurement/internal/service"
	"procurement/internal/workflow"
	"procurement/pkg/pagination"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	service service.OrderService
}

func NewOrderHandler(s service.OrderService) *OrderHandler {
	return &OrderHandler{service: s}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/orders")
	{
		group.POST("", middleware.RequireRole(workflow.RoleSupplier), h.Create)
		group.GET("", middleware.RequireRole(), h.List)
		group.GET("/summary", middleware.RequireRole(staffRoles...), h.Summary)
		group.GET("/:id", middleware.RequireRole(), h.Get)
		group.PATCH("/:id/status", middleware.RequireRole(workflow.RoleSupplier, workflow.RoleProcurement, workflow.RoleWarehouse), h.UpdateStatus)
		group.PATCH("/:id/payment", middleware.RequireRole(staffRoles...), h.UpdatePayment)
	}
}

// Create submits a supplier bid against an active tender
// @Summary      Submit bid
// @Description  One order per supplier per tender. Amount must be positive.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateOrderRequest  true  "Bid"
// @Success      201      {object}  response.Response{data=model.Order}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/orders [post]
func (h *OrderHandler) Create(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.service.CreateOrder(c.Request.Context(), a, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

// List returns orders. Suppliers only see their own.
// @Summary      List orders
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        tender_id  query     string  false  "Filter by tender"
// @Param        status     query     string  false  "Filter by status"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Items per page (default 20)"
// @Success      200        {object}  response.Response{data=[]model.Order}
// @Router       /api/orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	tenderID, ok := queryID(c, "tender_id")
	if !ok {
		return
	}
	p := pagination.Parse(c)
	orders, total, err := h.service.ListOrders(c.Request.Context(), a, service.OrderListFilter{
		TenderID: tenderID,
		Status:   c.Query("status"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithMeta(http.StatusOK, orders, p.Meta(total)))
}

// Summary aggregates bids per tender
// @Summary      Bid summary per tender
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        tender_id  query     string  false  "Restrict to one tender"
// @Success      200        {object}  response.Response{data=[]model.TenderOrderSummary}
// @Router       /api/orders/summary [get]
func (h *OrderHandler) Summary(c *gin.Context) {
	tenderID, ok := queryID(c, "tender_id")
	if !ok {
		return
	}
	rows, err := h.service.SummaryByTender(c.Request.Context(), tenderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rows))
}

// @Summary      Get order
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=model.Order}
// @Failure      404  {object}  response.Response
// @Router       /api/orders/{id} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// UpdateStatus applies a status action. Delivery cascades to the source requisitions.
// @Summary      Update order status
// @Description  Suppliers may cancel or complete their own orders. The Warehouse Officer may only deliver.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                            true  "Order ID"
// @Param        payload  body      service.UpdateOrderStatusRequest  true  "Action"
// @Success      200      {object}  response.Response{data=model.Order}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/orders/{id}/status [patch]
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateOrderStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.service.UpdateOrderStatusByAction(c.Request.Context(), a, id, req.Action)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// @Summary      Update payment status
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                              true  "Order ID"
// @Param        payload  body      service.UpdatePaymentStatusRequest  true  "Payment status"
// @Success      200      {object}  response.Response{data=model.Order}
// @Router       /api/orders/{id}/payment [patch]
func (h *OrderHandler) UpdatePayment(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdatePaymentStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.service.UpdatePaymentStatus(c.Request.Context(), a, id, req.PaymentStatus)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}
