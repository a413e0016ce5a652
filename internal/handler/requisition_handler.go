package handler

import (
	"errors"
	"net/http"

	"procurement/internal/middleware"
	"procurement/internal/service"
	"procurement/internal/workflow"
	"procurement/pkg/pagination"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// staffRoles are every account role except Supplier.
var staffRoles = []workflow.Role{
	workflow.RoleHOD, workflow.RoleLogistics, workflow.RoleBursar, workflow.RoleWarehouse,
	workflow.RoleRector, workflow.RoleProcurement, workflow.RoleSuperAdmin,
}

// RequisitionHandler serves one requisition kind. Demand forms and requests share it.
type RequisitionHandler struct {
	service service.RequisitionService
	kind    workflow.Kind
}

func NewRequisitionHandler(s service.RequisitionService, kind workflow.Kind) *RequisitionHandler {
	return &RequisitionHandler{service: s, kind: kind}
}

func (h *RequisitionHandler) basePath() string {
	if h.kind == workflow.KindDemandForm {
		return "/api/demand-forms"
	}
	return "/api/requests"
}

func (h *RequisitionHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group(h.basePath())
	group.Use(middleware.RequireRole(staffRoles...))
	{
		group.POST("", h.Create)
		group.GET("", h.List)
		group.GET("/pending", h.ListPending)
		group.GET("/:id", h.Get)
		group.PUT("/:id", h.Update)
		group.DELETE("/:id", h.Delete)

		group.POST("/:id/submit", h.Submit)
		group.POST("/:id/logistics", h.ReviewLogistics)
		if h.kind == workflow.KindDemandForm {
			group.POST("/:id/bursar", h.ReviewBursar)
		}
		group.POST("/:id/rector", h.ReviewRector)
		group.POST("/:id/procurement", h.ReviewProcurement)
		group.POST("/:id/deliver", h.Deliver)
	}
}

// Create raises a new draft at the HOD stage
// @Summary      Create a draft
// @Description  HOD raises a demand form or request; totalCost is derived from the items
// @Tags         requisitions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateRequisitionRequest  true  "Draft"
// @Success      201      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/demand-forms [post]
// @Router       /api/requests [post]
func (h *RequisitionHandler) Create(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateRequisitionRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.service.Create(c.Request.Context(), a, h.kind, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rec))
}

// List returns requisitions filtered by stage, department and requirement type
// @Summary      List
// @Tags         requisitions
// @Produce      json
// @Security     BearerAuth
// @Param        stage             query     string  false  "Request stage"
// @Param        department        query     string  false  "Department"
// @Param        requirement_type  query     string  false  "Urgent, Priority or Routine"
// @Param        page              query     int     false  "Page number (default 1)"
// @Param        limit             query     int     false  "Items per page (default 20)"
// @Success      200               {object}  response.Response
// @Router       /api/demand-forms [get]
// @Router       /api/requests [get]
func (h *RequisitionHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	recs, total, err := h.service.List(c.Request.Context(), h.kind, service.RequisitionListFilter{
		Stage:           c.Query("stage"),
		Department:      c.Query("department"),
		RequirementType: c.Query("requirement_type"),
		Page:            p.Page,
		Limit:           p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithMeta(http.StatusOK, recs, p.Meta(total)))
}

// ListPending returns the documents waiting on the caller's role
// @Summary      Pending queue
// @Tags         requisitions
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response
// @Router       /api/demand-forms/pending [get]
// @Router       /api/requests/pending [get]
func (h *RequisitionHandler) ListPending(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	recs, total, err := h.service.ListPending(c.Request.Context(), a, h.kind, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithMeta(http.StatusOK, recs, p.Meta(total)))
}

// @Summary      Get by ID
// @Tags         requisitions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/demand-forms/{id} [get]
// @Router       /api/requests/{id} [get]
func (h *RequisitionHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := h.service.Get(c.Request.Context(), h.kind, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rec))
}

// Update replaces a draft's fields and items while it is still at the HOD stage
// @Summary      Update a draft
// @Tags         requisitions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                            true  "ID"
// @Param        payload  body      service.UpdateRequisitionRequest  true  "Draft"
// @Success      200      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/demand-forms/{id} [put]
// @Router       /api/requests/{id} [put]
func (h *RequisitionHandler) Update(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateRequisitionRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.service.UpdateDraft(c.Request.Context(), a, h.kind, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rec))
}

// @Summary      Delete a draft
// @Tags         requisitions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/demand-forms/{id} [delete]
// @Router       /api/requests/{id} [delete]
func (h *RequisitionHandler) Delete(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteDraft(c.Request.Context(), a, h.kind, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Deleted"))
}

// @Summary      Submit to the Logistics Officer
// @Tags         requisitions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/demand-forms/{id}/submit [post]
// @Router       /api/requests/{id}/submit [post]
func (h *RequisitionHandler) Submit(c *gin.Context) {
	h.act(c, func(a service.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.Submit(c.Request.Context(), a, h.kind, id)
	})
}

// @Summary      Logistics Officer decision
// @Tags         requisitions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                          true  "ID"
// @Param        payload  body      service.LogisticsReviewRequest  true  "Decision and stock record"
// @Success      200      {object}  response.Response
// @Router       /api/demand-forms/{id}/logistics [post]
// @Router       /api/requests/{id}/logistics [post]
func (h *RequisitionHandler) ReviewLogistics(c *gin.Context) {
	var req service.LogisticsReviewRequest
	h.actWithBody(c, &req, func(a service.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.ReviewLogistics(c.Request.Context(), a, h.kind, id, req)
	})
}

// ReviewBursar records the Bursar's decision. Approval needs a budget whose balance covers the total cost.
// @Summary      Bursar decision
// @Tags         requisitions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                       true  "ID"
// @Param        payload  body      service.BursarReviewRequest  true  "Decision and budget record"
// @Success      200      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/demand-forms/{id}/bursar [post]
func (h *RequisitionHandler) ReviewBursar(c *gin.Context) {
	var req service.BursarReviewRequest
	h.actWithBody(c, &req, func(a service.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.ReviewBursar(c.Request.Context(), a, id, req)
	})
}

// @Summary      Rector decision
// @Tags         requisitions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "ID"
// @Param        payload  body      service.ReviewRequest  true  "Decision"
// @Success      200      {object}  response.Response
// @Router       /api/demand-forms/{id}/rector [post]
// @Router       /api/requests/{id}/rector [post]
func (h *RequisitionHandler) ReviewRector(c *gin.Context) {
	var req service.ReviewRequest
	h.actWithBody(c, &req, func(a service.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.ReviewRector(c.Request.Context(), a, h.kind, id, req)
	})
}

// @Summary      Procurement Officer decision
// @Tags         requisitions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "ID"
// @Param        payload  body      service.ReviewRequest  true  "Decision"
// @Success      200      {object}  response.Response
// @Router       /api/demand-forms/{id}/procurement [post]
// @Router       /api/requests/{id}/procurement [post]
func (h *RequisitionHandler) ReviewProcurement(c *gin.Context) {
	var req service.ReviewRequest
	h.actWithBody(c, &req, func(a service.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.ReviewProcurement(c.Request.Context(), a, h.kind, id, req)
	})
}

// @Summary      Confirm delivery
// @Tags         requisitions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "ID"
// @Success      200  {object}  response.Response
// @Router       /api/demand-forms/{id}/deliver [post]
// @Router       /api/requests/{id}/deliver [post]
func (h *RequisitionHandler) Deliver(c *gin.Context) {
	h.act(c, func(a service.Actor, id uuid.UUID) (interface{}, error) {
		return h.service.ConfirmDelivery(c.Request.Context(), a, h.kind, id)
	})
}

// act runs a stage action after resolving the caller and the path id.
func (h *RequisitionHandler) act(c *gin.Context, fn func(service.Actor, uuid.UUID) (interface{}, error)) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := fn(a, id)
	if errors.Is(err, errResponded) {
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// actWithBody binds the body before running fn.
func (h *RequisitionHandler) actWithBody(c *gin.Context, body interface{}, fn func(service.Actor, uuid.UUID) (interface{}, error)) {
	h.act(c, func(a service.Actor, id uuid.UUID) (interface{}, error) {
		if !bindJSON(c, body) {
			return nil, errResponded
		}
		return fn(a, id)
	})
}
