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

type TenderHandler struct {
	service service.TenderService
}

func NewTenderHandler(s service.TenderService) *TenderHandler {
	return &TenderHandler{service: s}
}

func (h *TenderHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/tenders")
	{
		group.GET("", middleware.RequireRole(), h.List)
		group.GET("/:id", middleware.RequireRole(), h.Get)
		group.POST("", middleware.RequireRole(workflow.RoleProcurement), h.Create)
		group.POST("/:id/close", middleware.RequireRole(workflow.RoleProcurement), h.Close)
	}
}

// Create publishes a tender for an approved requisition
// @Summary      Create tender
// @Description  One active tender per source document. The source must be Procurement-approved and not rejected.
// @Tags         tenders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateTenderRequest  true  "Tender"
// @Success      201      {object}  response.Response{data=model.Tender}
// @Failure      409      {object}  response.Response
// @Router       /api/tenders [post]
func (h *TenderHandler) Create(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateTenderRequest
	if !bindJSON(c, &req) {
		return
	}
	tender, err := h.service.CreateTender(c.Request.Context(), a, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, tender))
}

// List returns tenders. Suppliers only see active ones.
// @Summary      List tenders
// @Tags         tenders
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "active or closed"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=[]model.Tender}
// @Router       /api/tenders [get]
func (h *TenderHandler) List(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	tenders, total, err := h.service.ListTenders(c.Request.Context(), a, service.TenderListFilter{
		Status: c.Query("status"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithMeta(http.StatusOK, tenders, p.Meta(total)))
}

// @Summary      Get tender
// @Tags         tenders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Tender ID"
// @Success      200  {object}  response.Response{data=model.Tender}
// @Failure      404  {object}  response.Response
// @Router       /api/tenders/{id} [get]
func (h *TenderHandler) Get(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	tender, err := h.service.GetTender(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tender))
}

// @Summary      Close tender
// @Tags         tenders
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Tender ID"
// @Success      200  {object}  response.Response{data=model.Tender}
// @Failure      409  {object}  response.Response
// @Router       /api/tenders/{id}/close [post]
func (h *TenderHandler) Close(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	tender, err := h.service.CloseTender(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tender))
}
