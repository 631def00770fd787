package handler

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fitpulse/service-billing/internal/adapter"
	"github.com/fitpulse/service-billing/internal/application"
	"github.com/fitpulse/service-billing/internal/platform/auth"
	"github.com/fitpulse/service-billing/internal/platform/middleware"
	"github.com/fitpulse/service-billing/internal/platform/response"
)

// PaymentHandler handles HTTP requests for member payment operations.
type PaymentHandler struct {
	service *application.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *application.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// RegisterRoutes registers all payment routes on the given router group.
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	r.GET("/plans", h.ListPlans)

	payments := r.Group("/payments")
	payments.Use(middleware.AuthMiddleware(jwtManager))
	{
		payments.POST("/checkout", h.Checkout)
		payments.GET("/me", h.ListMyPayments)
		payments.GET("/:id", h.GetPayment)
	}
}

// ListPlans handles GET /api/v1/plans
func (h *PaymentHandler) ListPlans(c *gin.Context) {
	response.Success(c, h.service.GetPlans())
}

// Checkout handles POST /api/v1/payments/checkout
func (h *PaymentHandler) Checkout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req application.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.Checkout(c.Request.Context(), userID, req)
	if err != nil {
		if errors.Is(err, adapter.ErrCardDeclined) {
			c.JSON(http.StatusPaymentRequired, response.Envelope{Success: false, Error: adapter.ErrCardDeclined.Error()})
			return
		}
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}

// ListMyPayments handles GET /api/v1/payments/me
func (h *PaymentHandler) ListMyPayments(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	state, ok := paymentListState(c)
	if !ok {
		return
	}

	page, err := h.service.ListMyPayments(c.Request.Context(), userID, state)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.CursorPage(c, page.Items, page.NextCursor, page.Limit)
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid payment ID")
		return
	}

	userID, _ := middleware.GetUserID(c)
	role, _ := middleware.GetRole(c)

	dto, err := h.service.GetPayment(c.Request.Context(), paymentID, userID, role == auth.RoleAdmin)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// paymentListState reads listing parameters shared by member and admin listings.
// It writes a 400 and returns false on malformed input.
func paymentListState(c *gin.Context) (application.PaymentListState, bool) {
	state := application.PaymentListState{
		Status: c.Query("status"),
		Type:   c.Query("type"),
		Cursor: c.Query("cursor"),
	}

	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(c, "invalid limit")
			return state, false
		}
		state.Limit = limit
	}

	switch c.DefaultQuery("order", "desc") {
	case "asc":
		state.Ascending = true
	case "desc":
	default:
		response.BadRequest(c, "order must be asc or desc")
		return state, false
	}

	return state, true
}
