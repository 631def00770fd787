package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fitpulse/service-billing/internal/application"
	"github.com/fitpulse/service-billing/internal/platform/auth"
	"github.com/fitpulse/service-billing/internal/platform/middleware"
	"github.com/fitpulse/service-billing/internal/platform/response"
)

const defaultTrendMonths = 6

// AdminHandler handles the admin dashboard endpoints.
type AdminHandler struct {
	paymentService *application.PaymentService
	userService    *application.UserService
	reportService  *application.ReportService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	paymentService *application.PaymentService,
	userService *application.UserService,
	reportService *application.ReportService,
) *AdminHandler {
	return &AdminHandler{
		paymentService: paymentService,
		userService:    userService,
		reportService:  reportService,
	}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	adminRole := middleware.RequireRole(auth.RoleAdmin)

	admin := r.Group("/admin")
	admin.Use(authMW, adminRole)
	{
		admin.GET("/payments", h.ListPayments)
		admin.POST("/payments", h.RecordPayment)
		admin.POST("/payments/:id/refund", h.RefundPayment)
		admin.GET("/users", h.ListUsers)

		reports := admin.Group("/reports/revenue")
		reports.GET("", h.MonthlyRevenue)
		reports.GET("/range", h.RangeRevenue)
		reports.GET("/trend", h.RevenueTrend)
		reports.GET("/trend.csv", h.RevenueTrendCSV)
	}
}

// ListPayments handles GET /api/v1/admin/payments.
func (h *AdminHandler) ListPayments(c *gin.Context) {
	state, ok := paymentListState(c)
	if !ok {
		return
	}
	if v := c.Query("user_id"); v != "" {
		userID, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(c, "invalid user ID")
			return
		}
		state.UserID = userID
	}

	page, err := h.paymentService.ListPayments(c.Request.Context(), state)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.CursorPage(c, page.Items, page.NextCursor, page.Limit)
}

// RecordPayment handles POST /api/v1/admin/payments.
func (h *AdminHandler) RecordPayment(c *gin.Context) {
	var req application.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.paymentService.RecordPayment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}

// RefundPayment handles POST /api/v1/admin/payments/:id/refund.
func (h *AdminHandler) RefundPayment(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid payment ID")
		return
	}

	var req application.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.paymentService.RefundPayment(c.Request.Context(), paymentID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// ListUsers handles GET /api/v1/admin/users.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	state := application.UserListState{
		Search:    c.Query("search"),
		Sort:      c.Query("sort"),
		Ascending: c.Query("order") == "asc",
		Cursor:    c.Query("cursor"),
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(c, "invalid limit")
			return
		}
		state.Limit = limit
	}

	page, err := h.userService.ListUsers(c.Request.Context(), state)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.CursorPage(c, page.Items, page.NextCursor, page.Limit)
}

// MonthlyRevenue handles GET /api/v1/admin/reports/revenue?year=&month=.
// Without parameters it reports the current month.
func (h *AdminHandler) MonthlyRevenue(c *gin.Context) {
	year, month := h.reportService.CurrentMonth()

	if v := c.Query("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(c, "invalid year")
			return
		}
		year = y
	}
	if v := c.Query("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(c, "invalid month")
			return
		}
		month = time.Month(m)
	}

	report, err := h.reportService.MonthlyComparison(c.Request.Context(), year, month)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, report)
}

// RangeRevenue handles GET /api/v1/admin/reports/revenue/range?start=&end=.
// Both bounds are RFC 3339 timestamps and inclusive.
func (h *AdminHandler) RangeRevenue(c *gin.Context) {
	start, err := time.Parse(time.RFC3339Nano, c.Query("start"))
	if err != nil {
		response.BadRequest(c, "start must be an RFC 3339 timestamp")
		return
	}
	end, err := time.Parse(time.RFC3339Nano, c.Query("end"))
	if err != nil {
		response.BadRequest(c, "end must be an RFC 3339 timestamp")
		return
	}

	report, err := h.reportService.RangeReport(c.Request.Context(), start, end)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, report)
}

// RevenueTrend handles GET /api/v1/admin/reports/revenue/trend?months=.
func (h *AdminHandler) RevenueTrend(c *gin.Context) {
	months, ok := trendMonths(c)
	if !ok {
		return
	}

	trend, err := h.reportService.MonthlyTrend(c.Request.Context(), months)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, trend)
}

// RevenueTrendCSV handles GET /api/v1/admin/reports/revenue/trend.csv?months=.
func (h *AdminHandler) RevenueTrendCSV(c *gin.Context) {
	months, ok := trendMonths(c)
	if !ok {
		return
	}

	body, err := h.reportService.ExportTrendCSV(c.Request.Context(), months)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="revenue-trend-%dm.csv"`, months))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
}

func trendMonths(c *gin.Context) (int, bool) {
	months, err := strconv.Atoi(c.DefaultQuery("months", strconv.Itoa(defaultTrendMonths)))
	if err != nil {
		response.BadRequest(c, "invalid months")
		return 0, false
	}
	return months, true
}
