package payments

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/paygate/internal/validation"
)

// Handler provides HTTP endpoints for payment operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new payments handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments", h.ProcessPayment)
	r.GET("/payments", h.ListPayments)
	r.GET("/payments/:id", h.GetPayment)
	r.GET("/payments/:id/transactions", h.ListTransactions)
	r.POST("/payments/:id/refund", h.RefundPayment)
	r.POST("/payments/:id/cancel", h.CancelPayment)
	r.GET("/users/:id/payments", h.ListUserPayments)
	r.GET("/users/:id/payments/summary", h.UserPaymentSummary)
	r.GET("/reports/completed-total", h.CompletedTotal)
	r.POST("/risk/score", h.RiskScore)
}

type processPaymentRequest struct {
	UserID string `json:"userId"`
	ProcessRequest
}

// ProcessPayment handles POST /v1/payments
func (h *Handler) ProcessPayment(c *gin.Context) {
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	receipt, err := h.service.ProcessPayment(c.Request.Context(), req.UserID, req.ProcessRequest)
	if err != nil {
		var blocked *FraudBlockedError
		if errors.As(err, &blocked) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "fraud_blocked",
				"message": err.Error(),
				"score":   blocked.Score,
				"tier":    blocked.Tier,
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payment": receipt})
}

// GetPayment handles GET /v1/payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	payment, err := h.service.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// ListPayments handles GET /v1/payments with status, amount-range, or
// risk-score filters.
func (h *Handler) ListPayments(c *gin.Context) {
	limit, offset := pageParams(c)
	ctx := c.Request.Context()

	var (
		payments []*Payment
		err      error
	)
	switch {
	case c.Query("minScore") != "":
		minScore, parseErr := strconv.ParseFloat(c.Query("minScore"), 64)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "minScore must be a number",
			})
			return
		}
		payments, err = h.service.ListHighRisk(ctx, minScore, limit, offset)

	case c.Query("minAmount") != "" || c.Query("maxAmount") != "":
		payments, err = h.service.ListByAmountRange(ctx,
			c.DefaultQuery("minAmount", "0.00"),
			c.DefaultQuery("maxAmount", "1000000000.00"),
			limit, offset)

	case c.Query("status") != "":
		payments, err = h.service.ListByStatus(ctx, Status(c.Query("status")), limit, offset)

	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "one of status, minAmount/maxAmount, or minScore is required",
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payments": payments,
		"count":    len(payments),
	})
}

// ListTransactions handles GET /v1/payments/:id/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	txns, err := h.service.ListTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"count":        len(txns),
	})
}

type refundRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// RefundPayment handles POST /v1/payments/:id/refund
func (h *Handler) RefundPayment(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Amount is required",
		})
		return
	}

	payment, err := h.service.RefundPayment(c.Request.Context(), c.Param("id"), req.Amount, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelPayment handles POST /v1/payments/:id/cancel
func (h *Handler) CancelPayment(c *gin.Context) {
	var req cancelRequest
	_ = c.ShouldBindJSON(&req) // reason is optional

	payment, err := h.service.CancelPayment(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// ListUserPayments handles GET /v1/users/:id/payments
func (h *Handler) ListUserPayments(c *gin.Context) {
	limit, offset := pageParams(c)

	payments, err := h.service.ListByUser(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payments": payments,
		"count":    len(payments),
	})
}

// UserPaymentSummary handles GET /v1/users/:id/payments/summary
func (h *Handler) UserPaymentSummary(c *gin.Context) {
	status := Status(c.DefaultQuery("status", string(StatusCompleted)))

	total, err := h.service.SumByUserAndStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId": c.Param("id"),
		"status": status,
		"total":  total,
	})
}

// CompletedTotal handles GET /v1/reports/completed-total
func (h *Handler) CompletedTotal(c *gin.Context) {
	start, err1 := time.Parse(time.RFC3339, c.Query("start"))
	end, err2 := time.Parse(time.RFC3339, c.Query("end"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "start and end must be RFC3339 timestamps",
		})
		return
	}

	total, err := h.service.SumCompletedBetween(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"start": start,
		"end":   end,
		"total": total,
	})
}

type riskScoreRequest struct {
	UserID string `json:"userId"`
	Amount string `json:"amount"`
	Method string `json:"method"`
}

// RiskScore handles POST /v1/risk/score — a dry run of the fraud
// engine that never writes the ledger.
func (h *Handler) RiskScore(c *gin.Context) {
	var req riskScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	assessment, err := h.service.RiskReport(c.Request.Context(), req.UserID, req.Amount, req.Method)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessment": assessment})
}

// respondError maps domain errors to transport errors.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": verrs.Error(),
			"details": verrs,
		})
		return
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, ErrUserNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrDuplicateReference):
		status = http.StatusConflict
		code = "duplicate_reference"
	case errors.Is(err, ErrInvalidState):
		status = http.StatusConflict
		code = "invalid_state"
	case errors.Is(err, ErrRefundExceedsTotal), errors.Is(err, ErrUserInactive):
		status = http.StatusBadRequest
		code = "validation_error"
	case errors.Is(err, ErrProcessingFailure):
		status = http.StatusBadGateway
		code = "processing_failure"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit = 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed > 0 {
			offset = parsed
		}
	}
	return limit, offset
}
