package handlers

import (
	"net/http"
	"time"

	"example.com/backstage/dairy/internal/models"
	"example.com/backstage/dairy/internal/repository"
	"example.com/backstage/dairy/internal/services"
	"example.com/backstage/dairy/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// SellerHandler serves agent management, billing and broadcasts
type SellerHandler struct {
	scope  Scope
	tracer tracing.Tracer
	now    func() time.Time
}

// NewSellerHandler creates a new seller handler
func NewSellerHandler(scope Scope, tracer tracing.Tracer) *SellerHandler {
	return &SellerHandler{scope: scope, tracer: tracer, now: time.Now}
}

// PaymentRequest records a payment against a customer
type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	InvoiceID string          `json:"invoice_id"`
}

// PeriodRequest names a billing period
type PeriodRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

// HandleListAgents lists the seller's delivery agents
func (h *SellerHandler) HandleListAgents(c *gin.Context) {
	agents, err := h.scope.services(c).Directory.ListAgents(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

// HandleAgentCustomers lists the customers of an agent
func (h *SellerHandler) HandleAgentCustomers(c *gin.Context) {
	customers, err := h.scope.services(c).Directory.AgentCustomers(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

// HandleReplaceAssignments replaces every current assignment of an agent
func (h *SellerHandler) HandleReplaceAssignments(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-replace-assignments")
	defer h.tracer.EndTransaction(txn)

	var req services.ReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, NewValidationError(err.Error()))
		return
	}

	result, err := h.scope.services(c).Management.ReplaceAgentAssignments(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleUnassign closes a single assignment
func (h *SellerHandler) HandleUnassign(c *gin.Context) {
	if err := h.scope.services(c).Management.Unassign(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleInvoiceDraft computes the invoice of a customer for from..to,
// defaulting to the current month
func (h *SellerHandler) HandleInvoiceDraft(c *gin.Context) {
	from, err := dateQuery(c, "from")
	if err != nil {
		writeError(c, err)
		return
	}
	to, err := dateQuery(c, "to")
	if err != nil {
		writeError(c, err)
		return
	}
	start, end := h.period(from, to)

	draft, err := h.scope.services(c).Billing.DraftInvoice(c.Request.Context(), c.Param("id"), start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// HandleIssueInvoice drafts and saves the invoice of a period
func (h *SellerHandler) HandleIssueInvoice(c *gin.Context) {
	var req PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, NewValidationError(err.Error()))
		return
	}
	start, err := models.ParseDate(req.From)
	if err != nil {
		writeError(c, NewValidationError("from must be a YYYY-MM-DD date"))
		return
	}
	end, err := models.ParseDate(req.To)
	if err != nil {
		writeError(c, NewValidationError("to must be a YYYY-MM-DD date"))
		return
	}

	billing := h.scope.services(c).Billing
	draft, err := billing.DraftInvoice(c.Request.Context(), c.Param("id"), start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	invoice, items, err := billing.IssueInvoice(c.Request.Context(), draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invoice": invoice, "items": items})
}

// HandleRecordPayment stores a payment
func (h *SellerHandler) HandleRecordPayment(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, NewValidationError(err.Error()))
		return
	}

	payment, err := h.scope.services(c).Billing.RecordPayment(c.Request.Context(), repository.NewPayment{
		CustomerID: c.Param("id"),
		InvoiceID:  req.InvoiceID,
		Amount:     req.Amount,
		Method:     req.Method,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

// HandleBalance returns what a customer owes
func (h *SellerHandler) HandleBalance(c *gin.Context) {
	balance, err := h.scope.services(c).Billing.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// HandleBroadcast sends a notification
func (h *SellerHandler) HandleBroadcast(c *gin.Context) {
	var req services.Broadcast
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, NewValidationError(err.Error()))
		return
	}

	reply, err := h.scope.services(c).Notifications.Broadcast(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusAccepted, "application/json", reply)
}

func (h *SellerHandler) period(from, to *time.Time) (time.Time, time.Time) {
	now := h.now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if from != nil {
		start = *from
	}
	end := start.AddDate(0, 1, -1)
	if to != nil {
		end = *to
	}
	return start, end
}

// RegisterRoutes registers the handler's routes
func (h *SellerHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/agents", h.HandleListAgents)
	router.GET("/agents/:id/customers", h.HandleAgentCustomers)
	router.PUT("/agents/:id/assignments", h.HandleReplaceAssignments)
	router.DELETE("/assignments/:id", h.HandleUnassign)
	router.GET("/customers/:id/invoice-draft", h.HandleInvoiceDraft)
	router.POST("/customers/:id/invoices", h.HandleIssueInvoice)
	router.POST("/customers/:id/payments", h.HandleRecordPayment)
	router.GET("/customers/:id/balance", h.HandleBalance)
	router.POST("/notifications/broadcast", h.HandleBroadcast)
}
