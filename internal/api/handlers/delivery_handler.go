package handlers

import (
	"net/http"

	"example.com/backstage/dairy/internal/models"
	"example.com/backstage/dairy/internal/services"
	"example.com/backstage/dairy/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DeliveryHandler serves the delivery agent operations
type DeliveryHandler struct {
	scope  Scope
	tracer tracing.Tracer
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(scope Scope, tracer tracing.Tracer) *DeliveryHandler {
	return &DeliveryHandler{scope: scope, tracer: tracer}
}

// StartTripRequest names the visit a trip is started for
type StartTripRequest struct {
	AssignmentID string       `json:"assignment_id" binding:"required"`
	Date         string       `json:"date" binding:"required"`
	Shift        models.Shift `json:"shift" binding:"required"`
}

// HandleGetAssignments lists assignments for the from, to and agent_id
// query parameters
func (h *DeliveryHandler) HandleGetAssignments(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-get-assignments")
	defer h.tracer.EndTransaction(txn)

	q, err := assignmentQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}
	h.tracer.AddAttribute(txn, "agent_id", q.AgentID)

	assignments, err := h.scope.services(c).Assignments.Fetch(c.Request.Context(), q)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments, "count": len(assignments)})
}

// HandleGetPickups returns the pickup calendar with product totals
func (h *DeliveryHandler) HandleGetPickups(c *gin.Context) {
	q, err := assignmentQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}

	report, err := h.scope.services(c).Pickups.Calendar(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleStartTrip starts or resumes a trip
func (h *DeliveryHandler) HandleStartTrip(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-start-trip")
	defer h.tracer.EndTransaction(txn)

	var req StartTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, NewValidationError(err.Error()))
		return
	}

	trip, err := h.scope.services(c).Trips.StartTrip(c.Request.Context(), req.AssignmentID, req.Date, req.Shift)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trip)
}

// HandleGetTrip returns an open trip by id
func (h *DeliveryHandler) HandleGetTrip(c *gin.Context) {
	trip, err := h.scope.services(c).Trips.Trip(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

// HandleFindTrip returns the open trip for the assignment_id, date and
// shift query parameters, so a client can resume a visit
func (h *DeliveryHandler) HandleFindTrip(c *gin.Context) {
	shift, ok := models.ParseShift(c.Query("shift"))
	if !ok {
		writeError(c, NewValidationError("shift must be morning or evening"))
		return
	}
	trip, err := h.scope.services(c).Trips.OpenTrip(c.Query("assignment_id"), c.Query("date"), shift)
	if err != nil {
		if errors.Is(err, services.ErrTripNotFound) {
			writeError(c, err)
			return
		}
		writeError(c, NewValidationError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, trip)
}

// HandleRecordCall logs a call on a trip
func (h *DeliveryHandler) HandleRecordCall(c *gin.Context) {
	tripID := c.Param("id")
	if err := h.scope.services(c).Trips.RecordCall(c.Request.Context(), tripID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trip_id": tripID, "state": services.TripCallLogged.String()})
}

// HandleCompleteTrip ends a trip
func (h *DeliveryHandler) HandleCompleteTrip(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-complete-trip")
	defer h.tracer.EndTransaction(txn)

	var req services.Completion
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, NewValidationError(err.Error()))
		return
	}

	tripID := c.Param("id")
	if err := h.scope.services(c).Trips.CompleteTrip(c.Request.Context(), tripID, req); err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	state := services.TripFailed
	if req.Delivered {
		state = services.TripCompleted
	}
	c.JSON(http.StatusOK, gin.H{"trip_id": tripID, "state": state.String(), "status": req.Status()})
}

// HandleSetStatus toggles a delivery without a trip
func (h *DeliveryHandler) HandleSetStatus(c *gin.Context) {
	var req services.StatusChange
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, NewValidationError(err.Error()))
		return
	}

	if err := h.scope.services(c).Trips.SetDeliveryStatus(c.Request.Context(), req); err != nil {
		writeError(c, err)
		return
	}
	log.Debug().Str("assignment_id", req.AssignmentID).Bool("delivered", req.Delivered).Msg("Delivery status set")
	c.JSON(http.StatusOK, req)
}

// RegisterRoutes registers the handler's routes
func (h *DeliveryHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/assignments", h.HandleGetAssignments)
	router.GET("/pickups", h.HandleGetPickups)
	router.GET("/trips", h.HandleFindTrip)
	router.POST("/trips", h.HandleStartTrip)
	router.GET("/trips/:id", h.HandleGetTrip)
	router.POST("/trips/:id/calls", h.HandleRecordCall)
	router.POST("/trips/:id/complete", h.HandleCompleteTrip)
	router.PUT("/deliveries/status", h.HandleSetStatus)
}
