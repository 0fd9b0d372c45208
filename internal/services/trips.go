package services

import (
	"context"
	"encoding/json"
	"time"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/messaging"
	"example.com/backstage/dairy/internal/metrics"
	"example.com/backstage/dairy/internal/models"
	"example.com/backstage/dairy/internal/tracing"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Completion is the outcome an agent reports when a trip ends
type Completion struct {
	Delivered     bool            `json:"delivered"`
	Liters        float64         `json:"liters" validate:"gte=0"`
	Rate          decimal.Decimal `json:"rate" validate:"gte=0"`
	Product       string          `json:"product,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// Status is the daily delivery status the completion results in. A reason
// naming a failure status selects it; any other reason is kept as text
// only and the status is Failed.
func (c Completion) Status() models.DeliveryStatus {
	if c.Delivered {
		return models.StatusDelivered
	}
	if status, ok := models.ParseFailureStatus(c.FailureReason); ok {
		return status
	}
	return models.StatusFailed
}

// StatusChange is a manual delivered toggle for one assignment and day
type StatusChange struct {
	AssignmentID string       `json:"assignment_id" validate:"required"`
	Date         string       `json:"date" validate:"required,datetime=2006-01-02"`
	Shift        models.Shift `json:"shift" validate:"required,oneof=morning evening"`
	Delivered    bool         `json:"delivered"`
	Liters       float64      `json:"liters" validate:"gte=0"`
}

// TripService drives the delivery trip state machine. Every transition is
// one remote procedure call; only the trip handles are kept locally.
type TripService struct {
	client    backend.Client
	trips     *TripTracker
	metrics   *metrics.Metrics
	tracer    tracing.Tracer
	publisher messaging.Publisher
	now       func() time.Time
}

// NewTripService creates a new trip service
func NewTripService(client backend.Client, deps Deps) *TripService {
	deps = deps.withDefaults()
	return &TripService{
		client:    client,
		trips:     deps.Trips,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		publisher: deps.Publisher,
		now:       deps.Now,
	}
}

// Tracker exposes the open trip handles
func (s *TripService) Tracker() *TripTracker {
	return s.trips
}

// Trip returns the open trip with tripID
func (s *TripService) Trip(tripID string) (Trip, error) {
	if tripID == "" {
		return Trip{}, errors.New("trip id is required")
	}
	return s.trips.Get(tripID)
}

// OpenTrip returns the open trip of an assignment for one day and shift
func (s *TripService) OpenTrip(assignmentID, date string, shift models.Shift) (Trip, error) {
	if err := checkVisit(assignmentID, date, shift); err != nil {
		return Trip{}, err
	}
	trip, ok := s.trips.Lookup(assignmentID, date, shift)
	if !ok {
		return Trip{}, errors.Wrapf(ErrTripNotFound, "no open trip for %s on %s %s", assignmentID, date, shift)
	}
	return trip, nil
}

// StartTrip creates or resumes the trip of an assignment for one day and
// shift and returns the backend's trip id.
func (s *TripService) StartTrip(ctx context.Context, assignmentID, date string, shift models.Shift) (Trip, error) {
	txn := s.tracer.StartTransaction("start-delivery-trip")
	defer s.tracer.EndTransaction(txn)
	start := s.now()

	if err := checkVisit(assignmentID, date, shift); err != nil {
		return Trip{}, err
	}
	if !s.client.Configured() {
		return Trip{}, backend.ErrNotConfigured
	}

	raw, err := s.call(ctx, txn, models.RPCStartDeliveryTrip, map[string]interface{}{
		"p_assignment_id": assignmentID,
		"p_date":          date,
		"p_shift":         string(shift),
	})
	if err == nil {
		var tripID string
		tripID, err = models.DecodeID(raw, "trip_id", "id")
		if err == nil {
			trip := s.trips.Begin(tripID, assignmentID, date, shift, s.now())
			s.metrics.Observe("start_trip", start, nil)
			s.metrics.IncrementCounter(metrics.TripsStarted)
			s.metrics.SetGauge(metrics.OpenTrips, int64(s.trips.Len()))
			s.publish(ctx, messaging.EventTripStarted, trip)

			log.Info().
				Str("trip_id", tripID).
				Str("assignment_id", assignmentID).
				Str("date", date).
				Str("shift", string(shift)).
				Msg("Trip started")
			return trip, nil
		}
	}

	s.tracer.RecordError(txn, err)
	s.metrics.Observe("start_trip", start, err)
	return Trip{}, errors.Wrap(err, "failed to start trip")
}

// RecordCall logs that the agent contacted the customer. The delivery
// status is unchanged.
func (s *TripService) RecordCall(ctx context.Context, tripID string) error {
	txn := s.tracer.StartTransaction("record-delivery-call")
	defer s.tracer.EndTransaction(txn)

	if tripID == "" {
		return errors.New("trip id is required")
	}
	if err := s.trips.CanCall(tripID); err != nil {
		return err
	}
	if !s.client.Configured() {
		return backend.ErrNotConfigured
	}

	start := s.now()
	_, err := s.call(ctx, txn, models.RPCRecordDeliveryCall, map[string]interface{}{
		"p_trip_id": tripID,
	})
	s.metrics.Observe("record_call", start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to record call")
	}

	s.trips.Called(tripID)
	s.metrics.IncrementCounter(metrics.CallsRecorded)
	log.Info().Str("trip_id", tripID).Msg("Call recorded")
	return nil
}

// CompleteTrip ends a trip as delivered or failed and records what was
// actually handed over. The trip handle is dropped once the backend
// accepts the completion.
func (s *TripService) CompleteTrip(ctx context.Context, tripID string, c Completion) error {
	txn := s.tracer.StartTransaction("complete-delivery")
	defer s.tracer.EndTransaction(txn)

	if tripID == "" {
		return errors.New("trip id is required")
	}
	if err := models.ValidateStruct(c); err != nil {
		return errors.Wrap(err, "invalid completion")
	}
	if err := s.trips.CanComplete(tripID); err != nil {
		return err
	}
	if !s.client.Configured() {
		return backend.ErrNotConfigured
	}

	params := map[string]interface{}{
		"p_trip_id":   tripID,
		"p_delivered": c.Delivered,
		"p_liters":    c.Liters,
		"p_rate":      c.Rate,
		"p_product":   nullable(c.Product),
		"p_status":    string(c.Status()),
	}
	if !c.Delivered {
		params["p_failure_reason"] = nullable(c.FailureReason)
	}

	start := s.now()
	_, err := s.call(ctx, txn, models.RPCCompleteDelivery, params)
	if err != nil && backend.IsUniqueViolation(err) {
		log.Debug().Str("trip_id", tripID).Msg("Delivery already completed")
		s.metrics.IncrementCounter(metrics.DuplicateWrites)
		err = nil
	}
	s.metrics.Observe("complete_trip", start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to complete trip")
	}

	trip, known := s.trips.Finish(tripID, c.Delivered)
	s.metrics.IncrementCounter(metrics.TripsCompleted)
	s.metrics.SetGauge(metrics.OpenTrips, int64(s.trips.Len()))
	if !known {
		trip = Trip{ID: tripID, State: TripFailed, Status: TripFailed.String()}
		if c.Delivered {
			trip.State, trip.Status = TripCompleted, TripCompleted.String()
		}
	}
	s.publish(ctx, messaging.EventTripCompleted, map[string]interface{}{
		"trip":       trip,
		"completion": c,
	})

	log.Info().
		Str("trip_id", tripID).
		Bool("delivered", c.Delivered).
		Float64("liters", c.Liters).
		Msg("Trip completed")
	return nil
}

// SetDeliveryStatus upserts the daily delivery of an assignment directly.
// Writing the same day, shift and customer twice is not an error.
func (s *TripService) SetDeliveryStatus(ctx context.Context, change StatusChange) error {
	if err := models.ValidateStruct(change); err != nil {
		return errors.Wrap(err, "invalid status change")
	}
	if !s.client.Configured() {
		log.Debug().Str("assignment_id", change.AssignmentID).Msg("Backend disabled, delivery status not written")
		return nil
	}

	txn := s.tracer.StartTransaction("set-delivery-status")
	defer s.tracer.EndTransaction(txn)
	start := s.now()
	_, err := s.call(ctx, txn, models.RPCSetDeliveryStatus, map[string]interface{}{
		"p_assignment_id": change.AssignmentID,
		"p_date":          change.Date,
		"p_shift":         string(change.Shift),
		"p_delivered":     change.Delivered,
		"p_liters":        change.Liters,
	})
	if err != nil && backend.IsUniqueViolation(err) {
		log.Debug().
			Str("assignment_id", change.AssignmentID).
			Str("date", change.Date).
			Str("shift", string(change.Shift)).
			Msg("Daily delivery already recorded")
		s.metrics.IncrementCounter(metrics.DuplicateWrites)
		err = nil
	}
	s.metrics.Observe("set_delivery_status", start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to set delivery status")
	}

	s.metrics.IncrementCounter(metrics.StatusWrites)
	s.publish(ctx, messaging.EventStatusChanged, change)
	return nil
}

// MarkAssignment toggles the delivery of an assignment for date using its
// effective quantity: the assignment override, else the customer's plan.
func (s *TripService) MarkAssignment(ctx context.Context, a models.Assignment, customer *models.Customer, date string, delivered bool) error {
	shift := a.Shift
	if shift == "" && customer != nil {
		shift = customer.PreferredShift
	}
	return s.SetDeliveryStatus(ctx, StatusChange{
		AssignmentID: a.ID,
		Date:         date,
		Shift:        shift,
		Delivered:    delivered,
		Liters:       a.EffectiveLiters(customer),
	})
}

// call runs a procedure inside a segment of txn
func (s *TripService) call(ctx context.Context, txn *newrelic.Transaction, fn string, params map[string]interface{}) (json.RawMessage, error) {
	seg := s.tracer.StartSegment("rpc "+fn, txn)
	defer seg.End()
	return s.client.RPC(ctx, fn, params)
}

func (s *TripService) publish(ctx context.Context, eventType string, data interface{}) {
	if err := s.publisher.Publish(ctx, messaging.NewEvent(eventType, data)); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("Failed to publish delivery event")
	}
}

func checkVisit(assignmentID, date string, shift models.Shift) error {
	if assignmentID == "" {
		return errors.New("assignment id is required")
	}
	if _, err := models.ParseDate(date); err != nil {
		return errors.Wrapf(err, "invalid date %q", date)
	}
	if !shift.Valid() {
		return errors.Errorf("invalid shift %q", shift)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
