package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/messaging"
	"example.com/backstage/dairy/internal/metrics"
	"example.com/backstage/dairy/internal/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTripLifecycleClearsMapping(t *testing.T) {
	client := new(MockClient)
	client.On("RPC", mock.Anything, models.RPCStartDeliveryTrip, map[string]interface{}{
		"p_assignment_id": "a1",
		"p_date":          "2024-05-02",
		"p_shift":         "morning",
	}).Return(`{"trip_id":"t1"}`, nil)
	client.On("RPC", mock.Anything, models.RPCRecordDeliveryCall, map[string]interface{}{"p_trip_id": "t1"}).Return(`null`, nil)
	client.On("RPC", mock.Anything, models.RPCCompleteDelivery, mock.MatchedBy(func(p map[string]interface{}) bool {
		return p["p_trip_id"] == "t1" && p["p_delivered"] == true && p["p_status"] == "Delivered"
	})).Return(`null`, nil)

	deps := testDeps()
	s := NewTripService(client, deps)
	ctx := context.Background()

	trip, err := s.StartTrip(ctx, "a1", "2024-05-02", models.ShiftMorning)
	require.NoError(t, err)
	assert.Equal(t, "t1", trip.ID)
	assert.Equal(t, TripStarted, trip.State)
	assert.Equal(t, 1, s.Tracker().Len())

	require.NoError(t, s.RecordCall(ctx, "t1"))
	called, err := s.Tracker().Get("t1")
	require.NoError(t, err)
	assert.Equal(t, TripCallLogged, called.State)
	assert.Equal(t, 1, called.Calls)

	require.NoError(t, s.CompleteTrip(ctx, "t1", Completion{Delivered: true, Liters: 2, Rate: decimal.NewFromInt(60)}))
	assert.Equal(t, 0, s.Tracker().Len())
	_, ok := s.Tracker().Lookup("a1", "2024-05-02", models.ShiftMorning)
	assert.False(t, ok)
	_, err = s.Tracker().Get("t1")
	assert.ErrorIs(t, err, ErrTripNotFound)

	// Late calls against the finished trip are rejected locally
	assert.ErrorIs(t, s.RecordCall(ctx, "t1"), ErrInvalidTransition)
	assert.ErrorIs(t, s.CompleteTrip(ctx, "t1", Completion{Delivered: true}), ErrInvalidTransition)

	// A refresh listing the assignment forgets its finished id and never
	// resurrects a handle
	assert.Equal(t, 1, s.Tracker().Finished())
	s.Tracker().Prune([]models.Assignment{{ID: "a2"}})
	assert.Equal(t, 1, s.Tracker().Finished())
	s.Tracker().Prune([]models.Assignment{{ID: "a1"}})
	assert.Equal(t, 0, s.Tracker().Finished())
	assert.Equal(t, 0, s.Tracker().Len())

	assert.Equal(t, int64(1), deps.Metrics.Counter(metrics.TripsStarted))
	assert.Equal(t, int64(1), deps.Metrics.Counter(metrics.TripsCompleted))
	assert.Equal(t, []string{messaging.EventTripStarted, messaging.EventTripCompleted},
		deps.Publisher.(*recordingPublisher).types())
	client.AssertNumberOfCalls(t, "RPC", 3)
}

func TestStartTripResumesSameVisit(t *testing.T) {
	client := new(MockClient)
	client.On("RPC", mock.Anything, models.RPCStartDeliveryTrip, mock.Anything).Return(`"t9"`, nil)

	s := NewTripService(client, testDeps())
	first, err := s.StartTrip(context.Background(), "a1", "2024-05-02", models.ShiftEvening)
	require.NoError(t, err)
	second, err := s.StartTrip(context.Background(), "a1", "2024-05-02", models.ShiftEvening)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, s.Tracker().Len())
}

func TestOpenTripAndTrip(t *testing.T) {
	client := new(MockClient)
	client.On("RPC", mock.Anything, models.RPCStartDeliveryTrip, mock.Anything).Return(`{"trip_id":"t4"}`, nil)

	s := NewTripService(client, testDeps())
	_, err := s.OpenTrip("a1", "2024-05-02", models.ShiftMorning)
	assert.ErrorIs(t, err, ErrTripNotFound)

	_, err = s.StartTrip(context.Background(), "a1", "2024-05-02", models.ShiftMorning)
	require.NoError(t, err)

	open, err := s.OpenTrip("a1", "2024-05-02", models.ShiftMorning)
	require.NoError(t, err)
	assert.Equal(t, "t4", open.ID)

	byID, err := s.Trip("t4")
	require.NoError(t, err)
	assert.Equal(t, open, byID)

	_, err = s.OpenTrip("a1", "tomorrow", models.ShiftMorning)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTripNotFound)
	_, err = s.Trip("")
	assert.Error(t, err)
}

func TestStartTripRejectsBadInput(t *testing.T) {
	s := NewTripService(new(MockClient), testDeps())
	_, err := s.StartTrip(context.Background(), "a1", "02/05/2024", models.ShiftMorning)
	assert.Error(t, err)
	_, err = s.StartTrip(context.Background(), "a1", "2024-05-02", models.Shift("noon"))
	assert.Error(t, err)
}

func TestStartTripErrorSurfaces(t *testing.T) {
	client := new(MockClient)
	client.On("RPC", mock.Anything, models.RPCStartDeliveryTrip, mock.Anything).
		Return(nil, &backend.Error{Status: 500, Message: "internal"})

	s := NewTripService(client, testDeps())
	_, err := s.StartTrip(context.Background(), "a1", "2024-05-02", models.ShiftMorning)
	require.Error(t, err)
	assert.Equal(t, 0, s.Tracker().Len())
}

func TestCompleteUnknownTripPassesThrough(t *testing.T) {
	client := new(MockClient)
	client.On("RPC", mock.Anything, models.RPCCompleteDelivery, mock.MatchedBy(func(p map[string]interface{}) bool {
		return p["p_status"] == "Not Available" && p["p_failure_reason"] == "Not Available"
	})).Return(`null`, nil)

	s := NewTripService(client, testDeps())
	err := s.CompleteTrip(context.Background(), "t-from-earlier-run", Completion{FailureReason: "Not Available"})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestCompleteTripFreeTextReasonIsFailed(t *testing.T) {
	client := new(MockClient)
	client.On("RPC", mock.Anything, models.RPCCompleteDelivery, mock.MatchedBy(func(p map[string]interface{}) bool {
		return p["p_status"] == "Failed" && p["p_failure_reason"] == "customer asleep"
	})).Return(`null`, nil)

	s := NewTripService(client, testDeps())
	c := Completion{FailureReason: "customer asleep"}
	assert.Equal(t, models.StatusFailed, c.Status())
	require.NoError(t, s.CompleteTrip(context.Background(), "t9", c))
	client.AssertExpectations(t)
}

func TestCompleteTripRejectsNegativeRate(t *testing.T) {
	client := new(MockClient)

	s := NewTripService(client, testDeps())
	err := s.CompleteTrip(context.Background(), "t1", Completion{Delivered: true, Liters: 1, Rate: decimal.NewFromInt(-5)})
	require.Error(t, err)
	client.AssertNotCalled(t, "RPC", mock.Anything, models.RPCCompleteDelivery, mock.Anything)

	client.On("RPC", mock.Anything, models.RPCCompleteDelivery, mock.Anything).Return(`null`, nil)
	require.NoError(t, s.CompleteTrip(context.Background(), "t1", Completion{Delivered: true, Liters: 1, Rate: decimal.RequireFromString("47.5")}))
}

func TestCompleteTripDuplicateIsSuccess(t *testing.T) {
	client := new(MockClient)
	client.On("RPC", mock.Anything, models.RPCCompleteDelivery, mock.Anything).
		Return(nil, &backend.Error{Code: backend.CodeUniqueViolation, Message: "duplicate key value violates unique constraint"})

	deps := testDeps()
	s := NewTripService(client, deps)
	require.NoError(t, s.CompleteTrip(context.Background(), "t1", Completion{Delivered: true, Liters: 1}))
	assert.Equal(t, int64(1), deps.Metrics.Counter(metrics.DuplicateWrites))
}

func TestSetDeliveryStatusIsIdempotent(t *testing.T) {
	client := new(MockClient)
	change := StatusChange{AssignmentID: "a1", Date: "2024-05-02", Shift: models.ShiftMorning, Delivered: true, Liters: 1.5}
	params := map[string]interface{}{
		"p_assignment_id": "a1",
		"p_date":          "2024-05-02",
		"p_shift":         "morning",
		"p_delivered":     true,
		"p_liters":        1.5,
	}
	client.On("RPC", mock.Anything, models.RPCSetDeliveryStatus, params).Return(`null`, nil).Once()
	client.On("RPC", mock.Anything, models.RPCSetDeliveryStatus, params).
		Return(nil, &backend.Error{Status: 409, Code: backend.CodeUniqueViolation, Message: "duplicate key value violates unique constraint \"uniq_daily_delivery\""})

	deps := testDeps()
	s := NewTripService(client, deps)
	require.NoError(t, s.SetDeliveryStatus(context.Background(), change))
	require.NoError(t, s.SetDeliveryStatus(context.Background(), change))

	assert.Equal(t, int64(2), deps.Metrics.Counter(metrics.StatusWrites))
	assert.Equal(t, int64(1), deps.Metrics.Counter(metrics.DuplicateWrites))
}

func TestSetDeliveryStatusOtherErrorsSurface(t *testing.T) {
	client := new(MockClient)
	client.On("RPC", mock.Anything, models.RPCSetDeliveryStatus, mock.Anything).Return(nil, errors.New("network down"))

	s := NewTripService(client, testDeps())
	err := s.SetDeliveryStatus(context.Background(), StatusChange{AssignmentID: "a1", Date: "2024-05-02", Shift: models.ShiftMorning})
	assert.Error(t, err)
}

func TestSetDeliveryStatusForeignKeyConflictSurfaces(t *testing.T) {
	client := new(MockClient)
	client.On("RPC", mock.Anything, models.RPCSetDeliveryStatus, mock.Anything).
		Return(nil, &backend.Error{Status: 409, Code: "23503", Message: "insert or update on table \"daily_deliveries\" violates foreign key constraint"})

	deps := testDeps()
	s := NewTripService(client, deps)
	err := s.SetDeliveryStatus(context.Background(), StatusChange{AssignmentID: "missing", Date: "2024-05-02", Shift: models.ShiftMorning, Delivered: true})
	require.Error(t, err)
	assert.Equal(t, int64(0), deps.Metrics.Counter(metrics.DuplicateWrites))
	assert.Equal(t, int64(0), deps.Metrics.Counter(metrics.StatusWrites))
}

func TestMarkAssignmentUsesPlanLitersWhenNoOverride(t *testing.T) {
	client := new(MockClient)
	client.On("RPC", mock.Anything, models.RPCSetDeliveryStatus, mock.MatchedBy(func(p map[string]interface{}) bool {
		return p["p_liters"] == 2.0 && p["p_shift"] == "evening"
	})).Return(`null`, nil)

	s := NewTripService(client, testDeps())
	assignment := models.Assignment{ID: "a1", CustomerID: "c1", Liters: 0}
	customer := &models.Customer{ID: "c1", Name: "Meena", Plan: "2L/day", PreferredShift: models.ShiftEvening}

	require.NoError(t, s.MarkAssignment(context.Background(), assignment, customer, "2024-05-02", true))
	client.AssertExpectations(t)
}

func TestDisabledBackend(t *testing.T) {
	s := NewTripService(backend.NewDisabled(), testDeps())
	_, err := s.StartTrip(context.Background(), "a1", "2024-05-02", models.ShiftMorning)
	assert.ErrorIs(t, err, backend.ErrNotConfigured)

	err = s.SetDeliveryStatus(context.Background(), StatusChange{AssignmentID: "a1", Date: "2024-05-02", Shift: models.ShiftMorning})
	assert.NoError(t, err)
}

func TestTrackerPruneDropsSettledAssignments(t *testing.T) {
	tracker := NewTripTracker()
	tracker.Begin("t1", "a1", "2024-05-02", models.ShiftMorning, fixedNow)
	tracker.Begin("t2", "a2", "2024-05-02", models.ShiftMorning, fixedNow)
	tracker.Begin("t3", "a3", "2024-05-02", models.ShiftMorning, fixedNow)

	pruned := tracker.Prune([]models.Assignment{
		{ID: "a1"},
		{ID: "a2", Delivered: true},
	})
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 2, tracker.Len())
	_, ok := tracker.Lookup("a1", "2024-05-02", models.ShiftMorning)
	assert.True(t, ok)
	_, ok = tracker.Lookup("a3", "2024-05-02", models.ShiftMorning)
	assert.True(t, ok, "assignments outside the refreshed scope are kept")

	assert.Equal(t, 0, tracker.Prune(nil))
	assert.Equal(t, 2, tracker.Len())
}

func TestTrackerExpireBoundsGrowth(t *testing.T) {
	tracker := NewTripTracker()
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("t%d", i)
		tracker.Begin(id, fmt.Sprintf("a%d", i), "2024-05-01", models.ShiftMorning, fixedNow)
		tracker.Finish(id, i%2 == 0)
	}
	tracker.Begin("old", "a-old", "2024-05-01", models.ShiftEvening, fixedNow)
	tracker.Begin("today", "a-today", "2024-05-02", models.ShiftMorning, fixedNow)
	require.Equal(t, 1000, tracker.Finished())
	require.Equal(t, 2, tracker.Len())

	removed := tracker.Expire(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1001, removed)
	assert.Equal(t, 0, tracker.Finished())
	assert.Equal(t, 1, tracker.Len())
	_, ok := tracker.Lookup("a-today", "2024-05-02", models.ShiftMorning)
	assert.True(t, ok)
	assert.NoError(t, tracker.CanComplete("t1"), "expired ids are left to the backend")
}
