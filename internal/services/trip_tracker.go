package services

import (
	"sync"
	"time"

	"example.com/backstage/dairy/internal/models"

	"github.com/pkg/errors"
)

// Trip tracking errors
var (
	ErrTripNotFound      = errors.New("trip not found")
	ErrInvalidTransition = errors.New("invalid trip transition")
)

// TripState is the lifecycle position of a delivery trip
type TripState int

const (
	TripNotStarted TripState = iota
	TripStarted
	TripCallLogged
	TripCompleted
	TripFailed
)

func (s TripState) String() string {
	switch s {
	case TripStarted:
		return "started"
	case TripCallLogged:
		return "call_logged"
	case TripCompleted:
		return "completed"
	case TripFailed:
		return "failed"
	}
	return "not_started"
}

// Trip is the in-memory handle of a trip started by this process
type Trip struct {
	ID           string       `json:"id"`
	AssignmentID string       `json:"assignment_id"`
	Date         string       `json:"date"`
	Shift        models.Shift `json:"shift"`
	State        TripState    `json:"-"`
	Status       string       `json:"state"`
	Calls        int          `json:"calls"`
	StartedAt    time.Time    `json:"started_at"`
}

func tripKey(assignmentID, date string, shift models.Shift) string {
	return assignmentID + "|" + date + "|" + string(shift)
}

// TripTracker maps assignment/day/shift to the trip handle returned by the
// backend. Handles live only until the trip reaches a terminal state; the
// ids of finished trips are remembered so late calls against them are
// rejected, until a refresh sees the assignment settle or the visit day
// expires.
type TripTracker struct {
	mu       sync.Mutex
	byID     map[string]*Trip
	byKey    map[string]string
	finished map[string]finishedTrip
}

type finishedTrip struct {
	assignmentID string
	date         string
	state        TripState
}

// NewTripTracker creates an empty tracker
func NewTripTracker() *TripTracker {
	return &TripTracker{
		byID:     make(map[string]*Trip),
		byKey:    make(map[string]string),
		finished: make(map[string]finishedTrip),
	}
}

// Begin records a started trip. Starting the same assignment/day/shift
// again resumes it under the id the backend returned.
func (t *TripTracker) Begin(tripID, assignmentID, date string, shift models.Shift, at time.Time) Trip {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.finished, tripID)
	key := tripKey(assignmentID, date, shift)
	if prev, ok := t.byKey[key]; ok {
		if existing := t.byID[prev]; existing != nil {
			delete(t.byID, prev)
			existing.ID = tripID
			t.byID[tripID] = existing
			t.byKey[key] = tripID
			return existing.snapshot()
		}
	}

	trip := &Trip{
		ID:           tripID,
		AssignmentID: assignmentID,
		Date:         date,
		Shift:        shift,
		State:        TripStarted,
		StartedAt:    at,
	}
	t.byID[tripID] = trip
	t.byKey[key] = tripID
	return trip.snapshot()
}

// Get returns the handle for tripID
func (t *TripTracker) Get(tripID string) (Trip, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	trip, ok := t.byID[tripID]
	if !ok {
		return Trip{}, ErrTripNotFound
	}
	return trip.snapshot(), nil
}

// Lookup finds the open trip of an assignment/day/shift
func (t *TripTracker) Lookup(assignmentID, date string, shift models.Shift) (Trip, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byKey[tripKey(assignmentID, date, shift)]
	if !ok {
		return Trip{}, false
	}
	return t.byID[id].snapshot(), true
}

// CanCall checks a call may be logged; unknown trips are left to the backend
func (t *TripTracker) CanCall(tripID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkOpen(tripID, "log a call on")
}

// CanComplete checks the trip has not already been finished
func (t *TripTracker) CanComplete(tripID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkOpen(tripID, "complete")
}

func (t *TripTracker) checkOpen(tripID, action string) error {
	if done, ok := t.finished[tripID]; ok {
		return errors.Wrapf(ErrInvalidTransition, "cannot %s a %s trip", action, done.state)
	}
	return nil
}

// Called moves a known trip to CallLogged
func (t *TripTracker) Called(tripID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if trip, ok := t.byID[tripID]; ok {
		trip.State = TripCallLogged
		trip.Calls++
	}
}

// Finish moves a known trip to its terminal state and forgets it
func (t *TripTracker) Finish(tripID string, delivered bool) (Trip, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	trip, ok := t.byID[tripID]
	if !ok {
		return Trip{}, false
	}
	if delivered {
		trip.State = TripCompleted
	} else {
		trip.State = TripFailed
	}
	t.drop(tripID, trip)
	t.finished[tripID] = finishedTrip{assignmentID: trip.AssignmentID, date: trip.Date, state: trip.State}
	return trip.snapshot(), true
}

// Prune reconciles the tracker with freshly fetched assignments. Only
// assignments present in current are considered, so refreshing one agent
// leaves other agents' trips alone: handles of delivered assignments are
// dropped and finished ids of listed assignments are forgotten. It returns
// how many open handles were dropped.
func (t *TripTracker) Prune(current []models.Assignment) int {
	listed := make(map[string]bool, len(current))
	settled := make(map[string]bool, len(current))
	for _, a := range current {
		listed[a.ID] = true
		if a.Delivered {
			settled[a.ID] = true
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, done := range t.finished {
		if listed[done.assignmentID] {
			delete(t.finished, id)
		}
	}
	pruned := 0
	for id, trip := range t.byID {
		if !settled[trip.AssignmentID] {
			continue
		}
		t.drop(id, trip)
		pruned++
	}
	return pruned
}

// Expire forgets open handles and finished ids whose visit day is before
// cutoff, returning how many entries were removed
func (t *TripTracker) Expire(cutoff time.Time) int {
	day := models.FormatDate(cutoff)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, done := range t.finished {
		if done.date < day {
			delete(t.finished, id)
			removed++
		}
	}
	for id, trip := range t.byID {
		if trip.Date < day {
			t.drop(id, trip)
			removed++
		}
	}
	return removed
}

func (t *TripTracker) drop(id string, trip *Trip) {
	delete(t.byID, id)
	delete(t.byKey, tripKey(trip.AssignmentID, trip.Date, trip.Shift))
}

// Len is the number of open trips
func (t *TripTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// Finished is the number of remembered finished trip ids
func (t *TripTracker) Finished() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.finished)
}

func (t *Trip) snapshot() Trip {
	cp := *t
	cp.Status = t.State.String()
	return cp
}
