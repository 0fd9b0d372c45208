package services

import (
	"context"
	"time"

	"example.com/backstage/dairy/internal/messaging"
	"example.com/backstage/dairy/internal/metrics"
	"example.com/backstage/dairy/internal/models"
	"example.com/backstage/dairy/internal/repository"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ReplaceRequest is the new customer set of one agent. Date and Shift
// narrow which current assignments are replaced; empty means all of them.
type ReplaceRequest struct {
	Date        string       `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Shift       models.Shift `json:"shift,omitempty" validate:"omitempty,oneof=morning evening"`
	CustomerIDs []string     `json:"customer_ids"`
	Liters      float64      `json:"liters,omitempty" validate:"gte=0"`
}

// ReplaceResult reports what a replacement did
type ReplaceResult struct {
	Unassigned  int                 `json:"unassigned"`
	Assignments []models.Assignment `json:"assignments"`
}

// AssignmentManager is the seller side of assignments
type AssignmentManager struct {
	repos     *repository.Repositories
	metrics   *metrics.Metrics
	publisher messaging.Publisher
	now       func() time.Time
}

// NewAssignmentManager creates a new assignment manager
func NewAssignmentManager(repos *repository.Repositories, deps Deps) *AssignmentManager {
	deps = deps.withDefaults()
	return &AssignmentManager{
		repos:     repos,
		metrics:   deps.Metrics,
		publisher: deps.Publisher,
		now:       deps.Now,
	}
}

// ReplaceAgentAssignments closes the agent's current assignments and
// inserts one per customer in the request. Assignments are never updated
// in place.
func (m *AssignmentManager) ReplaceAgentAssignments(ctx context.Context, agentID string, req ReplaceRequest) (*ReplaceResult, error) {
	if agentID == "" {
		return nil, errors.New("agent id is required")
	}
	if err := models.ValidateStruct(req); err != nil {
		return nil, errors.Wrap(err, "invalid assignment request")
	}

	filter := repository.AssignmentFilter{AgentID: agentID, Shift: req.Shift}
	if req.Date != "" {
		day, err := models.ParseDate(req.Date)
		if err != nil {
			return nil, err
		}
		filter.Dates = repository.DateRange{From: day, To: day}
	}

	start := m.now()
	closed, err := m.repos.Assignments.UnassignAgent(ctx, filter, start)
	if err != nil {
		m.metrics.Observe("replace_assignments", start, err)
		return nil, errors.Wrap(err, "failed to unassign current customers")
	}

	rows := make([]repository.NewAssignment, 0, len(req.CustomerIDs))
	seen := make(map[string]bool, len(req.CustomerIDs))
	for _, id := range req.CustomerIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, repository.NewAssignment{
			CustomerID:      id,
			DeliveryAgentID: agentID,
			Date:            req.Date,
			Shift:           req.Shift,
			Liters:          req.Liters,
		})
	}

	inserted, err := m.repos.Assignments.Insert(ctx, rows)
	m.metrics.Observe("replace_assignments", start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "unassigned %d customers but failed to assign new ones", closed)
	}

	result := &ReplaceResult{Unassigned: closed, Assignments: inserted}
	event := messaging.NewEvent(messaging.EventAssignmentsSet, map[string]interface{}{
		"agent_id":     agentID,
		"date":         req.Date,
		"shift":        req.Shift,
		"customer_ids": req.CustomerIDs,
		"unassigned":   closed,
	})
	if err := m.publisher.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("agent_id", agentID).Msg("Failed to publish assignment change")
	}

	log.Info().
		Str("agent_id", agentID).
		Int("unassigned", closed).
		Int("assigned", len(inserted)).
		Msg("Agent assignments replaced")
	return result, nil
}

// Unassign closes one assignment
func (m *AssignmentManager) Unassign(ctx context.Context, assignmentID string) error {
	if assignmentID == "" {
		return errors.New("assignment id is required")
	}
	if err := m.repos.Assignments.Unassign(ctx, assignmentID, m.now()); err != nil {
		return errors.Wrap(err, "failed to unassign")
	}
	return nil
}
