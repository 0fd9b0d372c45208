package repository

import (
	"context"
	"time"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/models"
)

// AssignmentFilter narrows a read of current assignments
type AssignmentFilter struct {
	AgentID string
	Dates   DateRange
	Shift   models.Shift
}

// NewAssignment is the insert payload for an assignment. It carries only
// real columns so it is safe for both drivers.
type NewAssignment struct {
	OwnerID         string       `json:"owner_id,omitempty"`
	CustomerID      string       `json:"customer_id" validate:"required"`
	DeliveryAgentID string       `json:"delivery_agent_id" validate:"required"`
	Date            string       `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Shift           models.Shift `json:"shift,omitempty" validate:"omitempty,oneof=morning evening"`
	Liters          float64      `json:"liters,omitempty" validate:"gte=0"`
}

// AssignmentRepository defines the interface for assignment access
type AssignmentRepository interface {
	ListCurrent(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, error)
	Insert(ctx context.Context, rows []NewAssignment) ([]models.Assignment, error)
	UnassignAgent(ctx context.Context, filter AssignmentFilter, at time.Time) (int, error)
	Unassign(ctx context.Context, id string, at time.Time) error
}

type assignmentRepository struct {
	client backend.Client
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(client backend.Client) AssignmentRepository {
	return &assignmentRepository{client: client}
}

// filters restricts to current (not unassigned) rows. Reads keep undated
// rows, which recur every day; writes only touch rows inside the window.
func (f AssignmentFilter) filters(undated bool) []backend.Filter {
	out := []backend.Filter{backend.IsNull("unassigned_at")}
	if f.AgentID != "" {
		out = append(out, backend.Eq("delivery_agent_id", f.AgentID))
	}
	if f.Shift != "" {
		out = append(out, backend.Eq("shift", string(f.Shift)))
	}
	if undated {
		return append(out, f.Dates.filtersOrNull("date")...)
	}
	return append(out, f.Dates.filters("date")...)
}

// ListCurrent reads assignments that have not been unassigned
func (r *assignmentRepository) ListCurrent(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, error) {
	raw, err := r.client.Select(ctx, models.TableAssignments, backend.Query{
		Filters: filter.filters(true),
		Order:   []backend.Order{{Column: "assigned_at"}},
	})
	if err != nil {
		return nil, wrap(err, "select", models.TableAssignments)
	}
	return models.DecodeRows[models.Assignment](raw)
}

func (r *assignmentRepository) Insert(ctx context.Context, rows []NewAssignment) ([]models.Assignment, error) {
	if len(rows) == 0 {
		return []models.Assignment{}, nil
	}
	for i := range rows {
		if err := models.ValidateStruct(rows[i]); err != nil {
			return nil, err
		}
	}
	raw, err := r.client.Insert(ctx, models.TableAssignments, rows)
	if err != nil {
		return nil, wrap(err, "insert", models.TableAssignments)
	}
	return models.DecodeRows[models.Assignment](raw)
}

// UnassignAgent stamps unassigned_at on every current row matching filter
// and returns how many rows were closed.
func (r *assignmentRepository) UnassignAgent(ctx context.Context, filter AssignmentFilter, at time.Time) (int, error) {
	raw, err := r.client.Update(ctx, models.TableAssignments, filter.filters(false), map[string]interface{}{
		"unassigned_at": at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return 0, wrap(err, "update", models.TableAssignments)
	}
	rows, err := models.DecodeRows[models.Assignment](raw)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *assignmentRepository) Unassign(ctx context.Context, id string, at time.Time) error {
	_, err := r.client.Update(ctx, models.TableAssignments,
		[]backend.Filter{backend.Eq("id", id), backend.IsNull("unassigned_at")},
		map[string]interface{}{"unassigned_at": at.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return wrap(err, "update", models.TableAssignments)
	}
	return nil
}
