package repository

import (
	"context"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/models"
)

// AgentRepository defines the interface for delivery agent access
type AgentRepository interface {
	List(ctx context.Context) ([]models.DeliveryAgent, error)
	Get(ctx context.Context, id string) (*models.DeliveryAgent, error)
	FindByLogin(ctx context.Context, loginID, phone string) (*models.DeliveryAgent, error)
}

type agentRepository struct {
	client backend.Client
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(client backend.Client) AgentRepository {
	return &agentRepository{client: client}
}

func (r *agentRepository) List(ctx context.Context) ([]models.DeliveryAgent, error) {
	raw, err := r.client.Select(ctx, models.TableDeliveryAgents, backend.Query{
		Order: []backend.Order{{Column: "name"}},
	})
	if err != nil {
		return nil, wrap(err, "select", models.TableDeliveryAgents)
	}
	return models.DecodeRows[models.DeliveryAgent](raw)
}

func (r *agentRepository) Get(ctx context.Context, id string) (*models.DeliveryAgent, error) {
	raw, err := r.client.Select(ctx, models.TableDeliveryAgents, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", id)},
		Limit:   1,
	})
	if err != nil {
		return nil, wrap(err, "select", models.TableDeliveryAgents)
	}
	agent, err := models.DecodeOne[models.DeliveryAgent](raw)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, ErrNotFound
	}
	return agent, nil
}

// FindByLogin matches an agent by login id, or by name when the agent has
// no login id, together with the phone number.
func (r *agentRepository) FindByLogin(ctx context.Context, loginID, phone string) (*models.DeliveryAgent, error) {
	for _, column := range []string{"login_id", "name"} {
		filter := backend.Eq(column, loginID)
		if column == "name" {
			filter = backend.ILike(column, loginID)
		}
		raw, err := r.client.Select(ctx, models.TableDeliveryAgents, backend.Query{
			Filters: []backend.Filter{filter, backend.Eq("phone", phone)},
			Limit:   1,
		})
		if err != nil {
			return nil, wrap(err, "select", models.TableDeliveryAgents)
		}
		agent, err := models.DecodeOne[models.DeliveryAgent](raw)
		if err != nil {
			return nil, err
		}
		if agent != nil {
			return agent, nil
		}
	}
	return nil, ErrNotFound
}
