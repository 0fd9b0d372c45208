package services

import (
	"context"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/models"
	"example.com/backstage/dairy/internal/repository"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DirectoryService lists the seller's agents and their customers. Both
// listings prefer the privileged procedure and fall back to table reads.
type DirectoryService struct {
	client backend.Client
	repos  *repository.Repositories
}

// NewDirectoryService creates a new directory service
func NewDirectoryService(client backend.Client, repos *repository.Repositories) *DirectoryService {
	return &DirectoryService{client: client, repos: repos}
}

// ListAgents returns the seller's delivery agents
func (s *DirectoryService) ListAgents(ctx context.Context) ([]models.DeliveryAgent, error) {
	raw, err := s.client.RPC(ctx, models.RPCAgentDeliveryAgents, map[string]interface{}{})
	if err == nil {
		var agents []models.DeliveryAgent
		agents, err = models.DecodeRows[models.DeliveryAgent](raw)
		if err == nil && len(agents) > 0 {
			return agents, nil
		}
	}
	if err != nil {
		log.Debug().Err(err).Msg("Agent listing procedure failed, reading agents directly")
	}

	agents, err := s.repos.Agents.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list agents")
	}
	return agents, nil
}

// AgentCustomers returns the customers currently assigned to agentID
func (s *DirectoryService) AgentCustomers(ctx context.Context, agentID string) ([]models.Customer, error) {
	if agentID == "" {
		return nil, errors.New("agent id is required")
	}

	raw, err := s.client.RPC(ctx, models.RPCAgentCustomers, map[string]interface{}{"p_agent_id": agentID})
	if err == nil {
		var customers []models.Customer
		customers, err = models.DecodeRows[models.Customer](raw)
		if err == nil && len(customers) > 0 {
			return customers, nil
		}
	}
	if err != nil {
		log.Debug().Err(err).Str("agent_id", agentID).Msg("Agent customers procedure failed, reading assignments directly")
	}

	assignments, err := s.repos.Assignments.ListCurrent(ctx, repository.AssignmentFilter{AgentID: agentID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list agent customers")
	}
	ids := make([]string, 0, len(assignments))
	seen := map[string]bool{}
	for _, a := range assignments {
		if !seen[a.CustomerID] {
			seen[a.CustomerID] = true
			ids = append(ids, a.CustomerID)
		}
	}
	customers, err := s.repos.Customers.FindByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list agent customers")
	}
	return customers, nil
}
