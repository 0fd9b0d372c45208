package services

import (
	"context"
	"encoding/json"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/metrics"
	"example.com/backstage/dairy/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Broadcast audiences
const (
	AudienceAll       = "all"
	AudienceAgents    = "agents"
	AudienceCustomers = "customers"
)

// Broadcast is a message pushed to the seller's agents or customers
type Broadcast struct {
	Title    string `json:"title" validate:"required"`
	Body     string `json:"body" validate:"required"`
	Audience string `json:"audience" validate:"omitempty,oneof=all agents customers"`
}

// NotificationService sends broadcasts through the hosted function
type NotificationService struct {
	client  backend.Client
	metrics *metrics.Metrics
}

// NewNotificationService creates a new notification service
func NewNotificationService(client backend.Client, deps Deps) *NotificationService {
	deps = deps.withDefaults()
	return &NotificationService{client: client, metrics: deps.Metrics}
}

// Broadcast invokes broadcast_notification and returns the function's reply
func (s *NotificationService) Broadcast(ctx context.Context, b Broadcast) (json.RawMessage, error) {
	if b.Audience == "" {
		b.Audience = AudienceAll
	}
	if err := models.ValidateStruct(b); err != nil {
		return nil, errors.Wrap(err, "invalid broadcast")
	}

	invoker, ok := s.client.(backend.FunctionInvoker)
	if !ok {
		return nil, errors.Wrap(backend.ErrNotSupported, "broadcast requires hosted functions")
	}

	raw, err := invoker.Invoke(ctx, models.FunctionBroadcastNotification, b)
	if err != nil {
		s.metrics.RecordError("broadcast")
		return nil, errors.Wrap(err, "failed to send broadcast")
	}
	s.metrics.RecordSuccess("broadcast")
	log.Info().Str("audience", b.Audience).Str("title", b.Title).Msg("Broadcast sent")
	return raw, nil
}
