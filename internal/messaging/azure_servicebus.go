package messaging

import (
	"context"
	"encoding/json"
	"time"

	"example.com/backstage/dairy/config"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Event types published on the delivery queue
const (
	EventTripStarted    = "trip.started"
	EventTripCompleted  = "trip.completed"
	EventStatusChanged  = "delivery.status_changed"
	EventAssignmentsSet = "assignments.replaced"
)

// Event is a delivery fact published for downstream consumers
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// NewEvent stamps an event with an id and time
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher sends delivery events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// ServiceBusPublisher publishes events to an Azure Service Bus queue
type ServiceBusPublisher struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
}

// NewPublisher creates a publisher for the configured queue. Without a
// connection string it returns a publisher that drops events.
func NewPublisher(cfg config.AzureConfig) (Publisher, error) {
	if cfg.QueueConnStr == "" {
		log.Debug().Msg("Service Bus connection string not provided, delivery events will not be published")
		return Discard{}, nil
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &ServiceBusPublisher{client: client, sender: sender, queueName: cfg.QueueName}, nil
}

// Publish sends one event
func (p *ServiceBusPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	contentType := "application/json"
	msg := &azservicebus.Message{
		Body:        data,
		MessageID:   &event.ID,
		Subject:     &event.Type,
		ContentType: &contentType,
		ApplicationProperties: map[string]interface{}{
			"source": "dairy",
			"time":   event.OccurredAt.Format(time.RFC3339),
		},
	}

	if err := p.sender.SendMessage(ctx, msg, nil); err != nil {
		return errors.Wrapf(err, "failed to publish %s to %s", event.Type, p.queueName)
	}
	return nil
}

// Close closes the sender and the client
func (p *ServiceBusPublisher) Close() error {
	ctx := context.Background()
	if p.sender != nil {
		if err := p.sender.Close(ctx); err != nil {
			return err
		}
	}
	if p.client != nil {
		return p.client.Close(ctx)
	}
	return nil
}

// Discard drops every event
type Discard struct{}

func (Discard) Publish(ctx context.Context, event Event) error { return nil }
func (Discard) Close() error                                   { return nil }
