package messaging

import (
	"context"
	"testing"

	"example.com/backstage/dairy/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisherWithoutConnection(t *testing.T) {
	p, err := NewPublisher(config.AzureConfig{QueueName: "delivery-events"})
	require.NoError(t, err)
	assert.IsType(t, Discard{}, p)
	assert.NoError(t, p.Publish(context.Background(), NewEvent(EventTripStarted, nil)))
	assert.NoError(t, p.Close())
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(EventStatusChanged, map[string]string{"assignment_id": "a1"})
	b := NewEvent(EventStatusChanged, nil)

	assert.Equal(t, EventStatusChanged, a.Type)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.OccurredAt.IsZero())
}
