package repository

import (
	"context"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/models"
)

// DeliveryFilter narrows a read of daily deliveries
type DeliveryFilter struct {
	CustomerIDs []string
	Dates       DateRange
	Status      models.DeliveryStatus
}

// DailyDeliveryRepository reads the authoritative daily delivery facts.
// Writes go through the delivery procedures, never this repository.
type DailyDeliveryRepository interface {
	List(ctx context.Context, filter DeliveryFilter) ([]models.DailyDelivery, error)
}

type dailyDeliveryRepository struct {
	client backend.Client
}

// NewDailyDeliveryRepository creates a new daily delivery repository
func NewDailyDeliveryRepository(client backend.Client) DailyDeliveryRepository {
	return &dailyDeliveryRepository{client: client}
}

func (r *dailyDeliveryRepository) List(ctx context.Context, filter DeliveryFilter) ([]models.DailyDelivery, error) {
	var filters []backend.Filter
	if len(filter.CustomerIDs) > 0 {
		filters = append(filters, backend.In("customer_id", filter.CustomerIDs))
	}
	if filter.Status != "" {
		filters = append(filters, backend.Eq("status", string(filter.Status)))
	}
	filters = append(filters, filter.Dates.filters("date")...)

	raw, err := r.client.Select(ctx, models.TableDailyDeliveries, backend.Query{
		Filters: filters,
		Order:   []backend.Order{{Column: "date"}, {Column: "shift"}},
	})
	if err != nil {
		return nil, wrap(err, "select", models.TableDailyDeliveries)
	}
	return models.DecodeRows[models.DailyDelivery](raw)
}
