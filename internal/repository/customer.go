package repository

import (
	"context"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/models"
)

// CustomerRepository defines the interface for customer access
type CustomerRepository interface {
	List(ctx context.Context) ([]models.Customer, error)
	Get(ctx context.Context, id string) (*models.Customer, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Customer, error)
	FindByNamePhone(ctx context.Context, name, phone string) (*models.Customer, error)
	Create(ctx context.Context, customer NewCustomer) (*models.Customer, error)
}

// NewCustomer is the insert payload for a customer
type NewCustomer struct {
	OwnerID        string       `json:"owner_id,omitempty"`
	Name           string       `json:"name" validate:"required"`
	Phone          string       `json:"phone,omitempty"`
	Address        string       `json:"address,omitempty"`
	Product        string       `json:"product,omitempty"`
	Rate           string       `json:"rate,omitempty" validate:"omitempty,numeric"`
	Plan           string       `json:"plan,omitempty"`
	PlanType       string       `json:"plan_type,omitempty" validate:"omitempty,oneof=Daily Seasonal"`
	PreferredShift models.Shift `json:"preferred_shift,omitempty"`
}

type customerRepository struct {
	client backend.Client
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(client backend.Client) CustomerRepository {
	return &customerRepository{client: client}
}

func (r *customerRepository) List(ctx context.Context) ([]models.Customer, error) {
	raw, err := r.client.Select(ctx, models.TableCustomers, backend.Query{
		Order: []backend.Order{{Column: "name"}},
	})
	if err != nil {
		return nil, wrap(err, "select", models.TableCustomers)
	}
	return models.DecodeRows[models.Customer](raw)
}

func (r *customerRepository) Get(ctx context.Context, id string) (*models.Customer, error) {
	raw, err := r.client.Select(ctx, models.TableCustomers, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", id)},
		Limit:   1,
	})
	if err != nil {
		return nil, wrap(err, "select", models.TableCustomers)
	}
	customer, err := models.DecodeOne[models.Customer](raw)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, ErrNotFound
	}
	return customer, nil
}

func (r *customerRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Customer, error) {
	if len(ids) == 0 {
		return []models.Customer{}, nil
	}
	raw, err := r.client.Select(ctx, models.TableCustomers, backend.Query{
		Filters: []backend.Filter{backend.In("id", ids)},
	})
	if err != nil {
		return nil, wrap(err, "select", models.TableCustomers)
	}
	return models.DecodeRows[models.Customer](raw)
}

// FindByNamePhone matches the customer login pair; the name is compared
// case-insensitively.
func (r *customerRepository) FindByNamePhone(ctx context.Context, name, phone string) (*models.Customer, error) {
	raw, err := r.client.Select(ctx, models.TableCustomers, backend.Query{
		Filters: []backend.Filter{
			backend.ILike("name", name),
			backend.Eq("phone", phone),
		},
		Limit: 1,
	})
	if err != nil {
		return nil, wrap(err, "select", models.TableCustomers)
	}
	customer, err := models.DecodeOne[models.Customer](raw)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, ErrNotFound
	}
	return customer, nil
}

func (r *customerRepository) Create(ctx context.Context, customer NewCustomer) (*models.Customer, error) {
	if err := models.ValidateStruct(customer); err != nil {
		return nil, err
	}
	raw, err := r.client.Insert(ctx, models.TableCustomers, []NewCustomer{customer})
	if err != nil {
		return nil, wrap(err, "insert", models.TableCustomers)
	}
	return models.DecodeOne[models.Customer](raw)
}
