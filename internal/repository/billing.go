package repository

import (
	"context"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/models"

	"github.com/shopspring/decimal"
)

// ProductRepository defines the interface for product access
type ProductRepository interface {
	List(ctx context.Context) ([]models.Product, error)
}

// InvoiceRepository defines the interface for invoice access
type InvoiceRepository interface {
	ListByCustomer(ctx context.Context, customerID string) ([]models.Invoice, error)
	Create(ctx context.Context, invoice NewInvoice, items []NewInvoiceItem) (*models.Invoice, []models.InvoiceItem, error)
}

// PaymentRepository defines the interface for payment access
type PaymentRepository interface {
	ListByCustomer(ctx context.Context, customerID string) ([]models.Payment, error)
	Create(ctx context.Context, payment NewPayment) (*models.Payment, error)
}

// NewInvoice is the insert payload for an invoice
type NewInvoice struct {
	OwnerID     string          `json:"owner_id,omitempty"`
	CustomerID  string          `json:"customer_id" validate:"required"`
	PeriodStart string          `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string          `json:"period_end" validate:"required,datetime=2006-01-02"`
	Total       decimal.Decimal `json:"total"`
	Status      string          `json:"status,omitempty"`
	IssuedAt    *models.Time    `json:"issued_at,omitempty"`
}

// NewInvoiceItem is the insert payload for an invoice line
type NewInvoiceItem struct {
	InvoiceID   string          `json:"invoice_id"`
	Description string          `json:"description"`
	Quantity    float64         `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// NewPayment is the insert payload for a payment
type NewPayment struct {
	OwnerID    string          `json:"owner_id,omitempty"`
	CustomerID string          `json:"customer_id" validate:"required"`
	InvoiceID  string          `json:"invoice_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method,omitempty"`
}

type productRepository struct {
	client backend.Client
}

// NewProductRepository creates a new product repository
func NewProductRepository(client backend.Client) ProductRepository {
	return &productRepository{client: client}
}

func (r *productRepository) List(ctx context.Context) ([]models.Product, error) {
	raw, err := r.client.Select(ctx, models.TableProducts, backend.Query{
		Order: []backend.Order{{Column: "name"}},
	})
	if err != nil {
		return nil, wrap(err, "select", models.TableProducts)
	}
	return models.DecodeRows[models.Product](raw)
}

type invoiceRepository struct {
	client backend.Client
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(client backend.Client) InvoiceRepository {
	return &invoiceRepository{client: client}
}

func (r *invoiceRepository) ListByCustomer(ctx context.Context, customerID string) ([]models.Invoice, error) {
	raw, err := r.client.Select(ctx, models.TableInvoices, backend.Query{
		Filters: []backend.Filter{backend.Eq("customer_id", customerID)},
		Order:   []backend.Order{{Column: "period_start", Descending: true}},
	})
	if err != nil {
		return nil, wrap(err, "select", models.TableInvoices)
	}
	return models.DecodeRows[models.Invoice](raw)
}

// Create inserts the invoice, then its items. When the items fail the
// invoice row is removed again so no header is left without lines.
func (r *invoiceRepository) Create(ctx context.Context, invoice NewInvoice, items []NewInvoiceItem) (*models.Invoice, []models.InvoiceItem, error) {
	if err := models.ValidateStruct(invoice); err != nil {
		return nil, nil, err
	}

	raw, err := r.client.Insert(ctx, models.TableInvoices, []NewInvoice{invoice})
	if err != nil {
		return nil, nil, wrap(err, "insert", models.TableInvoices)
	}
	created, err := models.DecodeOne[models.Invoice](raw)
	if err != nil {
		return nil, nil, err
	}
	if created == nil {
		// Disabled backend: nothing was stored
		return nil, nil, backend.ErrNotConfigured
	}
	if len(items) == 0 {
		return created, []models.InvoiceItem{}, nil
	}

	for i := range items {
		items[i].InvoiceID = created.ID
	}
	raw, err = r.client.Insert(ctx, models.TableInvoiceItems, items)
	if err != nil {
		if delErr := r.client.Delete(ctx, models.TableInvoices, []backend.Filter{backend.Eq("id", created.ID)}); delErr != nil {
			return nil, nil, wrap(delErr, "rollback", models.TableInvoices)
		}
		return nil, nil, wrap(err, "insert", models.TableInvoiceItems)
	}
	stored, err := models.DecodeRows[models.InvoiceItem](raw)
	if err != nil {
		return nil, nil, err
	}
	return created, stored, nil
}

type paymentRepository struct {
	client backend.Client
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(client backend.Client) PaymentRepository {
	return &paymentRepository{client: client}
}

func (r *paymentRepository) ListByCustomer(ctx context.Context, customerID string) ([]models.Payment, error) {
	raw, err := r.client.Select(ctx, models.TablePayments, backend.Query{
		Filters: []backend.Filter{backend.Eq("customer_id", customerID)},
		Order:   []backend.Order{{Column: "paid_at", Descending: true}},
	})
	if err != nil {
		return nil, wrap(err, "select", models.TablePayments)
	}
	return models.DecodeRows[models.Payment](raw)
}

func (r *paymentRepository) Create(ctx context.Context, payment NewPayment) (*models.Payment, error) {
	if err := models.ValidateStruct(payment); err != nil {
		return nil, err
	}
	raw, err := r.client.Insert(ctx, models.TablePayments, []NewPayment{payment})
	if err != nil {
		return nil, wrap(err, "insert", models.TablePayments)
	}
	return models.DecodeOne[models.Payment](raw)
}
