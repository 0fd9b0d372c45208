package services

import (
	"context"
	"sort"
	"time"

	"example.com/backstage/dairy/internal/metrics"
	"example.com/backstage/dairy/internal/models"
	"example.com/backstage/dairy/internal/repository"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Invoice statuses
const (
	InvoiceDraft  = "draft"
	InvoiceIssued = "issued"
)

// Draft is an invoice computed from delivered quantities, not yet saved
type Draft struct {
	Invoice    repository.NewInvoice       `json:"invoice"`
	Items      []repository.NewInvoiceItem `json:"items"`
	Deliveries int                         `json:"deliveries"`
}

// Balance is what a customer owes across all invoices
type Balance struct {
	CustomerID string          `json:"customer_id"`
	Invoiced   decimal.Decimal `json:"invoiced"`
	Paid       decimal.Decimal `json:"paid"`
	Due        decimal.Decimal `json:"due"`
}

// BillingService turns delivered quantities into invoices
type BillingService struct {
	repos   *repository.Repositories
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewBillingService creates a new billing service
func NewBillingService(repos *repository.Repositories, deps Deps) *BillingService {
	deps = deps.withDefaults()
	return &BillingService{repos: repos, metrics: deps.Metrics, now: deps.Now}
}

// DraftInvoice groups the customer's delivered rows of the period by
// product and rate. Rows without a rate are billed at the customer rate.
func (s *BillingService) DraftInvoice(ctx context.Context, customerID string, start, end time.Time) (*Draft, error) {
	if customerID == "" {
		return nil, errors.New("customer id is required")
	}
	if end.Before(start) {
		return nil, errors.New("period ends before it starts")
	}

	customer, err := s.repos.Customers.Get(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load customer")
	}

	deliveries, err := s.repos.DailyDeliveries.List(ctx, repository.DeliveryFilter{
		CustomerIDs: []string{customerID},
		Dates:       repository.DateRange{From: start, To: end},
		Status:      models.StatusDelivered,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load deliveries")
	}

	type line struct {
		product string
		rate    decimal.Decimal
		liters  float64
	}
	lines := map[string]*line{}
	for _, d := range deliveries {
		product := d.Product
		if product == "" {
			product = customer.Product
		}
		if product == "" {
			product = "Milk"
		}
		rate := d.Rate
		if rate.IsZero() {
			rate = customer.Rate
		}
		key := product + "@" + rate.String()
		l, ok := lines[key]
		if !ok {
			l = &line{product: product, rate: rate}
			lines[key] = l
		}
		l.liters += d.Quantity
	}

	draft := &Draft{
		Invoice: repository.NewInvoice{
			CustomerID:  customerID,
			PeriodStart: models.FormatDate(start),
			PeriodEnd:   models.FormatDate(end),
			Status:      InvoiceDraft,
		},
		Items:      make([]repository.NewInvoiceItem, 0, len(lines)),
		Deliveries: len(deliveries),
	}
	total := decimal.Zero
	for _, l := range lines {
		amount := decimal.NewFromFloat(l.liters).Mul(l.rate).Round(2)
		total = total.Add(amount)
		draft.Items = append(draft.Items, repository.NewInvoiceItem{
			Description: l.product,
			Quantity:    l.liters,
			Rate:        l.rate,
			Amount:      amount,
		})
	}
	sort.Slice(draft.Items, func(i, j int) bool {
		if draft.Items[i].Description != draft.Items[j].Description {
			return draft.Items[i].Description < draft.Items[j].Description
		}
		return draft.Items[i].Rate.LessThan(draft.Items[j].Rate)
	})
	draft.Invoice.Total = total
	return draft, nil
}

// IssueInvoice saves a draft as an issued invoice with its items
func (s *BillingService) IssueInvoice(ctx context.Context, draft *Draft) (*models.Invoice, []models.InvoiceItem, error) {
	if draft == nil || len(draft.Items) == 0 {
		return nil, nil, errors.New("nothing to invoice")
	}

	invoice := draft.Invoice
	invoice.Status = InvoiceIssued
	invoice.IssuedAt = models.NewTime(s.now())

	start := s.now()
	saved, items, err := s.repos.Invoices.Create(ctx, invoice, draft.Items)
	s.metrics.Observe("issue_invoice", start, err)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to issue invoice")
	}

	log.Info().
		Str("customer_id", invoice.CustomerID).
		Str("invoice_id", saved.ID).
		Str("total", invoice.Total.StringFixed(2)).
		Msg("Invoice issued")
	return saved, items, nil
}

// RecordPayment stores money received from a customer
func (s *BillingService) RecordPayment(ctx context.Context, payment repository.NewPayment) (*models.Payment, error) {
	if !payment.Amount.IsPositive() {
		return nil, errors.New("payment amount must be positive")
	}
	saved, err := s.repos.Payments.Create(ctx, payment)
	if err != nil {
		return nil, errors.Wrap(err, "failed to record payment")
	}
	return saved, nil
}

// Balance totals the customer's invoices against their payments
func (s *BillingService) Balance(ctx context.Context, customerID string) (*Balance, error) {
	invoices, err := s.repos.Invoices.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load invoices")
	}
	payments, err := s.repos.Payments.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load payments")
	}

	b := &Balance{CustomerID: customerID, Invoiced: decimal.Zero, Paid: decimal.Zero}
	for _, inv := range invoices {
		if inv.Status == InvoiceDraft {
			continue
		}
		b.Invoiced = b.Invoiced.Add(inv.Total)
	}
	for _, p := range payments {
		b.Paid = b.Paid.Add(p.Amount)
	}
	b.Due = b.Invoiced.Sub(b.Paid)
	return b, nil
}
