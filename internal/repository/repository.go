package repository

import (
	"time"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/models"

	"github.com/pkg/errors"
)

// Common repository errors
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories bundles the table repositories over one backend client
type Repositories struct {
	Customers       CustomerRepository
	Agents          AgentRepository
	Assignments     AssignmentRepository
	DailyDeliveries DailyDeliveryRepository
	Products        ProductRepository
	Invoices        InvoiceRepository
	Payments        PaymentRepository
	Profiles        ProfileRepository
}

// New creates every repository over client
func New(client backend.Client) *Repositories {
	return &Repositories{
		Customers:       NewCustomerRepository(client),
		Agents:          NewAgentRepository(client),
		Assignments:     NewAssignmentRepository(client),
		DailyDeliveries: NewDailyDeliveryRepository(client),
		Products:        NewProductRepository(client),
		Invoices:        NewInvoiceRepository(client),
		Payments:        NewPaymentRepository(client),
		Profiles:        NewProfileRepository(client),
	}
}

// DateRange is an inclusive date window; zero bounds are open
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) filters(column string) []backend.Filter {
	var out []backend.Filter
	if !r.From.IsZero() {
		out = append(out, backend.Gte(column, models.FormatDate(r.From)))
	}
	if !r.To.IsZero() {
		out = append(out, backend.Lte(column, models.FormatDate(r.To)))
	}
	return out
}

// filtersOrNull also keeps rows with no date, which apply to every day
func (r DateRange) filtersOrNull(column string) []backend.Filter {
	var from, to interface{}
	if !r.From.IsZero() {
		from = models.FormatDate(r.From)
	}
	if !r.To.IsZero() {
		to = models.FormatDate(r.To)
	}
	if from == nil && to == nil {
		return nil
	}
	return []backend.Filter{backend.WithinOrNull(column, from, to)}
}

func wrap(err error, op, table string) error {
	return errors.Wrapf(err, "%s %s", op, table)
}
