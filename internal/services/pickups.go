package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"example.com/backstage/dairy/internal/models"
	"example.com/backstage/dairy/internal/repository"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// maxCalendarDays bounds how far a standing assignment is expanded
const maxCalendarDays = 62

// PickupBucket is what has to be collected for one day and shift
type PickupBucket struct {
	Date        string       `json:"date"`
	Shift       models.Shift `json:"shift"`
	Customers   int          `json:"customers"`
	Delivered   int          `json:"delivered"`
	Liters      float64      `json:"liters"`
	CustomerIDs []string     `json:"customer_ids"`
}

// ProductTotal is the quantity and value of one product over the range
type ProductTotal struct {
	Product string          `json:"product"`
	Liters  float64         `json:"liters"`
	Amount  decimal.Decimal `json:"amount"`
}

// PickupReport is the pickup calendar of a date range
type PickupReport struct {
	From     string          `json:"from"`
	To       string          `json:"to"`
	Buckets  []PickupBucket  `json:"buckets"`
	Products []ProductTotal  `json:"products"`
	Liters   float64         `json:"liters"`
	Amount   decimal.Decimal `json:"amount"`
}

// PickupService aggregates assignments into what agents pick up
type PickupService struct {
	assignments *AssignmentService
	repos       *repository.Repositories
	now         func() time.Time
}

// NewPickupService creates a new pickup service
func NewPickupService(assignments *AssignmentService, repos *repository.Repositories, deps Deps) *PickupService {
	deps = deps.withDefaults()
	return &PickupService{assignments: assignments, repos: repos, now: deps.Now}
}

// Calendar fetches the assignments of q and lays them out per day and
// shift. Without a range the calendar covers today.
func (s *PickupService) Calendar(ctx context.Context, q AssignmentQuery) (*PickupReport, error) {
	today := truncateDay(s.now())
	if q.From == nil {
		q.From = &today
	}
	if q.To == nil {
		q.To = q.From
	}
	if q.To.Before(*q.From) {
		return nil, errors.New("range ends before it starts")
	}

	assignments, err := s.assignments.Fetch(ctx, q)
	if err != nil {
		return nil, err
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
		log.Debug().Err(err).Msg("Customers not readable, using plans carried on assignments")
		customers = nil
	}
	products, err := s.repos.Products.List(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Products not readable, amounts use customer rates only")
		products = nil
	}

	return BuildCalendar(assignments, customers, products, *q.From, *q.To), nil
}

// BuildCalendar buckets assignments per (date, shift). Dated assignments
// land on their date when it is inside the range; undated ones recur on
// every day of it. Quantities are effective liters and amounts use the
// first non-zero rate of assignment, customer and product.
func BuildCalendar(assignments []models.Assignment, customers []models.Customer, products []models.Product, from, to time.Time) *PickupReport {
	from, to = truncateDay(from), truncateDay(to)
	if to.Sub(from) > maxCalendarDays*24*time.Hour {
		to = from.AddDate(0, 0, maxCalendarDays)
	}

	byID := make(map[string]*models.Customer, len(customers))
	for i := range customers {
		byID[customers[i].ID] = &customers[i]
	}
	productRates := make(map[string]decimal.Decimal, len(products))
	for _, p := range products {
		productRates[strings.ToLower(p.Name)] = p.Rate
	}

	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, models.FormatDate(d))
	}
	first, last := models.FormatDate(from), models.FormatDate(to)

	buckets := map[string]*PickupBucket{}
	totals := map[string]*ProductTotal{}
	report := &PickupReport{From: first, To: last, Amount: decimal.Zero}

	add := func(day string, a models.Assignment) {
		customer := byID[a.CustomerID]
		shift := a.Shift
		if shift == "" && customer != nil {
			shift = customer.PreferredShift
		}
		if shift == "" {
			shift = models.ShiftMorning
		}

		key := day + "|" + string(shift)
		b, ok := buckets[key]
		if !ok {
			b = &PickupBucket{Date: day, Shift: shift, CustomerIDs: []string{}}
			buckets[key] = b
		}
		liters := a.EffectiveLiters(customer)
		b.Customers++
		b.Liters += liters
		b.CustomerIDs = append(b.CustomerIDs, a.CustomerID)
		if a.Delivered {
			b.Delivered++
		}

		product := productName(a, customer)
		t, ok := totals[strings.ToLower(product)]
		if !ok {
			t = &ProductTotal{Product: product, Amount: decimal.Zero}
			totals[strings.ToLower(product)] = t
		}
		amount := decimal.NewFromFloat(liters).Mul(rateFor(a, customer, productRates[strings.ToLower(product)]))
		t.Liters += liters
		t.Amount = t.Amount.Add(amount)
		report.Liters += liters
		report.Amount = report.Amount.Add(amount)
	}

	for _, a := range assignments {
		if a.Date != "" {
			if a.Date >= first && a.Date <= last {
				add(a.Date, a)
			}
			continue
		}
		for _, day := range days {
			add(day, a)
		}
	}

	report.Buckets = make([]PickupBucket, 0, len(buckets))
	for _, b := range buckets {
		report.Buckets = append(report.Buckets, *b)
	}
	sort.Slice(report.Buckets, func(i, j int) bool {
		if report.Buckets[i].Date != report.Buckets[j].Date {
			return report.Buckets[i].Date < report.Buckets[j].Date
		}
		return report.Buckets[i].Shift.Order() < report.Buckets[j].Shift.Order()
	})

	report.Products = make([]ProductTotal, 0, len(totals))
	for _, t := range totals {
		t.Amount = t.Amount.Round(2)
		report.Products = append(report.Products, *t)
	}
	sort.Slice(report.Products, func(i, j int) bool {
		return report.Products[i].Product < report.Products[j].Product
	})
	report.Amount = report.Amount.Round(2)
	return report
}

func productName(a models.Assignment, customer *models.Customer) string {
	if a.Product != "" {
		return a.Product
	}
	if customer != nil && customer.Product != "" {
		return customer.Product
	}
	return "Milk"
}

func rateFor(a models.Assignment, customer *models.Customer, productRate decimal.Decimal) decimal.Decimal {
	if !a.Rate.IsZero() {
		return a.Rate
	}
	if customer != nil && !customer.Rate.IsZero() {
		return customer.Rate
	}
	return productRate
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
