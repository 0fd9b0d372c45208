package services

import (
	"context"
	"testing"

	"example.com/backstage/dairy/internal/models"
	"example.com/backstage/dairy/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBuildCalendar(t *testing.T) {
	assignments := []models.Assignment{
		{ID: "a1", CustomerID: "c1", Shift: models.ShiftMorning},
		{ID: "a2", CustomerID: "c2", Shift: models.ShiftEvening, Date: "2024-05-02", Liters: 1.5, Delivered: true},
		{ID: "a3", CustomerID: "c2", Shift: models.ShiftEvening, Date: "2024-06-01", Liters: 9},
	}
	customers := []models.Customer{
		{ID: "c1", Name: "Meena", Plan: "2L/day", Product: "Cow Milk", Rate: decimal.NewFromInt(50)},
		{ID: "c2", Name: "Ravi", Plan: "1L"},
	}
	products := []models.Product{{ID: "p1", Name: "milk", Rate: decimal.NewFromInt(40)}}

	report := BuildCalendar(assignments, customers, products, *day("2024-05-01"), *day("2024-05-02"))

	require.Len(t, report.Buckets, 3)
	assert.Equal(t, PickupBucket{Date: "2024-05-01", Shift: models.ShiftMorning, Customers: 1, Liters: 2, CustomerIDs: []string{"c1"}}, report.Buckets[0])
	assert.Equal(t, "2024-05-02", report.Buckets[1].Date)
	assert.Equal(t, models.ShiftMorning, report.Buckets[1].Shift)
	assert.Equal(t, models.ShiftEvening, report.Buckets[2].Shift)
	assert.Equal(t, 1, report.Buckets[2].Delivered)
	assert.Equal(t, 1.5, report.Buckets[2].Liters)

	require.Len(t, report.Products, 2)
	assert.Equal(t, "Cow Milk", report.Products[0].Product)
	assert.Equal(t, 4.0, report.Products[0].Liters)
	assert.Equal(t, "200.00", report.Products[0].Amount.StringFixed(2))
	assert.Equal(t, "Milk", report.Products[1].Product)
	assert.Equal(t, "60.00", report.Products[1].Amount.StringFixed(2))

	assert.Equal(t, 5.5, report.Liters)
	assert.Equal(t, "260.00", report.Amount.StringFixed(2))
}

func TestBuildCalendarRoundsAmounts(t *testing.T) {
	report := BuildCalendar(
		[]models.Assignment{{ID: "a1", CustomerID: "c1", Date: "2024-05-01", Liters: 0.333, Rate: decimal.RequireFromString("47.5")}},
		nil, nil, *day("2024-05-01"), *day("2024-05-01"))
	require.Len(t, report.Products, 1)
	assert.Equal(t, "15.82", report.Products[0].Amount.String())
}

func TestCalendarDefaultsToToday(t *testing.T) {
	client := new(MockClient)
	client.On("Select", mock.Anything, models.TableAssignments, mock.Anything).
		Return(`[{"id":"a1","customer_id":"c1","delivery_agent_id":"d1","shift":"morning","liters":1}]`, nil)
	client.On("Select", mock.Anything, models.TableDailyDeliveries, mock.Anything).Return(`[]`, nil)
	client.On("Select", mock.Anything, models.TableCustomers, mock.Anything).
		Return(`[{"id":"c1","name":"Meena","rate":"55"}]`, nil)
	client.On("Select", mock.Anything, models.TableProducts, mock.Anything).Return(`[]`, nil)

	deps := testDeps()
	repos := repository.New(client)
	s := NewPickupService(NewAssignmentService(client, repos, deps), repos, deps)

	report, err := s.Calendar(context.Background(), AssignmentQuery{})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", report.From)
	assert.Equal(t, "2024-05-02", report.To)
	require.Len(t, report.Buckets, 1)
	assert.Equal(t, "55.00", report.Amount.StringFixed(2))
}

func TestCalendarRejectsInvertedRange(t *testing.T) {
	client := new(MockClient)
	deps := testDeps()
	repos := repository.New(client)
	s := NewPickupService(NewAssignmentService(client, repos, deps), repos, deps)

	_, err := s.Calendar(context.Background(), AssignmentQuery{From: day("2024-05-03"), To: day("2024-05-01")})
	assert.Error(t, err)
	client.AssertNotCalled(t, "Select", mock.Anything, mock.Anything, mock.Anything)
}
