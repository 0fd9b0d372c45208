package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient is a backend.Client driven by testify expectations
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Configured() bool { return true }

func (m *MockClient) Select(ctx context.Context, table string, q backend.Query) (json.RawMessage, error) {
	args := m.Called(ctx, table, q)
	return raw(args.Get(0)), args.Error(1)
}

func (m *MockClient) Insert(ctx context.Context, table string, rows interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, table, rows)
	return raw(args.Get(0)), args.Error(1)
}

func (m *MockClient) Update(ctx context.Context, table string, filters []backend.Filter, values map[string]interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, table, filters, values)
	return raw(args.Get(0)), args.Error(1)
}

func (m *MockClient) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	args := m.Called(ctx, table, filters)
	return args.Error(0)
}

func (m *MockClient) RPC(ctx context.Context, fn string, params map[string]interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, fn, params)
	return raw(args.Get(0)), args.Error(1)
}

func raw(v interface{}) json.RawMessage {
	if s, ok := v.(string); ok {
		return json.RawMessage(s)
	}
	return nil
}

func TestListCurrentAssignmentsFilters(t *testing.T) {
	client := new(MockClient)
	repo := NewAssignmentRepository(client)

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)
	client.On("Select", mock.Anything, models.TableAssignments, backend.Query{
		Filters: []backend.Filter{
			backend.IsNull("unassigned_at"),
			backend.Eq("delivery_agent_id", "d1"),
			backend.WithinOrNull("date", "2024-05-01", "2024-05-07"),
		},
		Order: []backend.Order{{Column: "assigned_at"}},
	}).Return(`[{"id":"a1","customer_id":"c1","delivery_agent_id":"d1","shift":"morning"}]`, nil)

	rows, err := repo.ListCurrent(context.Background(), AssignmentFilter{AgentID: "d1", Dates: DateRange{From: from, To: to}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c1", rows[0].CustomerID)
	client.AssertExpectations(t)
}

func TestListCurrentKeepsUndatedAssignments(t *testing.T) {
	client := new(MockClient)
	repo := NewAssignmentRepository(client)

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	client.On("Select", mock.Anything, models.TableAssignments, backend.Query{
		Filters: []backend.Filter{
			backend.IsNull("unassigned_at"),
			backend.WithinOrNull("date", "2024-05-01", nil),
		},
		Order: []backend.Order{{Column: "assigned_at"}},
	}).Return(`[{"id":"a1","customer_id":"c1","delivery_agent_id":"d1","shift":"morning","date":null}]`, nil)

	rows, err := repo.ListCurrent(context.Background(), AssignmentFilter{Dates: DateRange{From: from}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a1", rows[0].ID)
	client.AssertExpectations(t)
}

func TestUnassignAgentOnlyTouchesDatedRows(t *testing.T) {
	client := new(MockClient)
	repo := NewAssignmentRepository(client)
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	client.On("Update", mock.Anything, models.TableAssignments,
		[]backend.Filter{
			backend.IsNull("unassigned_at"),
			backend.Eq("delivery_agent_id", "d1"),
			backend.Gte("date", "2024-05-01"),
			backend.Lte("date", "2024-05-01"),
		},
		mock.Anything,
	).Return(`[]`, nil)

	n, err := repo.UnassignAgent(context.Background(), AssignmentFilter{AgentID: "d1", Dates: DateRange{From: day, To: day}}, day)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	client.AssertExpectations(t)
}

func TestInsertAssignmentsValidates(t *testing.T) {
	client := new(MockClient)
	repo := NewAssignmentRepository(client)

	_, err := repo.Insert(context.Background(), []NewAssignment{{CustomerID: "c1"}})
	require.Error(t, err)
	client.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)

	rows, err := repo.Insert(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUnassignAgentCountsClosedRows(t *testing.T) {
	client := new(MockClient)
	repo := NewAssignmentRepository(client)
	at := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

	client.On("Update", mock.Anything, models.TableAssignments,
		[]backend.Filter{backend.IsNull("unassigned_at"), backend.Eq("delivery_agent_id", "d1")},
		map[string]interface{}{"unassigned_at": "2024-05-01T06:00:00Z"},
	).Return(`[{"id":"a1","customer_id":"c1","delivery_agent_id":"d1"},{"id":"a2","customer_id":"c2","delivery_agent_id":"d1"}]`, nil)

	n, err := repo.UnassignAgent(context.Background(), AssignmentFilter{AgentID: "d1"}, at)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFindAgentByLoginFallsBackToName(t *testing.T) {
	client := new(MockClient)
	repo := NewAgentRepository(client)

	client.On("Select", mock.Anything, models.TableDeliveryAgents, backend.Query{
		Filters: []backend.Filter{backend.Eq("login_id", "ravi"), backend.Eq("phone", "555")},
		Limit:   1,
	}).Return(`[]`, nil)
	client.On("Select", mock.Anything, models.TableDeliveryAgents, backend.Query{
		Filters: []backend.Filter{backend.ILike("name", "ravi"), backend.Eq("phone", "555")},
		Limit:   1,
	}).Return(`[{"id":"d1","name":"Ravi","phone":"555"}]`, nil)

	agent, err := repo.FindByLogin(context.Background(), "ravi", "555")
	require.NoError(t, err)
	assert.Equal(t, "d1", agent.ID)
}

func TestGetCustomerNotFound(t *testing.T) {
	client := new(MockClient)
	repo := NewCustomerRepository(client)
	client.On("Select", mock.Anything, models.TableCustomers, mock.Anything).Return(`[]`, nil)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateInvoiceRollsBackOnItemFailure(t *testing.T) {
	client := new(MockClient)
	repo := NewInvoiceRepository(client)

	client.On("Insert", mock.Anything, models.TableInvoices, mock.Anything).
		Return(`[{"id":"inv-1","customer_id":"c1","period_start":"2024-05-01","period_end":"2024-05-31","total":"120"}]`, nil)
	client.On("Insert", mock.Anything, models.TableInvoiceItems, mock.Anything).
		Return(nil, &backend.Error{Status: 403, Code: "42501", Message: "permission denied"})
	client.On("Delete", mock.Anything, models.TableInvoices, []backend.Filter{backend.Eq("id", "inv-1")}).Return(nil)

	_, _, err := repo.Create(context.Background(), NewInvoice{
		CustomerID:  "c1",
		PeriodStart: "2024-05-01",
		PeriodEnd:   "2024-05-31",
		Total:       decimal.NewFromInt(120),
	}, []NewInvoiceItem{{Description: "Milk", Quantity: 60, Rate: decimal.NewFromInt(2), Amount: decimal.NewFromInt(120)}})

	require.Error(t, err)
	assert.True(t, backend.IsPermissionDenied(err))
	client.AssertExpectations(t)
}

func TestAccountLoadsPlanForActiveSubscription(t *testing.T) {
	client := new(MockClient)
	repo := NewProfileRepository(client)

	client.On("Select", mock.Anything, models.TableUserProfiles, mock.Anything).Return(`[{"id":"u1","email":"s@example.com"}]`, nil)
	client.On("Select", mock.Anything, models.TableBusinessProfiles, mock.Anything).Return(`[]`, nil)
	client.On("Select", mock.Anything, models.TableUserSubscriptions, mock.Anything).Return(`[{"id":"s1","user_id":"u1","plan_id":"p1","status":"active"}]`, nil)
	client.On("Select", mock.Anything, models.TableSubscriptionPlans, mock.Anything).Return(`[{"id":"p1","name":"Pro","price":"9.99","max_customers":500}]`, nil)

	acct, err := repo.Account(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "s@example.com", acct.Profile.Email)
	assert.Nil(t, acct.Business)
	require.NotNil(t, acct.Plan)
	assert.Equal(t, 500, acct.Plan.MaxCustomers)
}

func TestSelectErrorsAreWrapped(t *testing.T) {
	client := new(MockClient)
	repo := NewProductRepository(client)
	client.On("Select", mock.Anything, models.TableProducts, mock.Anything).Return(nil, errors.New("boom"))

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select products")
}
