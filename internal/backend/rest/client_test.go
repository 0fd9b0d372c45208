package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"example.com/backstage/dairy/internal/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{URL: srv.URL, AnonKey: "anon"})
}

func TestSelectEncodesFilters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/delivery_assignments", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "*", q.Get("select"))
		assert.Equal(t, "eq.agent-1", q.Get("delivery_agent_id"))
		assert.Equal(t, []string{"gte.2024-05-01", "lte.2024-05-07"}, q["date"])
		assert.Equal(t, "is.null", q.Get("unassigned_at"))
		assert.Equal(t, "in.(morning,evening)", q.Get("shift"))
		assert.Equal(t, "date.asc", q.Get("order"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"id":"a1"}]`))
	})

	raw, err := client.Select(context.Background(), "delivery_assignments", backend.Query{
		Filters: []backend.Filter{
			backend.Eq("delivery_agent_id", "agent-1"),
			backend.Gte("date", "2024-05-01"),
			backend.Lte("date", "2024-05-07"),
			backend.IsNull("unassigned_at"),
			backend.In("shift", []string{"morning", "evening"}),
		},
		Order: []backend.Order{{Column: "date"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a1"}]`, string(raw))
}

func TestSelectKeepsUndatedRows(t *testing.T) {
	var got []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Query().Get("or"))
		assert.Empty(t, r.URL.Query()["date"])
		_, _ = w.Write([]byte(`[]`))
	})

	for _, f := range []backend.Filter{
		backend.WithinOrNull("date", "2024-05-01", "2024-05-07"),
		backend.WithinOrNull("date", "2024-05-01", nil),
	} {
		_, err := client.Select(context.Background(), "delivery_assignments", backend.Query{Filters: []backend.Filter{f}})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{
		"(date.is.null,and(date.gte.2024-05-01,date.lte.2024-05-07))",
		"(date.is.null,date.gte.2024-05-01)",
	}, got)

	_, err := client.Select(context.Background(), "delivery_assignments", backend.Query{
		Filters: []backend.Filter{backend.WithinOrNull("date", nil, nil)},
	})
	assert.Error(t, err)
}

func TestRPCUsesAccessToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/rpc/start_delivery_trip", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))

		var params map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "a1", params["p_assignment_id"])
		_, _ = w.Write([]byte(`"trip-1"`))
	})

	scoped := backend.Scoped(client, "user-token")
	raw, err := scoped.RPC(context.Background(), "start_delivery_trip", map[string]interface{}{"p_assignment_id": "a1"})
	require.NoError(t, err)
	assert.Equal(t, `"trip-1"`, string(raw))
}

func TestErrorsAreMapped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/daily_deliveries":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint","details":"Key exists"}`))
		case "/rest/v1/rpc/set_delivery_status":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"23503","message":"insert or update on table \"daily_deliveries\" violates foreign key constraint"}`))
		case "/rest/v1/rpc/get_agent_assignments":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"code":"42501","message":"permission denied for function get_agent_assignments"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`upstream unavailable`))
		}
	})
	ctx := context.Background()

	_, err := client.Insert(ctx, "daily_deliveries", []map[string]string{{"customer_id": "c1"}})
	require.Error(t, err)
	assert.True(t, backend.IsUniqueViolation(err))
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "Key exists", be.Details)

	_, err = client.RPC(ctx, "set_delivery_status", map[string]interface{}{"p_assignment_id": "missing"})
	require.Error(t, err)
	assert.False(t, backend.IsUniqueViolation(err))

	_, err = client.RPC(ctx, "get_agent_assignments", nil)
	assert.True(t, backend.IsPermissionDenied(err))
	assert.False(t, backend.IsUniqueViolation(err))

	_, err = client.Select(ctx, "customers", backend.Query{})
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusBadGateway, be.Status)
	assert.Equal(t, "upstream unavailable", be.Message)
}

func TestUpdateAndDeleteRequireFilters(t *testing.T) {
	client := NewClient(Options{URL: "http://localhost", AnonKey: "anon"})
	_, err := client.Update(context.Background(), "customers", nil, map[string]interface{}{"name": "x"})
	assert.Error(t, err)
	assert.Error(t, client.Delete(context.Background(), "customers", nil))
}

func TestRejectsBadIdentifiers(t *testing.T) {
	client := NewClient(Options{URL: "http://localhost", AnonKey: "anon"})
	_, err := client.Select(context.Background(), "customers;drop", backend.Query{})
	assert.Error(t, err)
	_, err = client.RPC(context.Background(), "../auth", nil)
	assert.Error(t, err)
}

func TestSignInWithPassword(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"email":"seller@example.com","password":"secret"}` {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"tok","refresh_token":"ref","expires_in":3600,"user":{"id":"u1","email":"seller@example.com"}}`))
		case "/auth/v1/logout":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	session, err := client.SignInWithPassword(ctx, "seller@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok", session.AccessToken)
	assert.Equal(t, "u1", session.User.ID)

	_, err = client.SignInWithPassword(ctx, "seller@example.com", "wrong")
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "Invalid login credentials", be.Message)

	require.NoError(t, client.SignOut(ctx, "tok"))
}

func TestInvokeFunction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/broadcast_notification", r.URL.Path)
		_, _ = w.Write([]byte(`{"sent":3}`))
	})
	raw, err := client.Invoke(context.Background(), "broadcast_notification", map[string]string{"title": "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sent":3}`, string(raw))
}
