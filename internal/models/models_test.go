package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanLiters(t *testing.T) {
	cases := map[string]float64{
		"1.5L/day":       1.5,
		"2L/day":         2,
		"2 l per day":    2,
		"0.5 Ltr":        0.5,
		"no number here": 0,
		"":               0,
		"500ml":          0,
		"3 packets, 1L":  1,
	}
	for plan, want := range cases {
		assert.Equal(t, want, PlanLiters(plan), "plan %q", plan)
	}
}

func TestEffectiveLitersFallsBackToPlan(t *testing.T) {
	assert.Equal(t, 2.0, EffectiveLiters(0, "2L/day"))
	assert.Equal(t, 1.25, EffectiveLiters(1.25, "2L/day"))
	assert.Equal(t, 0.0, EffectiveLiters(0, ""))

	a := Assignment{Liters: 0, CustomerPlan: "1L/day"}
	assert.Equal(t, 1.0, a.EffectiveLiters(nil))
	assert.Equal(t, 3.0, a.EffectiveLiters(&Customer{Plan: "3L"}))
}

func TestDecodeRows(t *testing.T) {
	raw := json.RawMessage(`[
		{"id":"a1","customer_id":"c1","delivery_agent_id":"d1","date":"2024-05-01","shift":"Morning","liters":1.5,"assigned_at":"2024-05-01T06:00:00.123456"},
		{"id":"a2","customer_id":"c2","delivery_agent_id":"d1","shift":"evening","extra_column":true}
	]`)

	rows, err := DecodeRows[Assignment](raw)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ShiftMorning, rows[0].Shift)
	assert.Equal(t, 1.5, rows[0].Liters)
	require.NotNil(t, rows[0].AssignedAt)
	assert.Equal(t, 2024, rows[0].AssignedAt.Year())
	assert.Equal(t, ShiftEvening, rows[1].Shift)
}

func TestDecodeRowsSingleObjectAndNull(t *testing.T) {
	rows, err := DecodeRows[DeliveryAgent](json.RawMessage(`{"id":"d1","name":"Ravi"}`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ravi", rows[0].Name)

	rows, err = DecodeRows[DeliveryAgent](json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, rows)

	one, err := DecodeOne[DeliveryAgent](json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Nil(t, one)
}

func TestDecodeRowsRejectsUnknownShapes(t *testing.T) {
	_, err := DecodeRows[Assignment](json.RawMessage(`[{"id":"a1","delivery_agent_id":"d1"}]`))
	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, 0, shapeErr.Index)
	assert.Contains(t, err.Error(), "customer_id")

	_, err = DecodeRows[Assignment](json.RawMessage(`[{"id":"a1","customer_id":"c1","delivery_agent_id":"d1","shift":"night"}]`))
	require.Error(t, err)

	_, err = DecodeRows[Assignment](json.RawMessage(`"oops"`))
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, -1, shapeErr.Index)
}

func TestDecodeID(t *testing.T) {
	for _, raw := range []string{
		`"trip-1"`,
		`["trip-1"]`,
		`{"trip_id":"trip-1"}`,
		`[{"id":"trip-1"}]`,
		`[{"start_delivery_trip":"trip-1"}]`,
	} {
		id, err := DecodeID(json.RawMessage(raw), "trip_id", "id")
		require.NoError(t, err, raw)
		assert.Equal(t, "trip-1", id, raw)
	}

	_, err := DecodeID(json.RawMessage(`null`))
	assert.Error(t, err)
}

func TestDeliveryStatus(t *testing.T) {
	assert.True(t, StatusDelivered.IsDelivered())
	assert.True(t, DeliveryStatus("delivered").IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusNotAvailable.IsFailure())
	assert.False(t, DeliveryStatus("").IsFailure())
}

func TestParseFailureStatus(t *testing.T) {
	s, ok := ParseFailureStatus("not_available")
	assert.True(t, ok)
	assert.Equal(t, StatusNotAvailable, s)

	s, ok = ParseFailureStatus("REFUSED")
	assert.True(t, ok)
	assert.Equal(t, StatusRefused, s)

	_, ok = ParseFailureStatus("customer asleep")
	assert.False(t, ok)
	_, ok = ParseFailureStatus("Delivered")
	assert.False(t, ok)
}

func TestParseShift(t *testing.T) {
	s, ok := ParseShift(" Evening ")
	assert.True(t, ok)
	assert.Equal(t, ShiftEvening, s)

	_, ok = ParseShift("night")
	assert.False(t, ok)
}
