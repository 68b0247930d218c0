package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOrderStatus(t *testing.T) {
	tests := []struct {
		from    OrderStatus
		trigger OrderTrigger
		want    OrderStatus
		wantErr bool
	}{
		{OrderOpened, TriggerPlaceOrder, OrderOrdered, false},
		{OrderOpened, TriggerRequestBill, OrderBillRequested, false},
		{OrderOrdered, TriggerRequestBill, OrderBillRequested, false},
		{OrderOrdered, TriggerDeliver, OrderDelivered, false},
		{OrderDelivered, TriggerRequestBill, OrderBillRequested, false},
		{OrderBillRequested, TriggerPay, OrderPaid, false},
		{OrderPaid, TriggerClose, OrderClosed, false},

		{OrderBillRequested, TriggerPlaceOrder, OrderBillRequested, true},
		{OrderOrdered, TriggerPlaceOrder, OrderOrdered, true},
		{OrderOpened, TriggerPay, OrderOpened, true},
		{OrderOpened, TriggerDeliver, OrderOpened, true},
		{OrderPaid, TriggerPay, OrderPaid, true},
		{OrderClosed, TriggerClose, OrderClosed, true},
		{OrderBillRequested, TriggerClose, OrderBillRequested, true},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+string(tt.trigger), func(t *testing.T) {
			got, err := NextOrderStatus(tt.from, tt.trigger)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTransition))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOrder_TransitionStampsEdge(t *testing.T) {
	at := time.Date(2025, 3, 1, 19, 30, 0, 0, time.UTC)
	o := Order{Status: OrderOpened}

	require.NoError(t, o.Transition(TriggerRequestBill, at))
	assert.Equal(t, OrderBillRequested, o.Status)
	require.NotNil(t, o.BillRequestedAt)
	assert.Equal(t, at, *o.BillRequestedAt)
	assert.Nil(t, o.OrderedAt)

	err := o.Transition(TriggerPlaceOrder, at.Add(time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, OrderBillRequested, o.Status)
	assert.Equal(t, at, o.UpdatedAt)
}

func TestParseOrderStatus(t *testing.T) {
	s, err := ParseOrderStatus(30)
	require.NoError(t, err)
	assert.Equal(t, OrderBillRequested, s)

	_, err = ParseOrderStatus(35)
	assert.ErrorIs(t, err, ErrCorruptStatus)
}

func TestOrderStatus_JSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		S OrderStatus `json:"s"`
	}{OrderBillRequested})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"bill_requested"}`, string(raw))

	var out struct {
		S OrderStatus `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"paid"}`), &out))
	assert.Equal(t, OrderPaid, out.S)

	assert.Error(t, json.Unmarshal([]byte(`{"s":"eaten"}`), &out))
}

func TestOrderStatus_Predicates(t *testing.T) {
	assert.True(t, OrderBillRequested.IsActive())
	assert.False(t, OrderPaid.IsActive())
	assert.False(t, OrderClosed.IsActive())

	assert.True(t, OrderOpened.AcceptsItems())
	assert.True(t, OrderDelivered.AcceptsItems())
	assert.False(t, OrderBillRequested.AcceptsItems())

	assert.True(t, OrderBillRequested.Admits(RoleCustomer))
	assert.False(t, OrderPaid.Admits(RoleCustomer))
	assert.True(t, OrderPaid.Admits(RoleStaff))
	assert.False(t, OrderClosed.Admits(RoleStaff))
}

func TestSummarize(t *testing.T) {
	lines := Lines{
		{PriceSnapshot: decimal.RequireFromString("15.99"), Status: LineAdded},
		{PriceSnapshot: decimal.RequireFromString("14.50"), Status: LineOrdered},
		{PriceSnapshot: decimal.RequireFromString("9.00"), Status: LineRemoved},
		{PriceSnapshot: decimal.RequireFromString("4.00"), Status: LineDelivered},
	}
	participants := []Participant{
		{SessionID: "a", Role: RoleCustomer},
		{SessionID: "b", Role: RoleCustomer},
		{SessionID: "s", Role: RoleStaff},
	}

	sum := Summarize(Order{ID: "o-1"}, lines, participants)

	assert.True(t, sum.RunningTotal.Equal(decimal.RequireFromString("34.49")))
	assert.Equal(t, 3, sum.ActiveItems)
	assert.Equal(t, 2, sum.OrderedCount)
	assert.Equal(t, 1, sum.PreparedCount)
	assert.Equal(t, 1, sum.DeliveredCount)
	assert.Equal(t, 2, sum.DinerCount)
}

func TestOrderEvent_Keys(t *testing.T) {
	at := time.Now().UTC()
	e := NewOrderEvent(EventItemAdded, Order{ID: "o-1", RestaurantID: "r", TableID: "t", MenuID: "m"}, at).
		WithLine(OrderLine{ID: "l-1", Status: LineAdded})

	assert.Equal(t, "order.item_added", e.RoutingKey())
	assert.Equal(t, []string{"order:o-1", "table:r:t:m", "order_line:l-1"}, e.InvalidationKeys)
	require.NotNil(t, e.LineStatus)
	assert.Equal(t, LineAdded, *e.LineStatus)
}
