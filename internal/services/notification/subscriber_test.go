package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tableside/internal/logger"
	"tableside/internal/models"
)

var at = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func testOrder(status models.OrderStatus) models.Order {
	return models.Order{ID: "o-1", RestaurantID: "r-1", TableID: "t-7", MenuID: "dinner", Status: status}
}

func TestFormatNotification(t *testing.T) {
	previous := models.OrderOrdered
	ready := models.LineReady

	transitioned := models.NewOrderEvent(models.EventOrderTransitioned, testOrder(models.OrderBillRequested), at)
	transitioned.PreviousStatus = &previous

	advanced := models.NewOrderEvent(models.EventItemAdvanced, testOrder(models.OrderOrdered), at)
	advanced.LineID = "l-1"
	advanced.LineStatus = &ready

	tests := []struct {
		name  string
		event models.OrderEvent
		want  string
	}{
		{
			name:  "opened",
			event: models.NewOrderEvent(models.EventOrderOpened, testOrder(models.OrderOpened), at),
			want:  "[2026-03-14 19:00:00] New order o-1 opened at table r-1/t-7.",
		},
		{
			name:  "transitioned",
			event: transitioned,
			want:  "[2026-03-14 19:00:00] Order at table r-1/t-7 moved from 'ordered' to 'bill_requested'.",
		},
		{
			name:  "line advanced",
			event: advanced,
			want:  "[2026-03-14 19:00:00] Item l-1 at table r-1/t-7 is now ready.",
		},
		{
			name:  "unknown type",
			event: models.OrderEvent{Type: "something_else", OrderID: "o-1", OccurredAt: at},
			want:  "[2026-03-14 19:00:00] Order o-1: something_else.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatNotification(tt.event))
		})
	}
}

func TestHandleEvent(t *testing.T) {
	var out bytes.Buffer
	s := NewSubscriber(nil, logger.Discard(), &out)

	body, err := json.Marshal(models.NewOrderEvent(models.EventOrderOpened, testOrder(models.OrderOpened), at))
	require.NoError(t, err)
	require.NoError(t, s.handleEvent(context.Background(), body))
	assert.Contains(t, out.String(), "New order o-1 opened")

	assert.Error(t, s.handleEvent(context.Background(), []byte("{not json")))
}
