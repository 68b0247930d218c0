package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineStatus_Ordering(t *testing.T) {
	ordered := []LineStatus{LineAdded, LineRemoved, LineOrdered, LinePreparing, LineReady, LineDelivered}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, int16(ordered[i-1]), int16(ordered[i]))
	}
}

func TestLineStatus_Removable(t *testing.T) {
	assert.True(t, LineAdded.Removable())
	assert.True(t, LineOrdered.Removable())
	assert.False(t, LinePreparing.Removable())
	assert.False(t, LineReady.Removable())
	assert.False(t, LineDelivered.Removable())
	assert.False(t, LineRemoved.Removable())
}

func TestCheckLineAdvance(t *testing.T) {
	tests := []struct {
		name    string
		from    LineStatus
		to      LineStatus
		wantErr bool
	}{
		{"added to ordered", LineAdded, LineOrdered, false},
		{"ordered to preparing", LineOrdered, LinePreparing, false},
		{"preparing to ready", LinePreparing, LineReady, false},
		{"ready to delivered", LineReady, LineDelivered, false},
		{"skip ahead", LineOrdered, LineDelivered, false},
		{"backwards", LineReady, LinePreparing, true},
		{"same state", LineOrdered, LineOrdered, true},
		{"into removed", LineAdded, LineRemoved, true},
		{"out of removed", LineRemoved, LineOrdered, true},
		{"unknown target", LineAdded, LineStatus(99), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckLineAdvance(tt.from, tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLines_CountAtLeast(t *testing.T) {
	lines := Lines{
		{Status: LineAdded},
		{Status: LineRemoved},
		{Status: LineRemoved},
		{Status: LineOrdered},
		{Status: LinePreparing},
		{Status: LineReady},
		{Status: LineDelivered},
	}

	assert.Equal(t, 5, lines.CountAtLeast(LineAdded))
	assert.Equal(t, 4, lines.CountAtLeast(LineRemoved))
	assert.Equal(t, 4, lines.CountAtLeast(LineOrdered))
	assert.Equal(t, 2, lines.CountAtLeast(LineReady))
	assert.Equal(t, 1, lines.CountAtLeast(LineDelivered))
	assert.Equal(t, 0, Lines{}.CountAtLeast(LineAdded))
}

func TestLines_RunningTotal(t *testing.T) {
	lines := Lines{
		{PriceSnapshot: decimal.RequireFromString("15.99"), Status: LineAdded},
		{PriceSnapshot: decimal.RequireFromString("14.50"), Status: LineAdded},
	}
	assert.True(t, lines.RunningTotal().Equal(decimal.RequireFromString("30.49")))

	lines[0].Status = LineRemoved
	assert.True(t, lines.RunningTotal().Equal(decimal.RequireFromString("14.50")))
	assert.True(t, Lines{}.RunningTotal().IsZero())
}

func TestParseLineStatus(t *testing.T) {
	s, err := ParseLineStatus(22)
	require.NoError(t, err)
	assert.Equal(t, LinePreparing, s)

	_, err = ParseLineStatus(5)
	assert.ErrorIs(t, err, ErrCorruptStatus)
}
