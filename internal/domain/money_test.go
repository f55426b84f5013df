package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServiceFeeRoundHalfUp(t *testing.T) {
	tests := []struct {
		subtotal int64
		fee      int64
	}{
		{0, 0},
		{100, 10},
		{200, 20},
		{235, 24}, // 23.5 rounds up
		{234, 23}, // 23.4 rounds down
		{5, 1},    // 0.5 rounds up
		{4, 0},    // 0.4 rounds down
		{999, 100},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.fee, ServiceFeeFor(tc.subtotal), "subtotal=%d", tc.subtotal)
	}
}

func TestTotalsFor(t *testing.T) {
	totals := TotalsFor(235)
	assert.Equal(t, Totals{Subtotal: 235, ServiceFee: 24, Total: 259}, totals)
}

func TestDateSessionValid(t *testing.T) {
	start := time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC)

	s := DateSession{StartAt: start, EndAt: start.Add(5 * time.Hour)}
	assert.True(t, s.Valid())

	s.EndAt = s.StartAt
	assert.False(t, s.Valid())
}
