package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsFillsTimestampAndArrivalTime(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	var req ComputeRequest
	req.Defaults(now)

	assert.Equal(t, now, req.Timestamp)
	assert.Equal(t, now.Add(time.Hour), req.ArrivalTime)
}

func TestDefaultsLeavesExplicitValuesAlone(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	ts := now.Add(-time.Hour)
	arrival := now.Add(3 * time.Hour)
	req := ComputeRequest{Timestamp: ts, ArrivalTime: arrival}
	req.Defaults(now)

	assert.Equal(t, ts, req.Timestamp)
	assert.Equal(t, arrival, req.ArrivalTime)
}

func TestDefaultsArrivalTimeDerivesFromFilledTimestamp(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	req := ComputeRequest{}
	req.Defaults(now)

	assert.Equal(t, req.Timestamp.Add(time.Hour), req.ArrivalTime)
}
