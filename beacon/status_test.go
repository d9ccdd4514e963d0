package beacon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeStatusWindows(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	th := DefaultThresholds()

	tests := []struct {
		name     string
		lastSeen time.Time
		want     Status
	}{
		{"just checked in", now, StatusActive},
		{"inside active window", now.Add(-4 * time.Minute), StatusActive},
		{"exactly at active boundary", now.Add(-5 * time.Minute), StatusDormant},
		{"inside dormant window", now.Add(-29 * time.Minute), StatusDormant},
		{"exactly at dormant boundary", now.Add(-30 * time.Minute), StatusDead},
		{"long gone", now.Add(-48 * time.Hour), StatusDead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStatus(false, tt.lastSeen, now, th))
		})
	}
}

func TestComputeStatusKilledWinsOverTiming(t *testing.T) {
	now := time.Now()

	// Even a beacon seen a second ago reports killed once the flag is set.
	assert.Equal(t, StatusKilled, ComputeStatus(true, now.Add(-time.Second), now, DefaultThresholds()))
	assert.Equal(t, StatusKilled, ComputeStatus(true, now.Add(-48*time.Hour), now, DefaultThresholds()))
}

func TestComputeStatusZeroThresholdsFallBack(t *testing.T) {
	now := time.Now()

	got := ComputeStatus(false, now.Add(-10*time.Minute), now, Thresholds{})
	assert.Equal(t, StatusDormant, got)
}

func TestComputeStatusCustomThresholds(t *testing.T) {
	now := time.Now()
	th := Thresholds{ActiveWindow: time.Minute, DormantWindow: 2 * time.Minute}

	assert.Equal(t, StatusActive, ComputeStatus(false, now.Add(-30*time.Second), now, th))
	assert.Equal(t, StatusDormant, ComputeStatus(false, now.Add(-90*time.Second), now, th))
	assert.Equal(t, StatusDead, ComputeStatus(false, now.Add(-3*time.Minute), now, th))
}
