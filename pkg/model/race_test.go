package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRaceStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from RaceStatus
		to   RaceStatus
		want bool
	}{
		{name: "processing_to_ready", from: StatusProcessing, to: StatusReady, want: true},
		{name: "processing_to_failed", from: StatusProcessing, to: StatusFailed, want: true},
		{name: "processing_to_processing", from: StatusProcessing, to: StatusProcessing, want: false},
		{name: "ready_is_terminal", from: StatusReady, to: StatusFailed, want: false},
		{name: "ready_no_revert", from: StatusReady, to: StatusProcessing, want: false},
		{name: "failed_is_terminal", from: StatusFailed, to: StatusReady, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestParseRaceStatus(t *testing.T) {
	got, err := ParseRaceStatus("Ready")
	assert.NoError(t, err)
	assert.Equal(t, StatusReady, got)
	assert.True(t, got.Terminal())

	_, err = ParseRaceStatus("Pending")
	assert.Error(t, err)
}
