package vehicle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFlightMode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want FlightMode
	}{
		{"offboard", "OFFBOARD", ModeOffboard},
		{"rtl", "RTL", ModeReturnToLaunch},
		{"loiter is hold", "LOITER", ModeHold},
		{"lowercase is unknown", "offboard", ModeUnknown},
		{"empty", "", ModeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFlightMode(tt.in))
		})
	}
}

func TestFlightMode_AcceptsSetpoints(t *testing.T) {
	assert.True(t, ModeOffboard.AcceptsSetpoints())
	assert.False(t, ModeHold.AcceptsSetpoints())
	assert.False(t, ModeReturnToLaunch.AcceptsSetpoints())
}

func TestHealth_Locked(t *testing.T) {
	assert.True(t, Health{GlobalPositionOK: true, HomePositionOK: true}.Locked())
	assert.False(t, Health{GlobalPositionOK: true}.Locked())
	assert.False(t, Health{}.Locked())
}
