package vehicle

// FlightMode is the controller's active flight mode.
type FlightMode string

const (
	ModeUnknown        FlightMode = "unknown"
	ModeManual         FlightMode = "manual"
	ModeHold           FlightMode = "hold"
	ModeOffboard       FlightMode = "offboard"
	ModeReturnToLaunch FlightMode = "return_to_launch"
	ModeLand           FlightMode = "land"
)

// modeNames maps the controller's custom mode strings onto FlightMode.
var modeNames = map[string]FlightMode{
	"MANUAL":   ModeManual,
	"HOLD":     ModeHold,
	"LOITER":   ModeHold,
	"OFFBOARD": ModeOffboard,
	"RTL":      ModeReturnToLaunch,
	"LAND":     ModeLand,
}

// ParseFlightMode converts a controller mode name. Unknown names map to ModeUnknown.
func ParseFlightMode(name string) FlightMode {
	if m, ok := modeNames[name]; ok {
		return m
	}
	return ModeUnknown
}

// AcceptsSetpoints reports whether external setpoints are honoured in this mode.
func (m FlightMode) AcceptsSetpoints() bool {
	return m == ModeOffboard
}
