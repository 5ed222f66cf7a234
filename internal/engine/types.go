package engine

// State is the live transport snapshot owned by the Link. Field names on the
// wire match what observers expect.
type State struct {
	Paused   bool    `json:"paused"`
	Volume   float64 `json:"volume"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Loading  bool    `json:"isLoading"`
}

type EventKind int

const (
	// EventState carries a fresh State snapshot after a property update.
	EventState EventKind = iota
	// EventTrackEnded signals the engine went idle after playing a track.
	EventTrackEnded
)

type Event struct {
	Kind  EventKind
	State State
}

// SettingKeyVolume is the durable settings key for the last requested volume.
const SettingKeyVolume = "volume"
