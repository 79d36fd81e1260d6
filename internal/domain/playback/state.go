// Package playback provides the player engines and the coordination core:
// the music and podcast state machines, the cross-engine mutual exclusion,
// the playback event bus, and the sleep timer.
package playback

// State represents an engine's playback state.
type State int

const (
	StateIdle    State = iota // no session (queue empty or cleared)
	StateLoaded               // session present but playback not started
	StatePlaying              // track is playing
	StatePaused               // track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
