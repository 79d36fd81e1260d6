package playback

// Output is the audio transport the engines drive. Exactly one hardware
// audio session exists; the coordinator decides which engine owns it.
// The production implementation is the MPD client.
type Output interface {
	// Load replaces the current audio source with uri and starts playback.
	Load(uri string) error
	Pause() error
	Resume() error
	Stop() error
	// SeekSec seeks within the current source. The engines clamp the value
	// before calling.
	SeekSec(sec float64) error
	// Elapsed reports the playback position of the current source.
	Elapsed() (float64, error)
}
