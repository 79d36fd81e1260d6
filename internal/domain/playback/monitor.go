package playback

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
)

// MonitorOutput consumes player subsystem events from the output and routes
// end-of-source transitions to the active engine. An engine that believes it
// is playing while the output reports stopped has reached the natural end of
// its source; commanded pauses and stops change engine state before touching
// the output, so they never match.
func MonitorOutput(ctx context.Context, events <-chan string, playing func() (bool, error), coord *Coordinator, music *MusicEngine, podcast *PodcastEngine) {
	log.Info().Msg("Output monitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Output monitor stopped")
			return
		case _, ok := <-events:
			if !ok {
				log.Warn().Msg("Output event channel closed")
				return
			}
			active, err := playing()
			if err != nil {
				log.Debug().Err(err).Msg("Failed to read output state")
				continue
			}
			if active {
				continue
			}
			switch coord.Active() {
			case catalog.KindPodcast:
				podcast.OnSourceFinished()
			default:
				music.OnSourceFinished()
			}
		}
	}
}
