// Package socketio provides the Socket.io server for client communication.
package socketio

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/lyrebird-audio/lyrebird/internal/domain/artwork"
	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
	"github.com/lyrebird-audio/lyrebird/internal/domain/equalizer"
	"github.com/lyrebird-audio/lyrebird/internal/domain/nowplaying"
	"github.com/lyrebird-audio/lyrebird/internal/domain/playback"
)

// VolumeControl adjusts the output volume. The MPD client implements it.
type VolumeControl interface {
	SetVolume(vol int) error
}

// Server handles Socket.io connections and events. It is also the
// now-playing surface for connected clients: descriptor updates go out as
// pushNowPlaying broadcasts.
type Server struct {
	io      *socket.Server
	catalog catalog.Store
	music   *playback.MusicEngine
	podcast *playback.PodcastEngine
	coord   *playback.Coordinator
	eq      *equalizer.Engine
	timer   *playback.SleepTimer
	volume  VolumeControl
	thumbs  *artwork.Thumbnailer

	mu      sync.RWMutex
	clients map[string]*socket.Socket
	now     *nowplaying.Descriptor
}

// NewServer creates a new Socket.io server over the playback components.
func NewServer(
	store catalog.Store,
	music *playback.MusicEngine,
	podcast *playback.PodcastEngine,
	coord *playback.Coordinator,
	eq *equalizer.Engine,
	timer *playback.SleepTimer,
	volume VolumeControl,
	thumbs *artwork.Thumbnailer,
) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	server := socket.NewServer(nil, opts)

	s := &Server{
		io:      server,
		catalog: store,
		music:   music,
		podcast: podcast,
		coord:   coord,
		eq:      eq,
		timer:   timer,
		volume:  volume,
		thumbs:  thumbs,
		clients: make(map[string]*socket.Socket),
	}

	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())

		log.Info().Str("id", clientID).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushState(client)
			s.pushQueue(client)
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On("getState", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getState")
			s.pushState(client)
		})

		client.On("play", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("play")

			m, ok := firstMap(args)
			if !ok {
				s.music.Resume()
				return
			}

			ids := stringSlice(m["ids"])
			if len(ids) == 0 {
				s.music.Resume()
				return
			}

			index := 0
			if v, ok := m["index"].(float64); ok {
				index = int(v)
			}

			queue := s.loadTracks(ids)
			if len(queue) == 0 {
				log.Warn().Str("id", clientID).Msg("play request resolved no tracks")
				return
			}
			s.music.Play(queue, index)
		})

		client.On("playEpisode", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("playEpisode")

			m, ok := firstMap(args)
			if !ok {
				return
			}
			id, _ := m["id"].(string)
			episode, err := s.catalog.Track(id)
			if err != nil || episode == nil {
				log.Warn().Err(err).Str("episodeID", id).Msg("playEpisode: unknown episode")
				return
			}
			s.podcast.Play(episode)
		})

		client.On("pause", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("pause")
			s.pauseActive()
		})

		client.On("toggle", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("toggle")
			switch s.coord.Active() {
			case catalog.KindPodcast:
				if s.podcast.IsPlaying() {
					s.podcast.Pause()
				} else {
					s.podcast.Resume()
				}
			default:
				if s.music.IsPlaying() {
					s.music.Pause()
				} else {
					s.music.Resume()
				}
			}
		})

		client.On("next", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("next")
			s.music.SkipNext()
		})

		client.On("previous", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("previous")
			s.music.SkipPrevious()
		})

		client.On("seek", func(args ...any) {
			if len(args) == 0 {
				return
			}
			pos, ok := args[0].(float64)
			if !ok {
				return
			}
			log.Debug().Str("id", clientID).Float64("pos", pos).Msg("seek")
			if s.coord.Active() == catalog.KindPodcast {
				s.podcast.Seek(pos)
			} else {
				s.music.Seek(pos)
			}
		})

		client.On("volume", func(args ...any) {
			if len(args) > 0 {
				if vol, ok := args[0].(float64); ok {
					log.Debug().Str("id", clientID).Float64("vol", vol).Msg("volume")
					if err := s.volume.SetVolume(int(vol)); err != nil {
						log.Error().Err(err).Msg("SetVolume failed")
					}
				}
			}
		})

		client.On("removeTrack", func(args ...any) {
			m, ok := firstMap(args)
			if !ok {
				return
			}
			id, _ := m["id"].(string)
			if id == "" {
				return
			}
			log.Debug().Str("id", clientID).Str("trackID", id).Msg("removeTrack")
			if err := s.RemoveTrack(id); err != nil {
				log.Warn().Err(err).Str("trackID", id).Msg("removeTrack failed")
				return
			}
			s.pushQueue(client)
		})

		client.On("getQueue", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getQueue")
			s.pushQueue(client)
		})

		client.On("setShuffle", func(args ...any) {
			if m, ok := firstMap(args); ok {
				if v, ok := m["value"].(bool); ok {
					s.music.SetShuffle(v)
				}
			}
		})

		client.On("setLoop", func(args ...any) {
			if m, ok := firstMap(args); ok {
				if v, ok := m["value"].(bool); ok {
					s.music.SetLoop(v)
				}
			}
		})

		client.On("setEqualizer", func(args ...any) {
			m, ok := firstMap(args)
			if !ok {
				return
			}
			band, bandOK := m["band"].(float64)
			gain, gainOK := m["gain"].(float64)
			if !bandOK || !gainOK {
				return
			}
			log.Debug().Str("id", clientID).Int("band", int(band)).Float64("gain", gain).Msg("setEqualizer")
			s.eq.SetGain(int(band), gain)
			s.pushEqualizer(client)
		})

		client.On("equalizerPreset", func(args ...any) {
			m, ok := firstMap(args)
			if !ok {
				return
			}
			name, _ := m["name"].(string)
			if err := s.eq.ApplyPreset(name); err != nil {
				log.Warn().Err(err).Str("preset", name).Msg("Preset apply failed")
				return
			}
			s.pushEqualizer(client)
		})

		client.On("toggleEqualizer", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("toggleEqualizer")
			s.eq.Toggle()
			s.pushEqualizer(client)
		})

		client.On("getEqualizer", func(args ...any) {
			s.pushEqualizer(client)
		})

		client.On("sleepTimer", func(args ...any) {
			m, ok := firstMap(args)
			if !ok {
				return
			}
			minutes, ok := m["minutes"].(float64)
			if !ok || minutes <= 0 {
				return
			}
			log.Info().Str("id", clientID).Int("minutes", int(minutes)).Msg("Sleep timer armed")
			s.timer.Start(int(minutes), func() {
				log.Info().Msg("Sleep timer elapsed, pausing playback")
				s.pauseActive()
			})
		})

		client.On("cancelSleepTimer", func(args ...any) {
			log.Info().Str("id", clientID).Msg("Sleep timer cancelled")
			s.timer.Stop()
		})
	})
}

func (s *Server) pauseActive() {
	if s.coord.Active() == catalog.KindPodcast {
		s.podcast.Pause()
	} else {
		s.music.Pause()
	}
}

// RemoveTrack deletes a track from the catalog along with its cached
// thumbnails.
func (s *Server) RemoveTrack(id string) error {
	track, err := s.catalog.Track(id)
	if err != nil {
		return err
	}
	if track == nil {
		return fmt.Errorf("unknown track %s", id)
	}
	if err := s.catalog.Delete(id); err != nil {
		return err
	}
	s.thumbs.Cleanup(id)
	log.Info().Str("trackID", id).Str("title", track.Title).Msg("Track removed")
	return nil
}

// loadTracks resolves catalog IDs, dropping unknown ones.
func (s *Server) loadTracks(ids []string) []*catalog.Track {
	var out []*catalog.Track
	for _, id := range ids {
		t, err := s.catalog.Track(id)
		if err != nil || t == nil {
			log.Warn().Err(err).Str("trackID", id).Msg("Dropping unknown track from play request")
			continue
		}
		out = append(out, t)
	}
	return out
}

// state assembles the full playback state pushed to clients.
func (s *Server) state() map[string]any {
	music := s.music.Status()
	podcast := s.podcast.Status()

	st := map[string]any{
		"activeKind":   string(s.coord.Active()),
		"sleepTimer":   s.timer.Armed(),
		"sleepMinutes": s.timer.RemainingMinutes(),
		"music": map[string]any{
			"state":    music.State.String(),
			"index":    music.Index,
			"queueLen": music.QueueLen,
			"position": music.PositionSec,
			"shuffle":  music.Shuffle,
			"loop":     music.Loop,
			"track":    music.Track,
		},
		"podcast": map[string]any{
			"state":    podcast.State.String(),
			"position": podcast.PositionSec,
			"episode":  podcast.Episode,
		},
	}
	return st
}

// pushState sends current state to a client.
func (s *Server) pushState(client *socket.Socket) {
	client.Emit("pushState", s.state())
}

// pushQueue sends the music queue to a client.
func (s *Server) pushQueue(client *socket.Socket) {
	client.Emit("pushQueue", s.music.Queue())
}

func (s *Server) pushEqualizer(client *socket.Socket) {
	client.Emit("pushEqualizer", map[string]any{
		"enabled": s.eq.Enabled(),
		"bands":   s.eq.Bands(),
	})
}

// BroadcastState sends state to all connected clients.
func (s *Server) BroadcastState() {
	state := s.state()
	s.io.Emit("pushState", state)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(state)
		s.mu.RLock()
		clientCount := len(s.clients)
		s.mu.RUnlock()
		log.Debug().RawJSON("state", data).Int("clients", clientCount).Msg("Broadcast state")
	}
}

// BroadcastNowPlaying pushes the last now-playing descriptor to all clients.
func (s *Server) BroadcastNowPlaying() {
	s.mu.RLock()
	now := s.now
	s.mu.RUnlock()

	if now == nil {
		s.io.Emit("pushNowPlaying", nil)
		return
	}
	s.io.Emit("pushNowPlaying", *now)
}

// Update implements nowplaying.Surface.
func (s *Server) Update(d nowplaying.Descriptor) error {
	s.mu.Lock()
	s.now = &d
	s.mu.Unlock()
	s.BroadcastNowPlaying()
	return nil
}

// Clear implements nowplaying.Surface.
func (s *Server) Clear() error {
	s.mu.Lock()
	s.now = nil
	s.mu.Unlock()
	s.BroadcastNowPlaying()
	return nil
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.io server.
func (s *Server) Close() error {
	s.io.Close(nil)
	return nil
}

func firstMap(args []any) (map[string]any, bool) {
	if len(args) == 0 {
		return nil, false
	}
	m, ok := args[0].(map[string]any)
	return m, ok
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
