// Package main is the entry point for the Lyrebird player backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lyrebird-audio/lyrebird/internal/config"
	"github.com/lyrebird-audio/lyrebird/internal/domain/artwork"
	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
	"github.com/lyrebird-audio/lyrebird/internal/domain/cloud"
	"github.com/lyrebird-audio/lyrebird/internal/domain/equalizer"
	"github.com/lyrebird-audio/lyrebird/internal/domain/importer"
	"github.com/lyrebird-audio/lyrebird/internal/domain/nowplaying"
	"github.com/lyrebird-audio/lyrebird/internal/domain/playback"
	"github.com/lyrebird-audio/lyrebird/internal/infra/dsp"
	"github.com/lyrebird-audio/lyrebird/internal/infra/kv"
	"github.com/lyrebird-audio/lyrebird/internal/infra/mpd"
	"github.com/lyrebird-audio/lyrebird/internal/infra/store"
	"github.com/lyrebird-audio/lyrebird/internal/transport/socketio"
	"github.com/lyrebird-audio/lyrebird/internal/version"
)

const checkpointInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *debug || cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Music & Podcast Player Backend")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("listen", cfg.Listen).
		Str("mpd_host", cfg.MPD.Host).
		Int("mpd_port", cfg.MPD.Port).
		Str("data_dir", cfg.DataDir).
		Bool("password_set", cfg.MPD.Password != "").
		Msg("Configuration")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("Failed to create data directory")
	}

	// Storage
	catalogDB, err := store.Open(filepath.Join(cfg.DataDir, "library.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open catalog database")
	}
	defer catalogDB.Close()

	settings, err := kv.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open settings store")
	}
	defer settings.Close()

	// Audio transport
	mpdClient := mpd.NewClient(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
	if err := mpdClient.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MPD")
	}
	defer mpdClient.Close()

	if err := mpdClient.Ping(); err != nil {
		log.Fatal().Err(err).Msg("MPD ping failed")
	}
	log.Info().Msg("MPD connection verified")

	// Playback core
	bus := playback.NewBus()
	coord := playback.NewCoordinator(bus)
	music := playback.NewMusicEngine(mpdClient, catalogDB, settings, bus, coord,
		playback.WithLoopQueue(cfg.Player.LoopQueue))
	podcast := playback.NewPodcastEngine(mpdClient, catalogDB, bus, coord)
	timer := playback.NewSleepTimer()

	music.RestoreState()

	// Equalizer over the DSP pipeline
	graph := dsp.NewPipeline(filepath.Join(cfg.DataDir, "dsp"), cfg.Player.SampleRate)
	eq := equalizer.NewEngine(graph, settings)

	// Cloud accounts
	registry := cloud.NewRegistry(settings)
	registry.Register(cloud.NewMemoryProvider("drive", nil))
	registry.Register(cloud.NewMemoryProvider("onedrive", nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Track completion is detected from MPD player events.
	playerEvents, err := mpdClient.Watch("player")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start MPD watcher")
	}
	go playback.MonitorOutput(ctx, playerEvents, mpdClient.Playing, coord, music, podcast)

	// Artwork
	thumbs := artwork.NewThumbnailer(filepath.Join(cfg.DataDir, "cache"))
	loader := artwork.NewLoader(thumbs, func(r artwork.Result) {
		if r.Err != nil {
			log.Debug().Err(r.Err).Str("trackID", r.TrackID).Msg("Thumbnail prefetch failed")
		}
	})
	defer loader.CancelAll()

	// Library import in the background, followed by a cover-art prefetch so
	// thumbnails are on disk before the first library view asks for them.
	pipeline := importer.NewPipeline(catalogDB, registry, cfg.Library.MusicDirs, cfg.Library.ExportPath)
	go func() {
		if _, err := pipeline.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("Library import failed")
			return
		}
		tracks, err := catalogDB.ByKind(catalog.KindMusic, catalog.SortTitle)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to list tracks for artwork prefetch")
			return
		}
		queued := artwork.PrefetchCovers(loader, tracks, artwork.ThumbMedium)
		log.Info().Int("queued", queued).Msg("Artwork prefetch queued")
	}()

	// Transport
	socketServer, err := socketio.NewServer(catalogDB, music, podcast, coord, eq, timer, mpdClient, thumbs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer socketServer.Close()

	// Now-playing sync drives pushNowPlaying broadcasts.
	sync := nowplaying.NewSync(bus, socketServer)
	defer sync.Stop()

	// State broadcasts are debounced off the playback bus.
	debouncer := socketio.NewBroadcastDebouncer(100*time.Millisecond,
		socketServer.BroadcastState, socketServer.BroadcastNowPlaying)
	defer debouncer.Stop()
	unsubscribe := bus.Subscribe(func(e playback.Event) { debouncer.Trigger(e) })
	defer unsubscribe()

	// Periodic podcast position checkpoints
	go func() {
		ticker := time.NewTicker(checkpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				podcast.Checkpoint()
			}
		}
	}()

	// HTTP
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", socketServer)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := mpdClient.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","mpd":"disconnected"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","mpd":"connected"}`))
	})

	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	mux.HandleFunc("/artwork", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id parameter required", http.StatusBadRequest)
			return
		}

		track, err := catalogDB.Track(id)
		if err != nil || track == nil {
			http.Error(w, "unknown track", http.StatusNotFound)
			return
		}

		source := artwork.CoverPath(track)
		if source == "" {
			http.Error(w, "artwork not found", http.StatusNotFound)
			return
		}

		size := artwork.ThumbMedium
		switch r.URL.Query().Get("size") {
		case "small":
			size = artwork.ThumbSmall
		case "large":
			size = artwork.ThumbLarge
		}

		thumbPath, err := thumbs.Thumbnail(source, id, size)
		if err != nil {
			log.Debug().Err(err).Str("trackID", id).Msg("Thumbnail generation failed")
			http.Error(w, "artwork not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		http.ServeFile(w, r, thumbPath)
	})

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		music.SaveState()
		podcast.Checkpoint()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", cfg.Listen).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}
