package socketio_test

import (
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lyrebird-audio/lyrebird/internal/domain/artwork"
	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
	"github.com/lyrebird-audio/lyrebird/internal/domain/equalizer"
	"github.com/lyrebird-audio/lyrebird/internal/domain/nowplaying"
	"github.com/lyrebird-audio/lyrebird/internal/domain/playback"
	"github.com/lyrebird-audio/lyrebird/internal/infra/kv"
	"github.com/lyrebird-audio/lyrebird/internal/transport/socketio"
)

// nullOutput satisfies the output contract without an audio server.
type nullOutput struct{}

func (nullOutput) Load(uri string) error     { return nil }
func (nullOutput) Pause() error              { return nil }
func (nullOutput) Resume() error             { return nil }
func (nullOutput) Stop() error               { return nil }
func (nullOutput) SeekSec(sec float64) error { return nil }
func (nullOutput) Elapsed() (float64, error) { return 0, nil }

type nullStore struct{}

func (nullStore) Track(id string) (*catalog.Track, error) { return nil, nil }
func (nullStore) Save(t *catalog.Track) error             { return nil }
func (nullStore) All(order catalog.SortOrder) ([]*catalog.Track, error) {
	return nil, nil
}
func (nullStore) ByKind(kind catalog.MediaKind, order catalog.SortOrder) ([]*catalog.Track, error) {
	return nil, nil
}
func (nullStore) Delete(id string) error { return nil }

// memCatalog is a minimal in-memory store for removal tests.
type memCatalog struct {
	nullStore
	mu     sync.Mutex
	tracks map[string]*catalog.Track
}

func newMemCatalog() *memCatalog {
	return &memCatalog{tracks: make(map[string]*catalog.Track)}
}

func (s *memCatalog) Track(id string) (*catalog.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks[id], nil
}

func (s *memCatalog) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracks, id)
	return nil
}

func (s *memCatalog) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tracks[id]
	return ok
}

type nullGraph struct{}

func (nullGraph) Apply(bands []equalizer.Band, enabled bool) error { return nil }

type nullVolume struct{}

func (nullVolume) SetVolume(vol int) error { return nil }

func newTestServer(t *testing.T) *socketio.Server {
	return newTestServerWith(t, nullStore{}, artwork.NewThumbnailer(t.TempDir()))
}

func newTestServerWith(t *testing.T, store catalog.Store, thumbs *artwork.Thumbnailer) *socketio.Server {
	t.Helper()

	settings, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open kv store: %v", err)
	}
	t.Cleanup(func() { settings.Close() })

	bus := playback.NewBus()
	coord := playback.NewCoordinator(bus)
	music := playback.NewMusicEngine(nullOutput{}, store, settings, bus, coord)
	podcast := playback.NewPodcastEngine(nullOutput{}, store, bus, coord)
	eq := equalizer.NewEngine(nullGraph{}, settings)
	timer := playback.NewSleepTimer()

	server, err := socketio.NewServer(store, music, podcast, coord, eq, timer, nullVolume{}, thumbs)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server
}

func writeTestCover(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
}

func TestNewServer(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	if server == nil {
		t.Error("NewServer should return a non-nil server")
	}
}

func TestServerClose(t *testing.T) {
	server := newTestServer(t)

	if err := server.Close(); err != nil {
		t.Errorf("Close should not error: %v", err)
	}
}

func TestServerBroadcastStateWithoutClients(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	// Smoke test: broadcasting to an empty room must not panic.
	server.BroadcastState()
}

func TestServerBroadcastNowPlayingWithoutClients(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	if err := server.Update(nowplaying.Descriptor{Title: "Song", Playing: true}); err != nil {
		t.Errorf("Update should not error: %v", err)
	}
	if err := server.Clear(); err != nil {
		t.Errorf("Clear should not error: %v", err)
	}
}

func TestRemoveTrackDeletesCatalogEntryAndThumbnails(t *testing.T) {
	store := newMemCatalog()
	store.tracks["t1"] = &catalog.Track{ID: "t1", Kind: catalog.KindMusic, Title: "Song"}

	thumbs := artwork.NewThumbnailer(t.TempDir())
	server := newTestServerWith(t, store, thumbs)
	defer server.Close()

	cover := filepath.Join(t.TempDir(), "cover.jpg")
	writeTestCover(t, cover)
	thumbPath, err := thumbs.Thumbnail(cover, "t1", artwork.ThumbSmall)
	if err != nil {
		t.Fatalf("Thumbnail failed: %v", err)
	}

	if err := server.RemoveTrack("t1"); err != nil {
		t.Fatalf("RemoveTrack failed: %v", err)
	}

	if store.has("t1") {
		t.Error("expected track deleted from catalog")
	}
	if _, err := os.Stat(thumbPath); !os.IsNotExist(err) {
		t.Error("expected cached thumbnail removed")
	}
}

func TestRemoveTrackUnknownID(t *testing.T) {
	server := newTestServerWith(t, newMemCatalog(), artwork.NewThumbnailer(t.TempDir()))
	defer server.Close()

	if err := server.RemoveTrack("nope"); err == nil {
		t.Error("expected error for unknown track")
	}
}
