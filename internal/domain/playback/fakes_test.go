package playback_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
	"github.com/lyrebird-audio/lyrebird/internal/domain/playback"
	"github.com/lyrebird-audio/lyrebird/internal/infra/kv"
)

// fakeOutput records transport commands and simulates elapsed position.
type fakeOutput struct {
	mu       sync.Mutex
	loaded   []string
	elapsed  float64
	seeks    []float64
	paused   bool
	stopped  bool
	failURIs map[string]bool
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{failURIs: make(map[string]bool)}
}

func (o *fakeOutput) Load(uri string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failURIs[uri] {
		return errors.New("load failed")
	}
	o.loaded = append(o.loaded, uri)
	o.elapsed = 0
	o.paused = false
	o.stopped = false
	return nil
}

func (o *fakeOutput) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = true
	return nil
}

func (o *fakeOutput) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = false
	return nil
}

func (o *fakeOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	return nil
}

func (o *fakeOutput) SeekSec(sec float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seeks = append(o.seeks, sec)
	o.elapsed = sec
	return nil
}

func (o *fakeOutput) Elapsed() (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.elapsed, nil
}

func (o *fakeOutput) setElapsed(sec float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.elapsed = sec
}

func (o *fakeOutput) lastLoaded() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.loaded) == 0 {
		return ""
	}
	return o.loaded[len(o.loaded)-1]
}

func (o *fakeOutput) loadCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.loaded)
}

// memStore is an in-memory catalog.Store.
type memStore struct {
	mu     sync.Mutex
	tracks map[string]catalog.Track
}

func newMemStore() *memStore {
	return &memStore{tracks: make(map[string]catalog.Track)}
}

func (s *memStore) Track(id string) (*catalog.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[id]; ok {
		copied := t
		return &copied, nil
	}
	return nil, nil
}

func (s *memStore) Save(t *catalog.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[t.ID] = *t
	return nil
}

func (s *memStore) All(catalog.SortOrder) ([]*catalog.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*catalog.Track
	for _, t := range s.tracks {
		copied := t
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memStore) ByKind(kind catalog.MediaKind, _ catalog.SortOrder) ([]*catalog.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*catalog.Track
	for _, t := range s.tracks {
		if t.Kind == kind {
			copied := t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracks, id)
	return nil
}

// harness wires a full playback core against fakes.
type harness struct {
	bus      *playback.Bus
	coord    *playback.Coordinator
	music    *playback.MusicEngine
	podcast  *playback.PodcastEngine
	musicOut *fakeOutput
	podOut   *fakeOutput
	store    *memStore
	settings *kv.Store
}

func newHarness(t *testing.T, opts ...playback.MusicOption) *harness {
	t.Helper()

	settings, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open kv store: %v", err)
	}
	t.Cleanup(func() { settings.Close() })

	h := &harness{
		bus:      playback.NewBus(),
		musicOut: newFakeOutput(),
		podOut:   newFakeOutput(),
		store:    newMemStore(),
		settings: settings,
	}
	h.coord = playback.NewCoordinator(h.bus)
	h.music = playback.NewMusicEngine(h.musicOut, h.store, settings, h.bus, h.coord, opts...)
	h.podcast = playback.NewPodcastEngine(h.podOut, h.store, h.bus, h.coord)
	return h
}

func removeFile(path string) error {
	return os.Remove(path)
}

// songFile writes a dummy audio file and returns a music track backed by it.
func songFile(t *testing.T, dir, id, title string, duration float64) *catalog.Track {
	t.Helper()
	path := filepath.Join(dir, id+".flac")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	return &catalog.Track{
		ID:          id,
		Kind:        catalog.KindMusic,
		Title:       title,
		DurationSec: duration,
		Source:      catalog.Source{LocalPath: path},
	}
}
