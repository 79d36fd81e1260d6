package importer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
	"github.com/lyrebird-audio/lyrebird/internal/domain/cloud"
	"github.com/lyrebird-audio/lyrebird/internal/domain/importer"
	"github.com/lyrebird-audio/lyrebird/internal/infra/kv"
)

// memStore is an in-memory catalog for import tests.
type memStore struct {
	tracks map[string]*catalog.Track
}

func newMemStore() *memStore {
	return &memStore{tracks: make(map[string]*catalog.Track)}
}

func (m *memStore) Track(id string) (*catalog.Track, error) {
	t, ok := m.tracks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) Save(t *catalog.Track) error {
	cp := *t
	m.tracks[t.ID] = &cp
	return nil
}

func (m *memStore) All(order catalog.SortOrder) ([]*catalog.Track, error) {
	var out []*catalog.Track
	for _, t := range m.tracks {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) ByKind(kind catalog.MediaKind, order catalog.SortOrder) ([]*catalog.Track, error) {
	var out []*catalog.Track
	for _, t := range m.tracks {
		if t.Kind == kind {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) Delete(id string) error {
	delete(m.tracks, id)
	return nil
}

func writeAudioFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
}

func TestScanAddsLocalFiles(t *testing.T) {
	dir := t.TempDir()
	writeAudioFiles(t, dir, "one.mp3", "two.flac", "notes.txt")

	store := newMemStore()
	pipe := importer.NewPipeline(store, nil, []string{dir}, "")

	sum, err := pipe.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Added != 2 {
		t.Errorf("Added = %d, want 2 (non-audio files ignored)", sum.Added)
	}

	all, _ := store.All(catalog.SortTitle)
	for _, tr := range all {
		if tr.ID == "" {
			t.Error("imported track missing generated ID")
		}
		if tr.Source.LocalPath == "" {
			t.Error("imported track missing local path")
		}
	}
}

func TestDedupeByArtistTitle(t *testing.T) {
	store := newMemStore()
	existing := &catalog.Track{
		ID:        "keep-me",
		Kind:      catalog.KindMusic,
		Title:     "Holland, 1945",
		Artist:    "Neutral Milk Hotel",
		PlayCount: 7,
	}
	if err := store.Save(existing); err != nil {
		t.Fatal(err)
	}

	exportPath := filepath.Join(t.TempDir(), "library.json")
	export := `[
		{"title": "HOLLAND, 1945", "artist": "neutral milk hotel", "path": "/music/h.mp3"},
		{"title": "Two-Headed Boy", "artist": "Neutral Milk Hotel", "path": "/music/t.mp3"}
	]`
	if err := os.WriteFile(exportPath, []byte(export), 0644); err != nil {
		t.Fatal(err)
	}

	pipe := importer.NewPipeline(store, nil, nil, exportPath)
	sum, err := pipe.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sum.Skipped != 1 || sum.Added != 1 {
		t.Errorf("Skipped = %d, Added = %d, want 1 and 1", sum.Skipped, sum.Added)
	}

	kept, _ := store.Track("keep-me")
	if kept == nil || kept.PlayCount != 7 {
		t.Error("existing track stats not preserved across import")
	}
}

func TestCloudListingsImported(t *testing.T) {
	settings, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open kv store: %v", err)
	}
	defer settings.Close()

	reg := cloud.NewRegistry(settings)
	drive := cloud.NewMemoryProvider("drive", []catalog.Track{
		{Kind: catalog.KindMusic, Title: "Remote Song", Artist: "Remote Band",
			Source: catalog.Source{RemoteURL: "https://drive.example/1.mp3"}},
	})
	reg.Register(drive)
	if err := reg.Connect("drive", "tok"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	store := newMemStore()
	pipe := importer.NewPipeline(store, reg, nil, "")

	sum, err := pipe.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Added != 1 {
		t.Errorf("Added = %d, want 1", sum.Added)
	}
}

func TestFailingSourceDoesNotAbortRun(t *testing.T) {
	settings, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open kv store: %v", err)
	}
	defer settings.Close()

	reg := cloud.NewRegistry(settings)
	drive := cloud.NewMemoryProvider("drive", nil)
	reg.Register(drive)
	if err := reg.Connect("drive", "tok"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	drive.FailListings(errors.New("quota exceeded"))

	dir := t.TempDir()
	writeAudioFiles(t, dir, "one.mp3")

	store := newMemStore()
	pipe := importer.NewPipeline(store, reg, []string{dir, filepath.Join(dir, "missing")}, "")

	sum, err := pipe.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Added != 1 {
		t.Errorf("Added = %d, want 1 despite failing sources", sum.Added)
	}
	if sum.Failed != 2 {
		t.Errorf("Failed = %d, want 2 (missing dir and cloud listing)", sum.Failed)
	}
}

func TestRunHonorsContext(t *testing.T) {
	dir := t.TempDir()
	writeAudioFiles(t, dir, "one.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipe := importer.NewPipeline(newMemStore(), nil, []string{dir}, "")
	if _, err := pipe.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestImportStampsAddedAt(t *testing.T) {
	dir := t.TempDir()
	writeAudioFiles(t, dir, "one.mp3")

	store := newMemStore()
	pipe := importer.NewPipeline(store, nil, []string{dir}, "")
	before := time.Now().Add(-time.Second)

	if _, err := pipe.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	all, _ := store.All(catalog.SortTitle)
	if len(all) != 1 {
		t.Fatalf("got %d tracks, want 1", len(all))
	}
	if all[0].AddedAt.Before(before) {
		t.Errorf("AddedAt = %v, want stamped at import time", all[0].AddedAt)
	}
}
