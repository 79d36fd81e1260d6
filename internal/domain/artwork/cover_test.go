package artwork_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lyrebird-audio/lyrebird/internal/domain/artwork"
	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
)

func localTrack(t *testing.T, dir, id string) *catalog.Track {
	t.Helper()
	path := filepath.Join(dir, id+".flac")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	return &catalog.Track{
		ID:     id,
		Kind:   catalog.KindMusic,
		Source: catalog.Source{LocalPath: path},
	}
}

func TestCoverPathFindsSiblingCover(t *testing.T) {
	dir := t.TempDir()
	track := localTrack(t, dir, "t1")
	cover := filepath.Join(dir, "cover.jpg")
	createTestImage(t, cover, 50, 50)

	if got := artwork.CoverPath(track); got != cover {
		t.Errorf("CoverPath = %q, want %q", got, cover)
	}
}

func TestCoverPathWithoutArtwork(t *testing.T) {
	track := localTrack(t, t.TempDir(), "t1")

	if got := artwork.CoverPath(track); got != "" {
		t.Errorf("CoverPath = %q, want empty", got)
	}
}

func TestCoverPathRemoteTrack(t *testing.T) {
	track := &catalog.Track{
		ID:     "t1",
		Kind:   catalog.KindPodcast,
		Source: catalog.Source{RemoteURL: "https://feeds.example.com/e1.mp3"},
	}

	if got := artwork.CoverPath(track); got != "" {
		t.Errorf("CoverPath = %q, want empty for remote-only source", got)
	}
}

func TestPrefetchCoversQueuesOnlyTracksWithArt(t *testing.T) {
	dir := t.TempDir()
	withArt := localTrack(t, dir, "t1")
	createTestImage(t, filepath.Join(dir, "cover.jpg"), 50, 50)
	bare := localTrack(t, t.TempDir(), "t2")

	collector := &resultCollector{}
	loader := artwork.NewLoader(artwork.NewThumbnailer(t.TempDir()), collector.deliver)
	defer loader.CancelAll()

	queued := artwork.PrefetchCovers(loader, []*catalog.Track{withArt, bare}, artwork.ThumbSmall)
	if queued != 1 {
		t.Fatalf("queued = %d, want 1", queued)
	}

	results := collector.waitFor(t, 1)
	if results[0].TrackID != "t1" {
		t.Errorf("result track ID = %q, want t1", results[0].TrackID)
	}
	if results[0].Err != nil {
		t.Errorf("unexpected prefetch error: %v", results[0].Err)
	}
	if results[0].Path == "" {
		t.Error("expected thumbnail path in result")
	}
}
