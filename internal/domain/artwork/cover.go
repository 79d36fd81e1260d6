package artwork

import (
	"os"
	"path/filepath"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
)

// coverNames are the artwork file names checked beside a track's local file,
// in preference order.
var coverNames = []string{"cover.jpg", "cover.png", "folder.jpg", "folder.png", "cover.webp"}

// CoverPath looks for a cover image beside the track's local file. Returns
// an empty string for remote-only tracks and tracks without artwork.
func CoverPath(track *catalog.Track) string {
	uri, local, err := track.Source.Resolve(true)
	if err != nil || !local {
		return ""
	}

	dir := filepath.Dir(uri)
	for _, name := range coverNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// PrefetchCovers queues a thumbnail load for every track with cover art
// beside its local file, warming the disk cache after a library import.
// Returns the number of loads queued.
func PrefetchCovers(l *Loader, tracks []*catalog.Track, size ThumbnailSize) int {
	queued := 0
	for _, t := range tracks {
		cover := CoverPath(t)
		if cover == "" {
			continue
		}
		l.Load(t.ID, cover, size)
		queued++
	}
	return queued
}
