// Package catalog defines the track model and the catalog store contract.
package catalog

import (
	"errors"
	"os"
	"time"
)

// MediaKind discriminates between the music and podcast playback domains.
type MediaKind string

const (
	KindMusic   MediaKind = "music"
	KindPodcast MediaKind = "podcast"
)

// SortOrder defines how catalog listings are sorted.
type SortOrder string

const (
	SortTitle         SortOrder = "title"
	SortRecentlyAdded SortOrder = "recently_added"
	SortLastPlayed    SortOrder = "last_played"
	SortMostPlayed    SortOrder = "most_played"
)

// ErrNoSource is returned when a track has no reachable playback source.
var ErrNoSource = errors.New("no playable source")

// Source describes where a track's audio can be played from.
// At least one of the three fields is expected to be set.
type Source struct {
	LocalPath    string `json:"localPath,omitempty"`    // imported local file
	DownloadPath string `json:"downloadPath,omitempty"` // downloaded copy of a remote track/episode
	RemoteURL    string `json:"remoteUrl,omitempty"`    // streaming URL
}

// Resolve returns the playable URI for this source. When preferDownloaded is
// set (podcast playback), a present downloaded copy wins over the remote URL.
// Local files are verified on disk; a missing file falls through to the next
// candidate. Returns ErrNoSource when nothing resolves.
func (s Source) Resolve(preferDownloaded bool) (uri string, local bool, err error) {
	candidates := []string{s.LocalPath, s.DownloadPath}
	if preferDownloaded {
		candidates = []string{s.DownloadPath, s.LocalPath}
	}

	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path, true, nil
		}
	}

	if s.RemoteURL != "" {
		return s.RemoteURL, false, nil
	}

	return "", false, ErrNoSource
}

// Track is the unified playable item: a song or a podcast episode.
type Track struct {
	ID          string    `json:"id"`
	Kind        MediaKind `json:"kind"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`          // episode: show author
	Album       string    `json:"album,omitempty"` // episode: show name
	DurationSec float64   `json:"durationSec"`
	Source      Source    `json:"source"`

	// Playback bookkeeping, persisted by the catalog store.
	PositionSec float64   `json:"positionSec"`
	PlayCount   int       `json:"playCount"`
	LastPlayed  time.Time `json:"lastPlayed,omitempty"`
	Completed   bool      `json:"completed"`
	Favorite    bool      `json:"favorite"`

	AddedAt time.Time `json:"addedAt"`
}

// Store is the catalog persistence contract. Player engines reference tracks
// owned by the store; they never assume a particular query engine beyond
// CRUD plus ordered fetch.
type Store interface {
	// Track returns the track with the given ID, or (nil, nil) when absent.
	Track(id string) (*Track, error)
	Save(t *Track) error
	All(sort SortOrder) ([]*Track, error)
	ByKind(kind MediaKind, sort SortOrder) ([]*Track, error)
	Delete(id string) error
}
