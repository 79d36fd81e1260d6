// Package importer reconciles external track sources into the catalog.
package importer

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
	"github.com/lyrebird-audio/lyrebird/internal/domain/cloud"
)

// audioExtensions are the file types picked up by the filesystem scan.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".aac":  true,
	".wav":  true,
	".opus": true,
}

// Summary reports the outcome of one import run.
type Summary struct {
	Scanned int `json:"scanned"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// exportEntry is one track in an external library's JSON export file.
type exportEntry struct {
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Album       string  `json:"album"`
	DurationSec float64 `json:"durationSec"`
	Path        string  `json:"path"`
	URL         string  `json:"url"`
	Podcast     bool    `json:"podcast"`
}

// Pipeline folds local files, a library export file, and connected cloud
// accounts into the catalog. Sources are best effort: a failing source is
// logged and the rest of the run continues.
type Pipeline struct {
	store      catalog.Store
	registry   *cloud.Registry
	musicDirs  []string
	exportPath string
}

// NewPipeline creates an import pipeline over store. musicDirs are scanned
// recursively; exportPath and registry may be zero-valued to skip those
// sources.
func NewPipeline(store catalog.Store, registry *cloud.Registry, musicDirs []string, exportPath string) *Pipeline {
	return &Pipeline{
		store:      store,
		registry:   registry,
		musicDirs:  musicDirs,
		exportPath: exportPath,
	}
}

// Run executes one full import pass and returns its summary.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	started := time.Now()

	seen, err := p.existingIdentities()
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	var candidates []catalog.Track

	for _, dir := range p.musicDirs {
		found, err := scanDir(dir)
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Library scan failed, skipping directory")
			sum.Failed++
			continue
		}
		candidates = append(candidates, found...)
	}

	if p.exportPath != "" {
		found, err := parseExport(p.exportPath)
		if err != nil {
			log.Warn().Err(err).Str("path", p.exportPath).Msg("Library export unreadable, skipping")
			sum.Failed++
		} else {
			candidates = append(candidates, found...)
		}
	}

	if p.registry != nil {
		for _, provider := range p.registry.Connected() {
			found, err := provider.Tracks(ctx)
			if err != nil {
				log.Warn().Err(err).Str("provider", provider.Name()).Msg("Cloud listing failed, skipping")
				sum.Failed++
				continue
			}
			candidates = append(candidates, found...)
		}
	}

	for _, track := range candidates {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Scanned++

		key := identityKey(track.Artist, track.Title)
		if seen[key] {
			sum.Skipped++
			continue
		}

		track.ID = uuid.New().String()
		track.AddedAt = time.Now()
		if err := p.store.Save(&track); err != nil {
			log.Warn().Err(err).Str("title", track.Title).Msg("Failed to save imported track")
			sum.Failed++
			continue
		}
		seen[key] = true
		sum.Added++
	}

	log.Info().
		Int("scanned", sum.Scanned).
		Int("added", sum.Added).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Dur("elapsed", time.Since(started)).
		Msg("Import run complete")
	return sum, nil
}

// existingIdentities indexes the catalog by identity key so re-imported
// tracks keep their play counts and positions.
func (p *Pipeline) existingIdentities() (map[string]bool, error) {
	existing, err := p.store.All(catalog.SortTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[identityKey(t.Artist, t.Title)] = true
	}
	return seen, nil
}

// identityKey identifies a track across sources that disagree on IDs.
func identityKey(artist, title string) string {
	data := strings.ToLower(artist) + "\x00" + strings.ToLower(title)
	return fmt.Sprintf("%x", md5.Sum([]byte(data)))
}

// scanDir walks root collecting audio files as music tracks named after
// their file stem.
func scanDir(root string) ([]catalog.Track, error) {
	var out []catalog.Track
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		out = append(out, catalog.Track{
			Kind:   catalog.KindMusic,
			Title:  name,
			Source: catalog.Source{LocalPath: path},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// parseExport reads an external library's JSON export file.
func parseExport(path string) ([]catalog.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []exportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse library export: %w", err)
	}

	out := make([]catalog.Track, 0, len(entries))
	for _, e := range entries {
		kind := catalog.KindMusic
		if e.Podcast {
			kind = catalog.KindPodcast
		}
		out = append(out, catalog.Track{
			Kind:        kind,
			Title:       e.Title,
			Artist:      e.Artist,
			Album:       e.Album,
			DurationSec: e.DurationSec,
			Source:      catalog.Source{LocalPath: e.Path, RemoteURL: e.URL},
		})
	}
	return out, nil
}
