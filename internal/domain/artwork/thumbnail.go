// Package artwork provides cover-art decoding and thumbnail caching for
// library views.
package artwork

import (
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder
	"image/jpeg"   // JPEG decoder and thumbnail encoder
	_ "image/png"  // PNG decoder
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder
)

// ThumbnailSize represents common thumbnail dimensions.
type ThumbnailSize int

const (
	// ThumbSmall is 150x150 pixels - for list views
	ThumbSmall ThumbnailSize = 150
	// ThumbMedium is 300x300 pixels - for grid views
	ThumbMedium ThumbnailSize = 300
	// ThumbLarge is 500x500 pixels - for detail views
	ThumbLarge ThumbnailSize = 500
)

// Thumbnailer scales cover images down to display sizes and caches the
// results on disk, keyed by track ID.
type Thumbnailer struct {
	cacheDir string
}

// NewThumbnailer creates a thumbnail cache rooted at cacheDir.
func NewThumbnailer(cacheDir string) *Thumbnailer {
	return &Thumbnailer{cacheDir: cacheDir}
}

// Thumbnail returns the path of a cached thumbnail for the track, creating
// it from sourcePath on first use.
func (g *Thumbnailer) Thumbnail(sourcePath, trackID string, size ThumbnailSize) (string, error) {
	thumbDir := filepath.Join(g.cacheDir, "thumbs")
	if err := os.MkdirAll(thumbDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	thumbPath := filepath.Join(thumbDir, fmt.Sprintf("%s_%d.jpg", trackID, size))
	if _, err := os.Stat(thumbPath); err == nil {
		return thumbPath, nil
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open source image: %w", err)
	}
	defer src.Close()

	img, format, err := image.Decode(src)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	log.Debug().
		Str("source", sourcePath).
		Str("format", format).
		Int("size", int(size)).
		Msg("Generating thumbnail")

	thumb := scaleToFit(img, int(size))

	out, err := os.Create(thumbPath)
	if err != nil {
		return "", fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return thumbPath, nil
}

// Cleanup removes all cached thumbnails for a track.
func (g *Thumbnailer) Cleanup(trackID string) {
	thumbDir := filepath.Join(g.cacheDir, "thumbs")
	for _, size := range []ThumbnailSize{ThumbSmall, ThumbMedium, ThumbLarge} {
		thumbPath := filepath.Join(thumbDir, fmt.Sprintf("%s_%d.jpg", trackID, size))
		if err := os.Remove(thumbPath); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", thumbPath).Msg("Failed to remove thumbnail")
		}
	}
}

// scaleToFit scales an image to fit within maxSize while keeping the
// aspect ratio.
func scaleToFit(src image.Image, maxSize int) image.Image {
	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	var newW, newH int
	if srcW > srcH {
		newW = maxSize
		newH = int(float64(srcH) * float64(maxSize) / float64(srcW))
	} else {
		newH = maxSize
		newW = int(float64(srcW) * float64(maxSize) / float64(srcH))
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
