// file: internal/artwork/sink.go

// Package artwork persists cover images and notifies whatever displays them.
package artwork

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
)

// ErrDecode is returned by FileSink when the downloaded bytes are not an
// image it can decode
var ErrDecode = errors.New("artwork is not a decodable image")

// Sink receives raw image bytes. Write must consume the whole stream and
// persist it before returning, replacing any prior content.
type Sink interface {
	Write(r io.Reader) error
}

// Update describes one artwork change
type Update struct {
	URL       string
	Path      string
	Track     string
	ChangedAt time.Time
}

// Hook is notified after a new cover has been written
type Hook interface {
	CoverChanged(ctx context.Context, u Update) error
}

// FileSink writes the cover to a single well-known file. Content is written
// to a temporary file next to Path and renamed over it, so readers see either
// the old or the new image.
type FileSink struct {
	Path string

	// MaxWidth and MaxHeight shrink the image to fit the display; zero
	// disables the respective bound and both zero stores the bytes untouched
	MaxWidth  int
	MaxHeight int
}

// NewFileSink creates a sink writing to path
func NewFileSink(path string, maxWidth, maxHeight int) *FileSink {
	return &FileSink{Path: path, MaxWidth: maxWidth, MaxHeight: maxHeight}
}

// Write replaces the file at Path with the image read from r
func (s *FileSink) Write(r io.Reader) error {
	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if s.MaxWidth > 0 || s.MaxHeight > 0 {
		err = s.writeResized(tmp, r)
	} else {
		_, err = io.Copy(tmp, r)
	}
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artwork: %w", err)
	}

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set artwork permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileSink) writeResized(w io.Writer, r io.Reader) error {
	format, err := imaging.FormatFromFilename(s.Path)
	if err != nil {
		return fmt.Errorf("unsupported artwork format: %w", err)
	}

	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return imaging.Encode(w, s.fit(src), format)
}

// fit shrinks src into the configured bounds, keeping the aspect ratio.
// Images already inside the bounds are returned unchanged.
func (s *FileSink) fit(src image.Image) image.Image {
	b := src.Bounds()
	maxW, maxH := s.MaxWidth, s.MaxHeight
	if maxW <= 0 || maxW > b.Dx() {
		maxW = b.Dx()
	}
	if maxH <= 0 || maxH > b.Dy() {
		maxH = b.Dy()
	}
	if maxW == b.Dx() && maxH == b.Dy() {
		return src
	}
	return imaging.Fit(src, maxW, maxH, imaging.Lanczos)
}
