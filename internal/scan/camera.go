package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrPermissionDenied is returned by Camera.Open when no camera may be used.
var ErrPermissionDenied = errors.New("camera permission denied")

// Constraints are the capture parameters requested from a camera.
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
}

// RearCamera requests the environment-facing camera at 1280x720.
func RearCamera() Constraints {
	return Constraints{FacingMode: "environment", Width: 1280, Height: 720}
}

// Camera opens capture streams.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live capture. Stop releases every track and is safe to call twice.
type Stream interface {
	// Ready reports whether a frame with data is available.
	Ready() bool
	Frame() (image.Image, error)
	Stop()
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
}

// DirCamera replays the images in a directory as camera frames, in name order,
// looping. It stands in for a webcam on machines without one.
type DirCamera struct {
	Dir string
}

// Open lists the frame files. An unreadable or empty directory is treated as a
// denied permission so the scanner falls back to upload and manual entry.
func (d DirCamera) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(d.Dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no frames in %s", ErrPermissionDenied, d.Dir)
	}
	sort.Strings(files)
	return &dirStream{files: files}, nil
}

type dirStream struct {
	mu      sync.Mutex
	files   []string
	next    int
	stopped bool
}

func (s *dirStream) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

func (s *dirStream) Frame() (image.Image, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, errors.New("stream stopped")
	}
	path := s.files[s.next%len(s.files)]
	s.next++
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func (s *dirStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
