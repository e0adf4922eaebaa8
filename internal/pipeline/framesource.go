package pipeline

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
)

// FrameSource yields decoded frames for one video job. The pipeline's
// contract begins at "a decoded frame" (the detector takes an image.Image
// plus a frame number); demuxing an actual video container is a deployment
// concern handled upstream of this interface — see SPEC_FULL.md's Open
// Question decisions for why.
type FrameSource interface {
	// Open prepares the source and returns the total frame count if known
	// (0 if unknown up front).
	Open(path string) (int, error)
	// Next returns the next decoded frame and its 0-based frame number, or
	// ok=false when the source is exhausted.
	Next() (img image.Image, frameNum int, ok bool, err error)
	Close() error
}

// DirFrameSource reads a directory of sequentially-numbered JPEG frames,
// e.g. frame_000001.jpg, frame_000002.jpg, ... This is the shipped
// FrameSource; a production deployment fronts it with an ffmpeg extraction
// step that populates such a directory from a real video container.
type DirFrameSource struct {
	files []string
	idx   int
}

func NewDirFrameSource() *DirFrameSource {
	return &DirFrameSource{}
}

func (s *DirFrameSource) Open(path string) (int, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCodecDecodeFailed, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".jpg" || ext == ".jpeg" {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("%w: no frame files in %s", ErrCodecDecodeFailed, path)
	}
	sort.Strings(files)

	s.files = files
	s.idx = 0
	return len(files), nil
}

func (s *DirFrameSource) Next() (image.Image, int, bool, error) {
	if s.idx >= len(s.files) {
		return nil, 0, false, nil
	}
	f, err := os.Open(s.files[s.idx])
	if err != nil {
		return nil, 0, false, fmt.Errorf("%w: %v", ErrCodecDecodeFailed, err)
	}
	defer f.Close()

	img, err := jpeg.Decode(f)
	if err != nil {
		return nil, 0, false, fmt.Errorf("%w: %v", ErrCodecDecodeFailed, err)
	}

	frameNum := s.idx
	s.idx++
	return img, frameNum, true, nil
}

func (s *DirFrameSource) Close() error {
	return nil
}
