package pipeline

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{1, 2, 3, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
}

func TestDirFrameSource_OpenAndIterateInOrder(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "frame_000002.jpg"))
	writeJPEG(t, filepath.Join(dir, "frame_000001.jpg"))
	writeJPEG(t, filepath.Join(dir, "frame_000000.jpg"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0600))

	s := NewDirFrameSource()
	total, err := s.Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	var seen int
	for {
		img, _, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.NotNil(t, img)
		seen++
	}
	assert.Equal(t, 3, seen)
	require.NoError(t, s.Close())
}

func TestDirFrameSource_Open_EmptyDirFails(t *testing.T) {
	dir := t.TempDir()
	s := NewDirFrameSource()
	_, err := s.Open(dir)
	assert.ErrorIs(t, err, ErrCodecDecodeFailed)
}

func TestDirFrameSource_Open_MissingDirFails(t *testing.T) {
	s := NewDirFrameSource()
	_, err := s.Open(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.ErrorIs(t, err, ErrCodecDecodeFailed)
}
