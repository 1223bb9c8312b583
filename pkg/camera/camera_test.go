package camera

import (
	"bytes"
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageStore_Path(t *testing.T) {
	s := NewImageStore("/data/camera_images/2024-05-01_10-00-00")
	assert.Equal(t, "/data/camera_images/2024-05-01_10-00-00/frame_0.jpg", s.Path(0))
	assert.Equal(t, "/data/camera_images/2024-05-01_10-00-00/frame_123.jpg", s.Path(123))
}

func TestImageStore_SaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	s := NewImageStore(dir)

	path, err := s.Save(7, []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "frame_7.jpg"), path)

	_, err = s.Save(7, []byte("second"))
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestImageStore_SaveMissingDir(t *testing.T) {
	s := NewImageStore(filepath.Join(t.TempDir(), "missing"))
	_, err := s.Save(1, []byte("x"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMockSource(t *testing.T) {
	boom := errors.New("unplugged")
	m := NewMockSource([]byte("steady"))
	m.Queue([]byte("a"), nil)
	m.Queue(nil, boom)

	frame, err := m.Capture()
	require.NoError(t, err)
	assert.Equal(t, "a", string(frame))

	_, err = m.Capture()
	assert.ErrorIs(t, err, boom)

	frame, err = m.Capture()
	require.NoError(t, err)
	assert.Equal(t, "steady", string(frame))
	assert.Equal(t, 3, m.Calls())

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
}

func TestYUYVToJPEG(t *testing.T) {
	const w, h = 16, 8
	frame := make([]byte, w*h*2)
	for i := 0; i < len(frame); i += 4 {
		frame[i], frame[i+1], frame[i+2], frame[i+3] = 200, 128, 200, 128
	}

	out, err := yuyvToJPEG(frame, w, h)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, w, img.Bounds().Dx())
	assert.Equal(t, h, img.Bounds().Dy())

	// Neutral chroma at Y=200 decodes to a light grey.
	r, g, b, _ := img.At(4, 4).RGBA()
	assert.InDelta(t, 200, r>>8, 6)
	assert.InDelta(t, 200, g>>8, 6)
	assert.InDelta(t, 200, b>>8, 6)
}

func TestYUYVToJPEG_ShortFrame(t *testing.T) {
	_, err := yuyvToJPEG(make([]byte, 10), 16, 8)
	assert.Error(t, err)
}
