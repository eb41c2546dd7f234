package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbeOutput(t *testing.T) {
	t.Run("FullStream", func(t *testing.T) {
		payload := `{"streams": [{"width": 1920, "height": 1080, "duration": "10.5"}]}`
		result, err := parseProbeOutput(strings.NewReader(payload))
		require.NoError(t, err)
		assert.Equal(t, 1920, result.Width)
		assert.Equal(t, 1080, result.Height)
		assert.InDelta(t, 10.5, result.Duration, 1e-9)
	})

	t.Run("MissingDurationDefaultsToZero", func(t *testing.T) {
		payload := `{"streams": [{"width": 640, "height": 480}]}`
		result, err := parseProbeOutput(strings.NewReader(payload))
		require.NoError(t, err)
		assert.Zero(t, result.Duration)
		assert.Equal(t, 640, result.Width)
	})

	t.Run("NoVideoStream", func(t *testing.T) {
		_, err := parseProbeOutput(strings.NewReader(`{"streams": []}`))
		assert.ErrorIs(t, err, ErrNoVideoStream)
	})

	t.Run("EmptyObject", func(t *testing.T) {
		_, err := parseProbeOutput(strings.NewReader(`{}`))
		assert.ErrorIs(t, err, ErrNoVideoStream)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := parseProbeOutput(strings.NewReader("not json"))
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoVideoStream)
	})
}

func TestTailBuffer(t *testing.T) {
	t.Run("KeepsEverythingUnderLimit", func(t *testing.T) {
		buf := newTailBuffer(16)
		_, err := buf.Write([]byte("short"))
		require.NoError(t, err)
		assert.Equal(t, "short", buf.String())
	})

	t.Run("KeepsOnlyTheTail", func(t *testing.T) {
		buf := newTailBuffer(8)
		for _, chunk := range []string{"aaaa", "bbbb", "cccc"} {
			_, err := buf.Write([]byte(chunk))
			require.NoError(t, err)
		}
		assert.Equal(t, "bbbbcccc", buf.String())
	})

	t.Run("SingleOversizeWrite", func(t *testing.T) {
		buf := newTailBuffer(4)
		_, err := buf.Write([]byte("0123456789"))
		require.NoError(t, err)
		assert.Equal(t, "6789", buf.String())
	})
}
