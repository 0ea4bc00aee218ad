package signalling

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSDP(t *testing.T) {
	sdp := RenderSDP(SDPSpec{
		Name:      "1_1700000000.sdp",
		Host:      "127.0.0.1",
		AudioPort: 23456,
		VideoPort: 23458,
		AudioPT:   96,
		VideoPT:   102,
	})

	assert.True(t, strings.HasPrefix(sdp, "v=0\r\n"))
	assert.Contains(t, sdp, "c=IN IP4 127.0.0.1\r\n")
	assert.Contains(t, sdp, "m=audio 23456 RTP/AVP 96\r\n")
	assert.Contains(t, sdp, "a=rtpmap:96 opus/48000/2\r\n")
	assert.Contains(t, sdp, "m=video 23458 RTP/AVP 102\r\n")
	assert.Contains(t, sdp, "a=rtpmap:102 H264/90000\r\n")
	assert.Contains(t, sdp, "a=fmtp:102 packetization-mode=1;profile-level-id=42e01f\r\n")

	// Every line must end in CRLF.
	for _, line := range strings.Split(strings.TrimSuffix(sdp, "\r\n"), "\r\n") {
		assert.NotContains(t, line, "\n")
	}
}

func TestWriteSDP(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "9_1700000000.sdp")

	spec := SDPSpec{
		Name:      "9_1700000000.sdp",
		Host:      "192.168.1.10",
		AudioPort: 40000,
		VideoPort: 40002,
		AudioPT:   96,
		VideoPT:   102,
	}
	require.NoError(t, WriteSDP(path, spec))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, RenderSDP(spec), string(content))
}

func TestWriteSDP_TruncatesStaleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1_1700000000.sdp")
	require.NoError(t, os.WriteFile(path, []byte("stale leftover content that is longer than the fresh file"), 0o644))

	spec := SDPSpec{Host: "127.0.0.1", AudioPort: 1, VideoPort: 2, AudioPT: 96, VideoPT: 102}
	require.NoError(t, WriteSDP(path, spec))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, RenderSDP(spec), string(content))
	assert.NotContains(t, string(content), "stale")
}
