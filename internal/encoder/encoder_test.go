package encoder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilder(t *testing.T) {
	t.Run("basic command", func(t *testing.T) {
		spec := NewCommandBuilder("/usr/bin/ffmpeg").
			Name("test").
			HideBanner().
			Overwrite().
			Input("in.ts").
			StreamCopy().
			Output("out.ts").
			Build()

		assert.Equal(t, "/usr/bin/ffmpeg", spec.Binary)
		assert.Equal(t, "out.ts", spec.Output)
		assert.Equal(t, []string{
			"-loglevel", "error",
			"-hide_banner",
			"-y",
			"-i", "in.ts",
			"-c", "copy",
			"out.ts",
		}, spec.Args)
	})

	t.Run("input args precede their input", func(t *testing.T) {
		spec := NewCommandBuilder("ffmpeg").
			Input("a.sdp", "-protocol_whitelist", "file,udp,rtp").
			Input("b.ts").
			Output("out.ts").
			Build()

		joined := strings.Join(spec.Args, " ")
		assert.Contains(t, joined, "-protocol_whitelist file,udp,rtp -i a.sdp -i b.ts")
	})

	t.Run("filter complex placed after inputs", func(t *testing.T) {
		spec := NewCommandBuilder("ffmpeg").
			Input("screen.ts").
			Input("cam.ts").
			FilterComplex("[1]scale=iw/3:ih/3[pip]").
			VideoCodec("libx264").
			Output("out.ts").
			Build()

		idxFilter := indexOf(spec.Args, "-filter_complex")
		idxInput := lastIndexOf(spec.Args, "-i")
		require.Positive(t, idxFilter)
		assert.Greater(t, idxFilter, idxInput)
	})
}

func TestCaptureForward(t *testing.T) {
	spec := CaptureForward("ffmpeg", "/tmp/screen_1.sdp", "/tmp/screen_1.ts")

	joined := strings.Join(spec.Args, " ")
	assert.Contains(t, joined, "-protocol_whitelist file,udp,rtp -i /tmp/screen_1.sdp")
	assert.Contains(t, joined, "-c copy")
	assert.Equal(t, "/tmp/screen_1.ts", spec.Output)
}

func TestCaptureRTSP(t *testing.T) {
	spec := CaptureRTSP("ffmpeg", "rtsp://cam.example/stream", "/tmp/cam_1.ts")

	joined := strings.Join(spec.Args, " ")
	assert.Contains(t, joined, "-rtsp_transport tcp -i rtsp://cam.example/stream")
	assert.Contains(t, joined, "-c copy")
}

func TestMergePiP(t *testing.T) {
	spec := MergePiP("ffmpeg", ProfileNVENC, "screen.ts", "cam.ts", "merged.ts")

	joined := strings.Join(spec.Args, " ")
	assert.Contains(t, joined, "-i screen.ts -i cam.ts")
	assert.Contains(t, joined, "scale=iw/3:ih/3")
	assert.Contains(t, joined, "overlay=main_w-overlay_w-20:main_h-overlay_h-20")
	assert.Contains(t, joined, "-c:v h264_nvenc")
	assert.Contains(t, joined, "-c:a aac")
}

func TestConcatAndTranscode(t *testing.T) {
	concat := Concat("ffmpeg", "join_1.txt", "joined_1.ts")
	assert.Contains(t, strings.Join(concat.Args, " "), "-f concat -safe 0 -i join_1.txt")
	assert.Contains(t, strings.Join(concat.Args, " "), "-c copy")

	transcode := Transcode("ffmpeg", "joined_1.ts", "output_1.mp4")
	joined := strings.Join(transcode.Args, " ")
	assert.Contains(t, joined, "-c:v copy")
	assert.Contains(t, joined, "-c:a aac")
	assert.Equal(t, "output_1.mp4", transcode.Output)
}

func TestThumbnail(t *testing.T) {
	spec := Thumbnail("ffmpeg", "output_1.mp4", "thumbnail_1.png")

	joined := strings.Join(spec.Args, " ")
	assert.Contains(t, joined, "-ss 00:00:01.000 -i output_1.mp4")
	assert.Contains(t, joined, "-vframes 1")
}

func TestSelectProfile(t *testing.T) {
	tests := []struct {
		name     string
		priority []string
		probes   probes
		want     Profile
	}{
		{
			name:     "nvidia wins when present",
			priority: []string{"nvenc", "videotoolbox", "qsv"},
			probes:   probes{goos: "linux", hasNVIDIA: true, cpuVendor: "GenuineIntel"},
			want:     ProfileNVENC,
		},
		{
			name:     "videotoolbox on darwin without nvidia",
			priority: []string{"nvenc", "videotoolbox", "qsv"},
			probes:   probes{goos: "darwin"},
			want:     ProfileVideoToolbox,
		},
		{
			name:     "quicksync on intel without gpu",
			priority: []string{"nvenc", "videotoolbox", "qsv"},
			probes:   probes{goos: "linux", cpuVendor: "GenuineIntel"},
			want:     ProfileQSV,
		},
		{
			name:     "software fallback on amd",
			priority: []string{"nvenc", "videotoolbox", "qsv"},
			probes:   probes{goos: "linux", cpuVendor: "AuthenticAMD"},
			want:     ProfileSoftware,
		},
		{
			name:     "priority order respected",
			priority: []string{"qsv", "nvenc"},
			probes:   probes{goos: "linux", hasNVIDIA: true, cpuVendor: "GenuineIntel"},
			want:     ProfileQSV,
		},
		{
			name:     "empty priority uses defaults",
			priority: nil,
			probes:   probes{goos: "linux", hasNVIDIA: true},
			want:     ProfileNVENC,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectProfile(tt.priority, tt.probes))
		})
	}
}

func indexOf(args []string, want string) int {
	for i, a := range args {
		if a == want {
			return i
		}
	}
	return -1
}

func lastIndexOf(args []string, want string) int {
	idx := -1
	for i, a := range args {
		if a == want {
			idx = i
		}
	}
	return idx
}
