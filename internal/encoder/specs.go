package encoder

// The recorder runs a fixed set of ffmpeg invocations. Capture commands
// stream-copy so the children stay cheap; re-encoding happens only in the
// merge and transcode steps of post-processing.

// pipFilter scales the camera to a third and pins it to the bottom-right
// corner of the screen with a 20 pixel inset.
const pipFilter = "[1]scale=iw/3:ih/3[pip];[0][pip]overlay=main_w-overlay_w-20:main_h-overlay_h-20"

// CaptureForward captures a forwarded publisher: the generated SDP file
// describes the RTP pair the gateway sends to the recorder's UDP ports.
func CaptureForward(ffmpeg, sdpPath, output string) Spec {
	return NewCommandBuilder(ffmpeg).
		Name("capture-forward").
		HideBanner().
		Overwrite().
		Input(sdpPath, "-protocol_whitelist", "file,udp,rtp").
		StreamCopy().
		Output(output).
		Build()
}

// CaptureRTSP captures a camera directly from its RTSP feed. TCP transport
// avoids the packet loss UDP interleaving suffers on congested links.
func CaptureRTSP(ffmpeg, url, output string) Spec {
	return NewCommandBuilder(ffmpeg).
		Name("capture-rtsp").
		HideBanner().
		Overwrite().
		Input(url, "-rtsp_transport", "tcp").
		StreamCopy().
		Output(output).
		Build()
}

// MergePiP composites the camera as a picture-in-picture inset over the
// screen capture, re-encoding video with the room's profile.
func MergePiP(ffmpeg string, profile Profile, screenPath, camPath, output string) Spec {
	return NewCommandBuilder(ffmpeg).
		Name("merge-pip").
		HideBanner().
		Overwrite().
		Input(screenPath).
		Input(camPath).
		FilterComplex(pipFilter).
		VideoCodec(string(profile)).
		AudioCodec("aac").
		Output(output).
		Build()
}

// Concat stream-copies every segment in the join list into one .ts file.
func Concat(ffmpeg, joinListPath, output string) Spec {
	return NewCommandBuilder(ffmpeg).
		Name("concat").
		HideBanner().
		Overwrite().
		Input(joinListPath, "-f", "concat", "-safe", "0").
		StreamCopy().
		Output(output).
		Build()
}

// Transcode produces the final mp4: video stream-copied, audio re-encoded
// to AAC so every player accepts the container.
func Transcode(ffmpeg, joinedPath, output string) Spec {
	return NewCommandBuilder(ffmpeg).
		Name("transcode").
		HideBanner().
		Overwrite().
		Input(joinedPath).
		VideoCodec("copy").
		AudioCodec("aac").
		Output(output).
		Build()
}

// Thumbnail extracts a single frame at the one second mark.
func Thumbnail(ffmpeg, videoPath, output string) Spec {
	return NewCommandBuilder(ffmpeg).
		Name("thumbnail").
		HideBanner().
		Overwrite().
		Input(videoPath, "-ss", "00:00:01.000").
		OutputArgs("-vframes", "1").
		Output(output).
		Build()
}
