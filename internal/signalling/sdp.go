package signalling

import (
	"fmt"
	"os"
	"strings"
)

// SDPSpec describes the RTP pair an SDP file binds for the capture encoder.
type SDPSpec struct {
	Name      string
	Host      string
	AudioPort int
	VideoPort int
	AudioPT   int
	VideoPT   int
}

// RenderSDP produces the session description the capture encoder reads to
// receive a forwarded publisher: one opus audio stream and one H264 video
// stream on the allocated UDP ports. Lines use CRLF as SDP requires.
func RenderSDP(spec SDPSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "v=0\r\n")
	fmt.Fprintf(&b, "o=- 0 0 IN IP4 %s\r\n", spec.Host)
	fmt.Fprintf(&b, "s=%s\r\n", spec.Name)
	fmt.Fprintf(&b, "c=IN IP4 %s\r\n", spec.Host)
	fmt.Fprintf(&b, "t=0 0\r\n")
	fmt.Fprintf(&b, "m=audio %d RTP/AVP %d\r\n", spec.AudioPort, spec.AudioPT)
	fmt.Fprintf(&b, "a=rtpmap:%d opus/48000/2\r\n", spec.AudioPT)
	fmt.Fprintf(&b, "m=video %d RTP/AVP %d\r\n", spec.VideoPort, spec.VideoPT)
	fmt.Fprintf(&b, "a=rtpmap:%d H264/90000\r\n", spec.VideoPT)
	fmt.Fprintf(&b, "a=fmtp:%d packetization-mode=1;profile-level-id=42e01f\r\n", spec.VideoPT)
	return b.String()
}

// WriteSDP renders the spec and writes it to path, truncating any stale file
// left from an earlier run.
func WriteSDP(path string, spec SDPSpec) error {
	if err := os.WriteFile(path, []byte(RenderSDP(spec)), 0o644); err != nil {
		return fmt.Errorf("writing sdp file: %w", err)
	}
	return nil
}
