package encoder

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Profile is the H264 encoder a room's merge and compositing steps use.
// The value is passed to ffmpeg as -c:v.
type Profile string

// Known encoder profiles, preferred hardware first.
const (
	ProfileNVENC        Profile = "h264_nvenc"
	ProfileVideoToolbox Profile = "h264_videotoolbox"
	ProfileQSV          Profile = "h264_qsv"
	ProfileSoftware     Profile = "libx264"
)

// probes carries the hardware facts profile selection is based on. Separated
// from the detection so selection itself is deterministic.
type probes struct {
	goos      string
	hasNVIDIA bool
	cpuVendor string
}

// SelectProfile picks the encoder profile for a room at configure time,
// walking the configured priority order against the probed hardware and
// falling back to software encoding.
func SelectProfile(ctx context.Context, priority []string, logger *slog.Logger) Profile {
	if logger == nil {
		logger = slog.Default()
	}

	p := probes{
		goos:      runtime.GOOS,
		hasNVIDIA: probeNVIDIA(ctx),
		cpuVendor: probeCPUVendor(ctx),
	}

	profile := selectProfile(priority, p)
	logger.Info("encoder profile selected",
		slog.String("profile", string(profile)),
		slog.Bool("nvidia", p.hasNVIDIA),
		slog.String("cpu_vendor", p.cpuVendor))
	return profile
}

// selectProfile resolves the first priority entry the hardware satisfies.
func selectProfile(priority []string, p probes) Profile {
	if len(priority) == 0 {
		priority = []string{"nvenc", "videotoolbox", "qsv"}
	}

	for _, want := range priority {
		switch strings.ToLower(want) {
		case "nvenc", "cuda":
			if p.hasNVIDIA {
				return ProfileNVENC
			}
		case "videotoolbox":
			if p.goos == "darwin" {
				return ProfileVideoToolbox
			}
		case "qsv", "quicksync":
			if strings.Contains(p.cpuVendor, "GenuineIntel") {
				return ProfileQSV
			}
		}
	}
	return ProfileSoftware
}

// probeNVIDIA reports whether an NVIDIA GPU is present. nvidia-smi exiting
// zero is the same probe the driver tooling itself uses.
func probeNVIDIA(ctx context.Context) bool {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return false
	}
	return exec.CommandContext(ctx, path, "-L").Run() == nil
}

// probeCPUVendor returns the vendor string of the first CPU package.
func probeCPUVendor(ctx context.Context) string {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil || len(infos) == 0 {
		return ""
	}
	return infos[0].VendorID
}
