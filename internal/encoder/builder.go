package encoder

import (
	"strings"
)

// Spec is one fully built encoder invocation: the argument vector for a
// single child process and the output file it owns. At any time at most one
// child writes a given output file.
type Spec struct {
	// Name labels the invocation in logs (capture, merge, concat, ...).
	Name string
	// Binary is the ffmpeg executable to spawn.
	Binary string
	// Args is the complete argument vector.
	Args []string
	// Output is the file the invocation writes.
	Output string
}

// String returns the invocation as a shell-like string for logging.
func (s Spec) String() string {
	return s.Binary + " " + strings.Join(s.Args, " ")
}

// CommandBuilder builds FFmpeg argument vectors with a fluent API.
type CommandBuilder struct {
	name       string
	binary     string
	globalArgs []string
	inputs     []input
	filters    []string
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// input pairs one -i source with the args that precede it.
type input struct {
	args   []string
	source string
}

// NewCommandBuilder creates a builder for the given ffmpeg binary.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// Name labels the built spec for logging.
func (b *CommandBuilder) Name(name string) *CommandBuilder {
	b.name = name
	return b
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// GlobalArgs adds arbitrary global arguments.
func (b *CommandBuilder) GlobalArgs(args ...string) *CommandBuilder {
	b.globalArgs = append(b.globalArgs, args...)
	return b
}

// Input adds an input source with optional per-input arguments placed before
// its -i flag. Inputs appear in the vector in the order they are added.
func (b *CommandBuilder) Input(source string, args ...string) *CommandBuilder {
	b.inputs = append(b.inputs, input{args: args, source: source})
	return b
}

// FilterComplex adds a -filter_complex graph.
func (b *CommandBuilder) FilterComplex(graph string) *CommandBuilder {
	b.filters = append(b.filters, graph)
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// StreamCopy copies all streams without re-encoding.
func (b *CommandBuilder) StreamCopy() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c", "copy")
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the final spec.
func (b *CommandBuilder) Build() Spec {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.source)
	}

	if len(b.filters) > 0 {
		args = append(args, "-filter_complex", strings.Join(b.filters, ";"))
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return Spec{
		Name:   b.name,
		Binary: b.binary,
		Args:   args,
		Output: b.output,
	}
}
