// Package transcode converts audio payloads through an external ffmpeg
// binary. The store treats it as a black box: bytes in one format to bytes in
// another.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const defaultFFmpegBinary = "ffmpeg"

var errEmptyInput = errors.New("transcode: empty input")

// FFmpeg runs conversions by invoking an ffmpeg binary.
type FFmpeg struct {
	binary string
}

// NewFFmpeg constructs an FFmpeg transcoder. An empty binary falls back to
// resolving "ffmpeg" from PATH.
func NewFFmpeg(binary string) *FFmpeg {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = defaultFFmpegBinary
	}
	return &FFmpeg{binary: binary}
}

// Available reports whether the configured binary can be resolved.
func (f *FFmpeg) Available() error {
	if _, err := exec.LookPath(f.binary); err != nil {
		return fmt.Errorf("transcode: binary %q not found: %w", f.binary, err)
	}
	return nil
}

// FlacToOgg converts a FLAC payload to an OGG/Vorbis payload. Intermediate
// files live in a private temp directory and are removed before returning,
// success or not.
func (f *FFmpeg) FlacToOgg(ctx context.Context, data []byte) ([]byte, error) {
	return f.convert(ctx, data, "in.flac", "out.ogg", []string{"-c:a", "libvorbis", "-q:a", "6"})
}

func (f *FFmpeg) convert(ctx context.Context, data []byte, inName, outName string, codecArgs []string) ([]byte, error) {
	if len(data) == 0 {
		return nil, errEmptyInput
	}

	workDir, err := os.MkdirTemp("", "tabliste-transcode-")
	if err != nil {
		return nil, fmt.Errorf("transcode: temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inPath := filepath.Join(workDir, inName)
	outPath := filepath.Join(workDir, outName)
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("transcode: write input: %w", err)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inPath,
	}
	args = append(args, codecArgs...)
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, f.binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("transcode: ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}

	converted, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("transcode: read output: %w", err)
	}
	if len(converted) == 0 {
		return nil, errors.New("transcode: ffmpeg produced empty output")
	}
	return converted, nil
}
