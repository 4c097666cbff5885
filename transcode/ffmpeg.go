package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"

	"github.com/tz-player/spectrum-helper/logging"
)

// FFmpegDecodeRateHz is the fixed output rate of the delegation path.
const FFmpegDecodeRateHz = 44100

// ffmpegBinary is resolved via PATH.
const ffmpegBinary = "ffmpeg"

// decodeFFmpegFile spawns an ffmpeg child emitting interleaved s16le
// stereo at 44100 Hz on its stdout. The child's stdin and stderr go to
// the null device; the parent collects stdout to EOF, then waits for the
// exit code. os/exec owns the per-platform pipe and handle plumbing.
func decodeFFmpegFile(path string) (*DecodedAudio, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "decoder",
		"function":  "decodeFFmpegFile",
		"path":      path,
	})

	args := []string{
		"-v", "error",
		"-i", path,
		"-vn", "-sn", "-dn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "2",
		"-ar", "44100",
		"pipe:1",
	}

	cmd := exec.Command(ffmpegBinary, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	logger.Debug("spawning ffmpeg child")

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode: spawn: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffmpeg decode: ffmpeg exit_code=%d", exitErr.ExitCode())
		}
		return nil, fmt.Errorf("ffmpeg decode: %w", err)
	}

	raw := stdout.Bytes()
	if len(raw) < 4 {
		return nil, fmt.Errorf("ffmpeg decode: insufficient PCM bytes len=%d", len(raw))
	}

	left, right, mono := decodeS16Frames(raw, 2)

	logger.Debug("ffmpeg decode completed", logging.Fields{
		"pcm_bytes": len(raw),
		"frames":    len(mono),
	})

	return &DecodedAudio{
		MonoRate:   FFmpegDecodeRateHz,
		Mono:       mono,
		StereoRate: FFmpegDecodeRateHz,
		Left:       left,
		Right:      right,
		DurationMS: durationMS(len(mono), FFmpegDecodeRateHz),
	}, nil
}
