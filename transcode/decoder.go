// Package transcode produces normalized float32 PCM from an audio file,
// either by parsing WAV containers in-process or by delegating to an
// ffmpeg child process.
package transcode

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/tz-player/spectrum-helper/logging"
)

// DecodedAudio holds the decoded track entirely in memory: interleaved
// stereo split into left/right plus a mono mixdown, all normalized to
// approximately [-1, 1].
type DecodedAudio struct {
	MonoRate   int
	Mono       []float32
	StereoRate int
	Left       []float32
	Right      []float32
	DurationMS int
}

// DecodeFile decodes the track at path. The WAV fast path is attempted
// first, unconditionally. If it rejects the file and the extension names
// a WAV container, the failure is final; everything else gets exactly one
// ffmpeg attempt. WAV files never silently escalate to ffmpeg.
func DecodeFile(path string) (*DecodedAudio, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "decoder",
		"path":      path,
	})

	audio, wavErr := decodeWAVFile(path)
	if wavErr == nil {
		logger.Debug("wav fast path succeeded", logging.Fields{
			"sample_rate": audio.StereoRate,
			"frames":      len(audio.Mono),
		})
		return audio, nil
	}
	if hasWAVExtension(path) {
		return nil, fmt.Errorf("wav decode: %w", wavErr)
	}

	logger.Debug("wav fast path rejected, delegating to ffmpeg", logging.Fields{
		"wav_error": wavErr.Error(),
	})
	return decodeFFmpegFile(path)
}

func hasWAVExtension(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".wave")
}

// decodeS16Frames converts interleaved little-endian signed 16-bit PCM
// into normalized left/right/mono buffers. For mono input the right
// channel duplicates the left.
func decodeS16Frames(data []byte, channels int) (left, right, mono []float32) {
	bytesPerFrame := channels * 2
	frameCount := len(data) / bytesPerFrame

	left = make([]float32, frameCount)
	right = make([]float32, frameCount)
	mono = make([]float32, frameCount)

	for i := 0; i < frameCount; i++ {
		p := data[i*bytesPerFrame:]
		l := int16(binary.LittleEndian.Uint16(p))
		r := l
		if channels == 2 {
			r = int16(binary.LittleEndian.Uint16(p[2:]))
		}
		lf := float32(l) / 32768.0
		rf := float32(r) / 32768.0
		left[i] = lf
		right[i] = rf
		mono[i] = (lf + rf) * 0.5
	}
	return left, right, mono
}

// durationMS converts a frame count at rate into whole milliseconds,
// clamped to at least 1 so a decodable track never reports zero length.
func durationMS(frames, rate int) int {
	ms := int(int64(frames) * 1000 / int64(rate))
	if ms < 1 {
		ms = 1
	}
	return ms
}
