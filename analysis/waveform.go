package analysis

import (
	"fmt"
	"math"

	"github.com/tz-player/spectrum-helper/transcode"
)

// WaveformConfig holds the waveform proxy pass parameters.
type WaveformConfig struct {
	HopMS     int `json:"hop_ms"`
	MaxFrames int `json:"max_frames"`
}

// DefaultWaveformConfig returns the waveform proxy defaults.
func DefaultWaveformConfig() *WaveformConfig {
	return &WaveformConfig{
		HopMS:     20,
		MaxFrames: 30000,
	}
}

// WaveformFrame is a per-hop stereo min/max envelope entry, quantized to
// int8 so a waveform glyph can be drawn without raw PCM.
type WaveformFrame struct {
	PosMS int32
	LMin  int8
	LMax  int8
	RMin  int8
	RMax  int8
}

// WaveformResult is the complete waveform proxy.
type WaveformResult struct {
	DurationMS int
	Frames     []WaveformFrame
}

// WaveformAnalyzer scans consecutive non-overlapping windows of the
// stereo buffers for per-channel extrema.
type WaveformAnalyzer struct {
	config *WaveformConfig
}

// NewWaveformAnalyzer creates a waveform proxy analyzer.
func NewWaveformAnalyzer(config *WaveformConfig) *WaveformAnalyzer {
	if config == nil {
		config = DefaultWaveformConfig()
	}
	return &WaveformAnalyzer{config: config}
}

// Compute runs the waveform pass over the stereo buffers.
func (wa *WaveformAnalyzer) Compute(audio *transcode.DecodedAudio) (*WaveformResult, error) {
	if audio == nil || audio.StereoRate <= 0 || len(audio.Left) == 0 || len(audio.Right) == 0 {
		return nil, fmt.Errorf("no decoded stereo samples")
	}

	rate := audio.StereoRate
	hopFrames := hopSampleCount(rate, wa.config.HopMS)

	frameCount := (len(audio.Left) + hopFrames - 1) / hopFrames
	if frameCount > wa.config.MaxFrames {
		frameCount = wa.config.MaxFrames
	}
	if frameCount == 0 {
		return nil, fmt.Errorf("degenerate configuration: zero frames")
	}

	frames := make([]WaveformFrame, frameCount)
	start := 0
	for i := 0; i < frameCount && start < len(audio.Left); i++ {
		end := start + hopFrames
		if end > len(audio.Left) {
			end = len(audio.Left)
		}

		// Mins start high and maxes low so single-sample windows
		// degenerate correctly.
		lmin, lmax := float32(1.0), float32(-1.0)
		rmin, rmax := float32(1.0), float32(-1.0)
		for j := start; j < end; j++ {
			lv := audio.Left[j]
			rv := audio.Right[j]
			if lv < lmin {
				lmin = lv
			}
			if lv > lmax {
				lmax = lv
			}
			if rv < rmin {
				rmin = rv
			}
			if rv > rmax {
				rmax = rv
			}
		}

		frames[i] = WaveformFrame{
			PosMS: int32(int64(start) * 1000 / int64(rate)),
			LMin:  quantizeI8(lmin),
			LMax:  quantizeI8(lmax),
			RMin:  quantizeI8(rmin),
			RMax:  quantizeI8(rmax),
		}
		start = end
	}

	return &WaveformResult{
		DurationMS: audio.DurationMS,
		Frames:     frames,
	}, nil
}

func quantizeI8(v float32) int8 {
	f := float64(v)
	if f < -1 {
		f = -1
	}
	if f > 1 {
		f = 1
	}
	q := int(math.Round(f * 127.0))
	if q < -127 {
		q = -127
	}
	if q > 127 {
		q = 127
	}
	return int8(q)
}
