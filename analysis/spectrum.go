// Package analysis runs the DSP passes over one decoded audio buffer:
// log-magnitude spectrogram, beat/onset timeline, and waveform proxy.
package analysis

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"

	"github.com/tz-player/spectrum-helper/logging"
	"github.com/tz-player/spectrum-helper/transcode"
)

// Band grid bounds. Bands are geometrically spaced between minBandFreqHz
// and the lesser of maxBandFreqHz and the (slightly pulled-in) Nyquist.
const (
	minBandFreqHz   = 40.0
	maxBandFreqHz   = 5000.0
	minWindowSize   = 256
	maxWindowSize   = 2048
	nyquistFloorHz  = 100.0
	quantizeEpsilon = 1e-12
)

// SpectrumConfig holds the spectrogram pass parameters.
type SpectrumConfig struct {
	HopMS     int `json:"hop_ms"`
	BandCount int `json:"band_count"`
	MaxFrames int `json:"max_frames"`
}

// DefaultSpectrumConfig returns the spectrogram defaults.
func DefaultSpectrumConfig() *SpectrumConfig {
	return &SpectrumConfig{
		HopMS:     40,
		BandCount: 48,
		MaxFrames: 12000,
	}
}

// SpectrumFrame is one analysis frame: position plus one byte per band.
type SpectrumFrame struct {
	PosMS int32
	Bands []uint8
}

// SpectrumResult is the complete spectrogram.
type SpectrumResult struct {
	DurationMS int
	BandCount  int
	Frames     []SpectrumFrame
}

// SpectrumAnalyzer computes per-frame log-magnitude bands with a Goertzel
// resonator bank over Hann-windowed frames.
type SpectrumAnalyzer struct {
	config *SpectrumConfig
	logger logging.Logger
}

// NewSpectrumAnalyzer creates a spectrogram analyzer.
func NewSpectrumAnalyzer(config *SpectrumConfig) *SpectrumAnalyzer {
	if config == nil {
		config = DefaultSpectrumConfig()
	}
	return &SpectrumAnalyzer{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "spectrum_analyzer",
		}),
	}
}

// Compute runs the Goertzel bank over the mono buffer.
func (s *SpectrumAnalyzer) Compute(audio *transcode.DecodedAudio) (*SpectrumResult, error) {
	if audio == nil || audio.MonoRate <= 0 || len(audio.Mono) == 0 {
		return nil, fmt.Errorf("no decoded mono samples")
	}

	rate := audio.MonoRate
	hopSamples := hopSampleCount(rate, s.config.HopMS)
	windowSize := nextPow2Clamped(hopSamples * 2)
	bandCount := s.config.BandCount

	coeffs := bandCoefficients(bandCount, windowSize, rate)
	hann := hannWindow(windowSize)

	frameCount := (len(audio.Mono) + hopSamples - 1) / hopSamples
	if frameCount > s.config.MaxFrames {
		frameCount = s.config.MaxFrames
	}
	if frameCount == 0 {
		return nil, fmt.Errorf("degenerate configuration: zero frames")
	}

	s.logger.Debug("spectrum pass configured", logging.Fields{
		"hop_samples": hopSamples,
		"window_size": windowSize,
		"band_count":  bandCount,
		"frame_count": frameCount,
	})

	mags := make([]float64, frameCount*bandCount)
	positions := make([]int32, frameCount)
	windowed := make([]float32, windowSize)

	for f := 0; f < frameCount; f++ {
		start := f * hopSamples
		positions[f] = int32(int64(start) * 1000 / int64(rate))

		for i := 0; i < windowSize; i++ {
			var sample float32
			if idx := start + i; idx < len(audio.Mono) {
				sample = audio.Mono[idx]
			}
			windowed[i] = sample * hann[i]
		}

		for b := 0; b < bandCount; b++ {
			coeff := coeffs[b]
			var sPrev, sPrev2 float32
			for i := 0; i < windowSize; i++ {
				st := windowed[i] + coeff*sPrev - sPrev2
				sPrev2 = sPrev
				sPrev = st
			}
			power := sPrev2*sPrev2 + sPrev*sPrev - coeff*sPrev*sPrev2
			var mag float64
			if power > 0 {
				mag = math.Log1p(float64(power))
			}
			mags[f*bandCount+b] = mag
		}
	}

	maxMag := floats.Max(mags)
	if maxMag <= 0 {
		// All-silent input: keep the normalization well-defined and emit
		// all-zero bytes.
		maxMag = 1.0
	}

	frames := make([]SpectrumFrame, frameCount)
	for f := 0; f < frameCount; f++ {
		bands := make([]uint8, bandCount)
		for b := 0; b < bandCount; b++ {
			bands[b] = quantizeLevel(mags[f*bandCount+b] / math.Max(maxMag, quantizeEpsilon))
		}
		frames[f] = SpectrumFrame{PosMS: positions[f], Bands: bands}
	}

	return &SpectrumResult{
		DurationMS: audio.DurationMS,
		BandCount:  bandCount,
		Frames:     frames,
	}, nil
}

// bandCoefficients builds one Goertzel coefficient per band over a
// geometric frequency grid. A single band degenerates to the DC resonator.
func bandCoefficients(bandCount, windowSize, rate int) []float32 {
	coeffs := make([]float32, bandCount)
	if bandCount <= 1 {
		coeffs[0] = 2.0
		return coeffs
	}

	nyquist := float64(rate)*0.5 - 1.0
	if nyquist < nyquistFloorHz {
		nyquist = nyquistFloorHz
	}
	maxFreq := math.Min(nyquist, maxBandFreqHz)
	if maxFreq <= minBandFreqHz {
		maxFreq = minBandFreqHz + 1.0
	}

	ratio := math.Pow(maxFreq/minBandFreqHz, 1.0/float64(bandCount-1))
	for b := 0; b < bandCount; b++ {
		freq := minBandFreqHz * math.Pow(ratio, float64(b))
		k := int(0.5 + float64(windowSize)*freq/float64(rate))
		omega := 2.0 * math.Pi * float64(k) / float64(windowSize)
		coeffs[b] = float32(2.0 * math.Cos(omega))
	}
	return coeffs
}

// hannWindow returns single-precision Hann coefficients. The window size
// is always within [256, 2048] so the symmetric form is well-defined.
func hannWindow(size int) []float32 {
	coeffs := window.Hann(size)
	out := make([]float32, size)
	for i, c := range coeffs {
		out[i] = float32(c)
	}
	return out
}

// hopSampleCount converts a hop in milliseconds to samples, at least 1.
func hopSampleCount(rate, hopMS int) int {
	hop := int(math.Round(float64(rate) * float64(hopMS) / 1000.0))
	if hop < 1 {
		hop = 1
	}
	return hop
}

func nextPow2Clamped(value int) int {
	size := 1
	for size < value {
		size <<= 1
	}
	if size < minWindowSize {
		size = minWindowSize
	}
	if size > maxWindowSize {
		size = maxWindowSize
	}
	return size
}

// quantizeLevel maps a normalized magnitude through the square-root
// display curve to a byte. The curve is part of the output contract.
func quantizeLevel(normalized float64) uint8 {
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}
	v := int(math.Round(math.Sqrt(normalized) * 255.0))
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint8(v)
}
