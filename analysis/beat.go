package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tz-player/spectrum-helper/logging"
	"github.com/tz-player/spectrum-helper/transcode"
)

// Tempo search range and beat gating parameters.
const (
	tempoMinBPM       = 60.0
	tempoMaxBPM       = 180.0
	minEnvelopeFrames = 8
	strengthGain      = 1.35
	strengthFloor     = 0.12
)

// BeatConfig holds the beat pass parameters.
type BeatConfig struct {
	HopMS     int `json:"hop_ms"`
	MaxFrames int `json:"max_frames"`
}

// DefaultBeatConfig returns the beat-timeline defaults.
func DefaultBeatConfig() *BeatConfig {
	return &BeatConfig{
		HopMS:     40,
		MaxFrames: 12000,
	}
}

// BeatFrame is one timeline entry: position, onset strength, beat flag.
type BeatFrame struct {
	PosMS    int32
	Strength uint8
	IsBeat   bool
}

// BeatResult is the complete beat timeline. A BPM of zero means the
// tempo could not be determined.
type BeatResult struct {
	DurationMS int
	BPM        float64
	Frames     []BeatFrame
}

// BeatAnalyzer derives an onset envelope from per-hop RMS energy, picks
// a tempo by autocorrelating the envelope, and flags beats on the
// strongest phase of the winning lag.
type BeatAnalyzer struct {
	config *BeatConfig
	logger logging.Logger
}

// NewBeatAnalyzer creates a beat analyzer.
func NewBeatAnalyzer(config *BeatConfig) *BeatAnalyzer {
	if config == nil {
		config = DefaultBeatConfig()
	}
	return &BeatAnalyzer{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "beat_analyzer",
		}),
	}
}

// Compute runs the beat pass over the mono buffer.
func (ba *BeatAnalyzer) Compute(audio *transcode.DecodedAudio) (*BeatResult, error) {
	if audio == nil || audio.MonoRate <= 0 || len(audio.Mono) == 0 {
		return nil, fmt.Errorf("no decoded mono samples")
	}

	hopMS := ba.config.HopMS
	hopSamples := hopSampleCount(audio.MonoRate, hopMS)
	windowSamples := 2 * hopSamples

	energies := ba.rmsEnvelope(audio.Mono, hopSamples, windowSamples)
	if len(energies) == 0 {
		return nil, fmt.Errorf("degenerate configuration: zero envelope frames")
	}

	// Positive-difference onset envelope: peaks track transient events.
	onsets := make([]float64, len(energies))
	for i := 1; i < len(energies); i++ {
		if diff := energies[i] - energies[i-1]; diff > 0 {
			onsets[i] = diff
		}
	}

	strengths := normalizeStrengths(onsets)

	fps := 1000.0 / float64(hopMS)
	bpm, bestLag := ba.estimateTempo(onsets, fps)

	beatFlags := make([]bool, len(energies))
	if bestLag > 0 {
		ba.markBeats(strengths, bestLag, beatFlags)
	}

	frames := make([]BeatFrame, len(energies))
	for i := range energies {
		frames[i] = BeatFrame{
			PosMS:    int32(i * hopMS),
			Strength: quantizeStrength(strengths[i]),
			IsBeat:   beatFlags[i],
		}
	}

	if bpm < 0 {
		bpm = 0
	}

	ba.logger.Debug("beat pass completed", logging.Fields{
		"envelope_frames": len(energies),
		"bpm":             bpm,
		"best_lag":        bestLag,
	})

	return &BeatResult{
		DurationMS: audio.DurationMS,
		BPM:        bpm,
		Frames:     frames,
	}, nil
}

// rmsEnvelope slides a non-overlapping hop with a window of twice the hop
// and records the RMS energy of each window.
func (ba *BeatAnalyzer) rmsEnvelope(mono []float32, hopSamples, windowSamples int) []float64 {
	energies := make([]float64, 0, ba.config.MaxFrames)
	for start := 0; start < len(mono) && len(energies) < ba.config.MaxFrames; start += hopSamples {
		end := start + windowSamples
		if end > len(mono) {
			end = len(mono)
		}
		if end <= start {
			break
		}
		var sumSquares float64
		for _, v := range mono[start:end] {
			sumSquares += float64(v) * float64(v)
		}
		energies = append(energies, math.Sqrt(sumSquares/float64(end-start)))
	}
	return energies
}

// normalizeStrengths scales the onset envelope by its maximum into [0, 1].
// An all-zero envelope stays all-zero.
func normalizeStrengths(onsets []float64) []float64 {
	strengths := make([]float64, len(onsets))
	maxOnset := floats.Max(onsets)
	if maxOnset <= 0 {
		return strengths
	}
	for i, o := range onsets {
		v := o / maxOnset
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		strengths[i] = v
	}
	return strengths
}

// estimateTempo scores every integer lag in the 60-180 BPM range by
// correlating the onset envelope against itself. Ties resolve to the
// smallest lag; an unusable range or an empty envelope yields zero.
func (ba *BeatAnalyzer) estimateTempo(onsets []float64, fps float64) (bpm float64, bestLag int) {
	if len(onsets) < minEnvelopeFrames || fps <= 0 {
		return 0, 0
	}

	lagMin := int(math.Round(60.0 * fps / tempoMaxBPM))
	lagMax := int(math.Round(60.0 * fps / tempoMinBPM))
	if lagMin < 1 {
		lagMin = 1
	}
	if lagMax < lagMin+1 {
		lagMax = lagMin + 1
	}
	if lagMax > len(onsets)-1 {
		lagMax = len(onsets) - 1
	}
	if lagMax <= lagMin {
		return 0, 0
	}

	bestScore := 0.0
	for lag := lagMin; lag <= lagMax; lag++ {
		score := 0.0
		for i := lag; i < len(onsets); i++ {
			score += onsets[i] * onsets[i-lag]
		}
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}
	if bestLag == 0 {
		return 0, 0
	}
	return 60.0 * fps / float64(bestLag), bestLag
}

// markBeats bins strengths by phase modulo the winning lag, picks the
// phase with the largest total, and flags frames on that phase whose
// strength clears the threshold. The strict phase match plus the
// threshold avoids double-triggering when onsets drift near the grid.
func (ba *BeatAnalyzer) markBeats(strengths []float64, lag int, flags []bool) {
	phaseScores := make([]float64, lag)
	for i, s := range strengths {
		phaseScores[i%lag] += s
	}

	bestPhase := 0
	for p := 1; p < lag; p++ {
		if phaseScores[p] > phaseScores[bestPhase] {
			bestPhase = p
		}
	}

	threshold := strengthGain * stat.Mean(strengths, nil)
	if threshold < strengthFloor {
		threshold = strengthFloor
	}

	for i, s := range strengths {
		flags[i] = i%lag == bestPhase && s >= threshold
	}
}

func quantizeStrength(v float64) uint8 {
	u := int(math.Round(v * 255.0))
	if u < 0 {
		u = 0
	}
	if u > 255 {
		u = 255
	}
	return uint8(u)
}
