package analysis

import (
	"math"
	"testing"

	"github.com/tz-player/spectrum-helper/transcode"
)

// monoAudio wraps a mono buffer as decoded audio with mirrored stereo.
func monoAudio(rate int, mono []float32) *transcode.DecodedAudio {
	ms := int(int64(len(mono)) * 1000 / int64(rate))
	if ms < 1 {
		ms = 1
	}
	return &transcode.DecodedAudio{
		MonoRate:   rate,
		Mono:       mono,
		StereoRate: rate,
		Left:       mono,
		Right:      mono,
		DurationMS: ms,
	}
}

func sineWave(rate int, freq float64, seconds float64, amp float64) []float32 {
	n := int(float64(rate) * seconds)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestSpectrumSinePeaksInNearestBand(t *testing.T) {
	const rate = 11025
	const freq = 440.0
	audio := monoAudio(rate, sineWave(rate, freq, 1.0, 0.8))

	cfg := &SpectrumConfig{HopMS: 40, BandCount: 8, MaxFrames: 64}
	result, err := NewSpectrumAnalyzer(cfg).Compute(audio)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	// Expected band grid, mirroring the analyzer's geometry.
	nyquist := float64(rate)*0.5 - 1.0
	maxFreq := math.Min(nyquist, 5000.0)
	ratio := math.Pow(maxFreq/40.0, 1.0/7.0)
	wantBand := 0
	bestDiff := math.Inf(1)
	for b := 0; b < 8; b++ {
		center := 40.0 * math.Pow(ratio, float64(b))
		if d := math.Abs(center - freq); d < bestDiff {
			bestDiff = d
			wantBand = b
		}
	}

	// Aggregate band energy over all frames and find the dominant band.
	totals := make([]float64, 8)
	for _, fr := range result.Frames {
		for b, v := range fr.Bands {
			totals[b] += float64(v)
		}
	}
	gotBand := 0
	for b, v := range totals {
		if v > totals[gotBand] {
			gotBand = b
		}
	}
	if gotBand != wantBand {
		t.Errorf("dominant band = %d, want %d (totals %v)", gotBand, wantBand, totals)
	}
}

func TestSpectrumFrameGeometry(t *testing.T) {
	const rate = 11025
	audio := monoAudio(rate, sineWave(rate, 440, 1.0, 0.8))

	cfg := &SpectrumConfig{HopMS: 40, BandCount: 8, MaxFrames: 64}
	result, err := NewSpectrumAnalyzer(cfg).Compute(audio)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	hop := int(math.Round(rate * 0.040))
	wantFrames := (len(audio.Mono) + hop - 1) / hop
	if len(result.Frames) != wantFrames {
		t.Errorf("frame count = %d, want %d", len(result.Frames), wantFrames)
	}
	if result.BandCount != 8 {
		t.Errorf("band count = %d", result.BandCount)
	}
	if result.DurationMS != 1000 {
		t.Errorf("duration_ms = %d, want 1000", result.DurationMS)
	}

	for f, fr := range result.Frames {
		wantPos := int32(int64(f*hop) * 1000 / rate)
		if fr.PosMS != wantPos {
			t.Errorf("frame %d pos_ms = %d, want %d", f, fr.PosMS, wantPos)
		}
		if len(fr.Bands) != 8 {
			t.Errorf("frame %d band count = %d", f, len(fr.Bands))
		}
	}

	// Normalization guarantees at least one saturated cell.
	sawMax := false
	for _, fr := range result.Frames {
		for _, v := range fr.Bands {
			if v == 255 {
				sawMax = true
			}
		}
	}
	if !sawMax {
		t.Errorf("no band reached 255 after normalization")
	}
}

func TestSpectrumMaxFramesCap(t *testing.T) {
	audio := monoAudio(11025, sineWave(11025, 440, 2.0, 0.5))
	cfg := &SpectrumConfig{HopMS: 40, BandCount: 8, MaxFrames: 10}
	result, err := NewSpectrumAnalyzer(cfg).Compute(audio)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(result.Frames) != 10 {
		t.Errorf("frame count = %d, want cap 10", len(result.Frames))
	}
}

func TestSpectrumSilentInput(t *testing.T) {
	audio := monoAudio(11025, make([]float32, 11025))
	result, err := NewSpectrumAnalyzer(&SpectrumConfig{HopMS: 40, BandCount: 8, MaxFrames: 64}).Compute(audio)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for f, fr := range result.Frames {
		for b, v := range fr.Bands {
			if v != 0 {
				t.Fatalf("frame %d band %d = %d, want 0 for silence", f, b, v)
			}
		}
	}
}

func TestSpectrumRejectsEmptyAudio(t *testing.T) {
	if _, err := NewSpectrumAnalyzer(nil).Compute(&transcode.DecodedAudio{MonoRate: 11025}); err == nil {
		t.Errorf("empty mono buffer should fail")
	}
	if _, err := NewSpectrumAnalyzer(nil).Compute(nil); err == nil {
		t.Errorf("nil audio should fail")
	}
}

func TestNextPow2Clamped(t *testing.T) {
	cases := map[int]int{
		1:    256,
		100:  256,
		257:  512,
		882:  1024,
		2048: 2048,
		5000: 2048,
	}
	for in, want := range cases {
		if got := nextPow2Clamped(in); got != want {
			t.Errorf("nextPow2Clamped(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestQuantizeLevel(t *testing.T) {
	if got := quantizeLevel(0); got != 0 {
		t.Errorf("quantizeLevel(0) = %d", got)
	}
	if got := quantizeLevel(1); got != 255 {
		t.Errorf("quantizeLevel(1) = %d", got)
	}
	if got := quantizeLevel(-0.5); got != 0 {
		t.Errorf("quantizeLevel(-0.5) = %d", got)
	}
	if got := quantizeLevel(2.0); got != 255 {
		t.Errorf("quantizeLevel(2.0) = %d", got)
	}
	// The square-root display curve: 0.25 maps to half scale.
	if got := quantizeLevel(0.25); got != 128 {
		t.Errorf("quantizeLevel(0.25) = %d, want 128", got)
	}
}

func TestHopSampleCount(t *testing.T) {
	if got := hopSampleCount(11025, 40); got != 441 {
		t.Errorf("hopSampleCount = %d, want 441", got)
	}
	if got := hopSampleCount(1, 1); got != 1 {
		t.Errorf("hopSampleCount floor = %d, want 1", got)
	}
}
