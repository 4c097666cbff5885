// Package helper drives the one-shot analysis pipeline: parse request,
// decode, resample, run the DSP passes, emit the response.
package helper

import (
	"fmt"
	"io"
	"time"

	"github.com/tz-player/spectrum-helper/analysis"
	"github.com/tz-player/spectrum-helper/logging"
	"github.com/tz-player/spectrum-helper/request"
	"github.com/tz-player/spectrum-helper/response"
	"github.com/tz-player/spectrum-helper/transcode"
)

// Exit codes of the process contract.
const (
	ExitOK             = 0
	ExitAnalysisFailed = 1
	ExitBadRequest     = 2
)

// Helper runs the full pipeline for a single request. All DSP runs on
// the calling goroutine; the only concurrent actor is the ffmpeg child
// inside transcode.
type Helper struct {
	logger logging.Logger
}

// New creates a helper.
func New() *Helper {
	return &Helper{
		logger: logging.WithFields(logging.Fields{
			"component": "helper",
		}),
	}
}

// Run reads one request from stdin, writes the response to stdout on
// success, and returns the process exit code. Failures produce exactly
// one diagnostic line on stderr and leave stdout untouched.
func (h *Helper) Run(stdin io.Reader, stdout, stderr io.Writer) int {
	input, err := io.ReadAll(stdin)
	if err != nil || len(input) == 0 {
		fmt.Fprintln(stderr, "invalid json request")
		return ExitBadRequest
	}

	req, err := request.Parse(input)
	if err != nil {
		fmt.Fprintln(stderr, request.ErrInvalidRequest.Error())
		return ExitBadRequest
	}

	totalStart := time.Now()

	decodeStart := totalStart
	audio, err := transcode.DecodeFile(req.TrackPath)
	if err != nil {
		fmt.Fprintf(stderr, "analysis failed (decode): %v\n", err)
		return ExitAnalysisFailed
	}
	audio.DownsampleMono(req.Spectrum.MonoTargetRateHz)
	timings := response.Timings{DecodeMS: msSince(decodeStart)}

	h.logger.Debug("decode completed", logging.Fields{
		"mono_rate":    audio.MonoRate,
		"mono_samples": len(audio.Mono),
		"duration_ms":  audio.DurationMS,
	})

	spectrumStart := time.Now()
	spectrum, err := analysis.NewSpectrumAnalyzer(&analysis.SpectrumConfig{
		HopMS:     req.Spectrum.HopMS,
		BandCount: req.Spectrum.BandCount,
		MaxFrames: req.Spectrum.MaxFrames,
	}).Compute(audio)
	if err != nil {
		fmt.Fprintf(stderr, "analysis failed (spectrum): %v\n", err)
		return ExitAnalysisFailed
	}
	timings.SpectrumMS = msSince(spectrumStart)

	var beat *analysis.BeatResult
	if req.Beat.Enabled {
		beatStart := time.Now()
		beat, err = analysis.NewBeatAnalyzer(&analysis.BeatConfig{
			HopMS:     req.Beat.HopMS,
			MaxFrames: req.Beat.MaxFrames,
		}).Compute(audio)
		if err != nil {
			fmt.Fprintf(stderr, "analysis failed (beat): %v\n", err)
			return ExitAnalysisFailed
		}
		timings.BeatMS = msSince(beatStart)
	}

	var waveform *analysis.WaveformResult
	if req.Waveform.Enabled {
		waveformStart := time.Now()
		waveform, err = analysis.NewWaveformAnalyzer(&analysis.WaveformConfig{
			HopMS:     req.Waveform.HopMS,
			MaxFrames: req.Waveform.MaxFrames,
		}).Compute(audio)
		if err != nil {
			fmt.Fprintf(stderr, "analysis failed (waveform_proxy): %v\n", err)
			return ExitAnalysisFailed
		}
		timings.WaveformProxyMS = msSince(waveformStart)
	}

	timings.TotalMS = msSince(totalStart)

	if err := response.Build(spectrum, beat, waveform, timings).Write(stdout); err != nil {
		fmt.Fprintf(stderr, "analysis failed (emit): %v\n", err)
		return ExitAnalysisFailed
	}
	return ExitOK
}

func msSince(start time.Time) float64 {
	return time.Since(start).Seconds() * 1000.0
}
