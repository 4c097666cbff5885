// Package request parses the analysis request delivered on stdin.
package request

import (
	"errors"
	"strings"

	"github.com/tz-player/spectrum-helper/logging"
)

// Schema is the request schema tag; any other value is a hard rejection.
const Schema = "tz_player.native_spectrum_helper_request.v1"

// Default and floor values for the numeric request fields. A field given
// as zero is treated as unset and falls back to the legacy flat field,
// then the default.
const (
	DefaultMonoTargetRateHz = 11025
	DefaultSpectrumHopMS    = 40
	DefaultBandCount        = 48
	DefaultSpectrumFrames   = 12000
	DefaultBeatHopMS        = 40
	DefaultBeatFrames       = 12000
	DefaultWaveformHopMS    = 20
	DefaultWaveformFrames   = 30000

	minHopMS     = 10
	minBandCount = 8
	minFrames    = 1
)

// ErrInvalidRequest covers a missing or mismatched schema tag and a
// missing or empty track path. The text is part of the operational
// contract.
var ErrInvalidRequest = errors.New("invalid request schema or fields")

// SpectrumParams configures the spectrogram pass.
type SpectrumParams struct {
	MonoTargetRateHz int `json:"mono_target_rate_hz"`
	HopMS            int `json:"hop_ms"`
	BandCount        int `json:"band_count"`
	MaxFrames        int `json:"max_frames"`
}

// BeatParams configures the optional beat/onset pass.
type BeatParams struct {
	Enabled   bool `json:"-"`
	HopMS     int  `json:"hop_ms"`
	MaxFrames int  `json:"max_frames"`
}

// WaveformParams configures the optional waveform proxy pass.
type WaveformParams struct {
	Enabled   bool `json:"-"`
	HopMS     int  `json:"hop_ms"`
	MaxFrames int  `json:"max_frames"`
}

// Request is the fully defaulted and clamped analysis request.
type Request struct {
	TrackPath string         `json:"track_path"`
	Spectrum  SpectrumParams `json:"spectrum"`
	Beat      BeatParams     `json:"beat"`
	Waveform  WaveformParams `json:"waveform_proxy"`
}

// Parse validates the schema tag and track path, then resolves every
// numeric field through the nested object, the legacy flat field, and
// the default, in that order, before clamping to floors.
func Parse(data []byte) (*Request, error) {
	doc := string(data)
	logger := logging.WithFields(logging.Fields{
		"component": "request_parser",
	})

	schema, ok := extractString(doc, "schema")
	if !ok || schema != Schema {
		logger.Debug("schema tag rejected", logging.Fields{"schema": schema})
		return nil, ErrInvalidRequest
	}

	trackPath, ok := extractString(doc, "track_path")
	if !ok || trackPath == "" {
		logger.Debug("track_path missing or empty")
		return nil, ErrInvalidRequest
	}

	req := &Request{TrackPath: trackPath}

	if obj, found := extractObject(doc, "spectrum"); found {
		if v, ok := extractInt(obj, "mono_target_rate_hz"); ok {
			req.Spectrum.MonoTargetRateHz = v
		}
		if v, ok := extractInt(obj, "hop_ms"); ok {
			req.Spectrum.HopMS = v
		}
		if v, ok := extractInt(obj, "band_count"); ok {
			req.Spectrum.BandCount = v
		}
		if v, ok := extractInt(obj, "max_frames"); ok {
			req.Spectrum.MaxFrames = v
		}
	}
	req.Spectrum.MonoTargetRateHz = fallbackInt(req.Spectrum.MonoTargetRateHz, doc, "mono_target_rate_hz", DefaultMonoTargetRateHz)
	req.Spectrum.HopMS = fallbackInt(req.Spectrum.HopMS, doc, "hop_ms", DefaultSpectrumHopMS)
	req.Spectrum.BandCount = fallbackInt(req.Spectrum.BandCount, doc, "band_count", DefaultBandCount)
	req.Spectrum.MaxFrames = fallbackInt(req.Spectrum.MaxFrames, doc, "max_frames", DefaultSpectrumFrames)

	if obj, found := extractObject(doc, "beat"); found {
		if v, ok := extractInt(obj, "hop_ms"); ok {
			req.Beat.HopMS = v
			req.Beat.Enabled = true
		}
		if v, ok := extractInt(obj, "max_frames"); ok {
			req.Beat.MaxFrames = v
			req.Beat.Enabled = true
		}
	}
	if req.Beat.HopMS == 0 {
		if v, ok := extractInt(doc, "beat_timeline_hop_ms"); ok {
			req.Beat.HopMS = v
			req.Beat.Enabled = true
		}
	}
	req.Beat.MaxFrames = fallbackInt(req.Beat.MaxFrames, doc, "beat_timeline_max_frames", DefaultBeatFrames)
	if req.Beat.HopMS == 0 {
		req.Beat.HopMS = DefaultBeatHopMS
	}

	if obj, found := extractObject(doc, "waveform_proxy"); found {
		req.Waveform.Enabled = true
		if v, ok := extractInt(obj, "hop_ms"); ok {
			req.Waveform.HopMS = v
		}
		if v, ok := extractInt(obj, "max_frames"); ok {
			req.Waveform.MaxFrames = v
		}
	}
	if req.Waveform.HopMS == 0 {
		if v, ok := extractInt(doc, "waveform_proxy_hop_ms"); ok {
			req.Waveform.HopMS = v
			req.Waveform.Enabled = true
		}
	}
	req.Waveform.MaxFrames = fallbackInt(req.Waveform.MaxFrames, doc, "waveform_proxy_max_frames", DefaultWaveformFrames)
	if req.Waveform.HopMS == 0 {
		req.Waveform.HopMS = DefaultWaveformHopMS
	}

	req.clamp()

	logger.Debug("request parsed", logging.Fields{
		"track_path":     req.TrackPath,
		"band_count":     req.Spectrum.BandCount,
		"beat_enabled":   req.Beat.Enabled,
		"waveform_proxy": req.Waveform.Enabled,
	})
	return req, nil
}

// fallbackInt resolves a numeric field that the nested object left unset:
// top-level legacy flat field first, then the default. The nested objects
// are blanked out first so their keys are not read as legacy fields.
func fallbackInt(current int, doc, legacyKey string, def int) int {
	if current != 0 {
		return current
	}
	for _, key := range []string{"spectrum", "beat", "waveform_proxy"} {
		if obj, found := extractObject(doc, key); found {
			doc = strings.Replace(doc, obj, "{}", 1)
		}
	}
	if v, ok := extractInt(doc, legacyKey); ok {
		return v
	}
	return def
}

func (r *Request) clamp() {
	if r.Spectrum.HopMS < minHopMS {
		r.Spectrum.HopMS = minHopMS
	}
	if r.Spectrum.BandCount < minBandCount {
		r.Spectrum.BandCount = minBandCount
	}
	if r.Spectrum.MaxFrames < minFrames {
		r.Spectrum.MaxFrames = minFrames
	}
	if r.Beat.HopMS < minHopMS {
		r.Beat.HopMS = minHopMS
	}
	if r.Beat.MaxFrames < minFrames {
		r.Beat.MaxFrames = minFrames
	}
	if r.Waveform.HopMS < minHopMS {
		r.Waveform.HopMS = minHopMS
	}
	if r.Waveform.MaxFrames < minFrames {
		r.Waveform.MaxFrames = minFrames
	}
}
