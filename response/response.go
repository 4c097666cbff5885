// Package response serializes the analysis artifact as a single JSON
// object with stable field order; callers parse it with simple tooling.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/tz-player/spectrum-helper/analysis"
)

// Schema is the response schema tag; clients pin on it.
const Schema = "tz_player.native_spectrum_helper_response.v1"

// HelperVersion identifies this helper implementation.
const HelperVersion = "go-ffmpeg-v2"

// millis formats a float with three decimal places, the fixed timing
// precision of the wire contract.
type millis float64

func (m millis) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(m), 'f', 3, 64), nil
}

// Timings carries the per-stage wall-clock costs in milliseconds.
type Timings struct {
	DecodeMS        float64
	SpectrumMS      float64
	BeatMS          float64
	WaveformProxyMS float64
	TotalMS         float64
}

type timingsJSON struct {
	DecodeMS        millis `json:"decode_ms"`
	SpectrumMS      millis `json:"spectrum_ms"`
	BeatMS          millis `json:"beat_ms"`
	WaveformProxyMS millis `json:"waveform_proxy_ms"`
	TotalMS         millis `json:"total_ms"`
}

// spectrumFrames encodes frames as [pos_ms,[b0,...,bN]] tuples.
type spectrumFrames []analysis.SpectrumFrame

func (f spectrumFrames) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('[')
	for i, fr := range f {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "[%d,[", fr.PosMS)
		for j, v := range fr.Bands {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(int(v)))
		}
		b.WriteString("]]")
	}
	b.WriteByte(']')
	return b.Bytes(), nil
}

// beatFrames encodes frames as [pos_ms,strength_u8,bool] tuples.
type beatFrames []analysis.BeatFrame

func (f beatFrames) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('[')
	for i, fr := range f {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "[%d,%d,%t]", fr.PosMS, fr.Strength, fr.IsBeat)
	}
	b.WriteByte(']')
	return b.Bytes(), nil
}

// waveformFrames encodes frames as [pos_ms,lmin,lmax,rmin,rmax] tuples.
type waveformFrames []analysis.WaveformFrame

func (f waveformFrames) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('[')
	for i, fr := range f {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "[%d,%d,%d,%d,%d]", fr.PosMS, fr.LMin, fr.LMax, fr.RMin, fr.RMax)
	}
	b.WriteByte(']')
	return b.Bytes(), nil
}

type beatBlock struct {
	DurationMS int        `json:"duration_ms"`
	BPM        millis     `json:"bpm"`
	Frames     beatFrames `json:"frames"`
}

type waveformBlock struct {
	DurationMS int            `json:"duration_ms"`
	Frames     waveformFrames `json:"frames"`
}

// Response is the complete analysis artifact. Struct order fixes the
// emitted field order.
type Response struct {
	Schema        string         `json:"schema"`
	HelperVersion string         `json:"helper_version"`
	DurationMS    int            `json:"duration_ms"`
	Frames        spectrumFrames `json:"frames"`
	Beat          *beatBlock     `json:"beat,omitempty"`
	WaveformProxy *waveformBlock `json:"waveform_proxy,omitempty"`
	Timings       timingsJSON    `json:"timings"`
}

// Build assembles the response. The beat and waveform blocks are present
// only when the corresponding pass ran and produced at least one frame.
func Build(spectrum *analysis.SpectrumResult, beat *analysis.BeatResult, waveform *analysis.WaveformResult, timings Timings) *Response {
	resp := &Response{
		Schema:        Schema,
		HelperVersion: HelperVersion,
		DurationMS:    spectrum.DurationMS,
		Frames:        spectrumFrames(spectrum.Frames),
		Timings: timingsJSON{
			DecodeMS:        millis(timings.DecodeMS),
			SpectrumMS:      millis(timings.SpectrumMS),
			BeatMS:          millis(timings.BeatMS),
			WaveformProxyMS: millis(timings.WaveformProxyMS),
			TotalMS:         millis(timings.TotalMS),
		},
	}
	if beat != nil && len(beat.Frames) > 0 {
		resp.Beat = &beatBlock{
			DurationMS: beat.DurationMS,
			BPM:        millis(beat.BPM),
			Frames:     beatFrames(beat.Frames),
		}
	}
	if waveform != nil && len(waveform.Frames) > 0 {
		resp.WaveformProxy = &waveformBlock{
			DurationMS: waveform.DurationMS,
			Frames:     waveformFrames(waveform.Frames),
		}
	}
	return resp
}

// Write emits the response as exactly one JSON object.
func (r *Response) Write(w io.Writer) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
