package transcode

// DownsampleMono decimates the mono buffer to targetRate by integer-stride
// nearest-sample picking. The stereo buffers keep their original rate; only
// the mono buffer, its rate, and the duration change. A non-positive or
// not-lower target rate is a no-op: this path never upsamples and applies
// no low-pass filter, which is acceptable for spectrogram input where the
// bands of interest sit well below the post-decimation Nyquist.
func (a *DecodedAudio) DownsampleMono(targetRate int) {
	if targetRate <= 0 || a.MonoRate <= 0 || len(a.Mono) == 0 {
		return
	}
	if a.MonoRate <= targetRate {
		return
	}
	step := float64(a.MonoRate) / float64(targetRate)
	if step <= 1.0 {
		return
	}

	outCap := int(float64(len(a.Mono))/step) + 2
	out := make([]float32, 0, outCap)
	idx := 0.0
	for int(idx) < len(a.Mono) && len(out) < outCap {
		out = append(out, a.Mono[int(idx)])
		idx += step
	}

	a.Mono = out
	a.MonoRate = targetRate
	a.DurationMS = durationMS(len(out), targetRate)
}
