package transcode

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Native WAV fast path: a minimal RIFF chunk walker that accepts only
// uncompressed 16-bit PCM with one or two channels. Anything else is
// rejected so the caller can decide whether to delegate to ffmpeg.

const wavHeaderMin = 44

func decodeWAVFile(path string) (*DecodedAudio, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(buf) <= wavHeaderMin {
		return nil, fmt.Errorf("file too small for a wav container: %d bytes", len(buf))
	}
	if string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		return nil, fmt.Errorf("missing RIFF/WAVE magic")
	}

	var (
		audioFormat   uint16
		channels      uint16
		sampleRate    uint32
		bitsPerSample uint16
		data          []byte
	)

	// Chunks are {id[4], size_le_u32, payload, pad_to_even}.
	off := 12
	for off+8 <= len(buf) {
		id := string(buf[off : off+4])
		chunkSize := int(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		payload := off + 8
		next := payload + chunkSize + (chunkSize & 1)
		if next > len(buf) {
			break
		}
		switch {
		case id == "fmt " && chunkSize >= 16:
			audioFormat = binary.LittleEndian.Uint16(buf[payload:])
			channels = binary.LittleEndian.Uint16(buf[payload+2:])
			sampleRate = binary.LittleEndian.Uint32(buf[payload+4:])
			bitsPerSample = binary.LittleEndian.Uint16(buf[payload+14:])
		case id == "data":
			data = buf[payload : payload+chunkSize]
		}
		off = next
	}

	if data == nil || sampleRate == 0 || channels == 0 {
		return nil, fmt.Errorf("missing fmt or data chunk")
	}
	if audioFormat != 1 || bitsPerSample != 16 || (channels != 1 && channels != 2) {
		return nil, fmt.Errorf("unsupported wav encoding: format=%d bits=%d channels=%d",
			audioFormat, bitsPerSample, channels)
	}

	bytesPerFrame := int(channels) * 2
	if len(data) < bytesPerFrame {
		return nil, fmt.Errorf("truncated data chunk: %d bytes", len(data))
	}

	left, right, mono := decodeS16Frames(data, int(channels))
	rate := int(sampleRate)

	return &DecodedAudio{
		MonoRate:   rate,
		Mono:       mono,
		StereoRate: rate,
		Left:       left,
		Right:      right,
		DurationMS: durationMS(len(mono), rate),
	}, nil
}
