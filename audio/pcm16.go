// Package audio provides PCM16 conversion for the realtime adapter.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// TargetSampleRate is the rate the realtime service expects.
const TargetSampleRate = 24000

const bytesPerSample = 2

// ToPCM16Mono24k transcodes a WAV payload to raw PCM16 mono 24 kHz
// little-endian samples. Only uncompressed 16-bit PCM WAV input is
// supported; anything else is an error so the caller can fall back to
// the original bytes.
func ToPCM16Mono24k(input []byte) ([]byte, error) {
	format, err := parseWAV(input)
	if err != nil {
		return nil, err
	}
	mono := downmixToMono(format.data, format.channels)
	return ResamplePCM16(mono, format.sampleRate, TargetSampleRate)
}

type wavFormat struct {
	channels   int
	sampleRate int
	data       []byte
}

// parseWAV walks the RIFF chunk list for the fmt and data chunks.
func parseWAV(input []byte) (*wavFormat, error) {
	if len(input) < 12 || !bytes.Equal(input[0:4], []byte("RIFF")) || !bytes.Equal(input[8:12], []byte("WAVE")) {
		return nil, fmt.Errorf("input is not a RIFF/WAVE stream")
	}

	var format wavFormat
	offset := 12
	for offset+8 <= len(input) {
		chunkID := string(input[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(input[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(input) {
			return nil, fmt.Errorf("truncated %s chunk", chunkID)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", chunkSize)
			}
			audioFormat := binary.LittleEndian.Uint16(input[body : body+2])
			if audioFormat != 1 {
				return nil, fmt.Errorf("unsupported audio format %d (PCM only)", audioFormat)
			}
			bitsPerSample := binary.LittleEndian.Uint16(input[body+14 : body+16])
			if bitsPerSample != 16 {
				return nil, fmt.Errorf("unsupported bit depth %d (16-bit only)", bitsPerSample)
			}
			format.channels = int(binary.LittleEndian.Uint16(input[body+2 : body+4]))
			format.sampleRate = int(binary.LittleEndian.Uint32(input[body+4 : body+8]))
		case "data":
			format.data = input[body : body+chunkSize]
		}

		// Chunks are word-aligned.
		offset = body + chunkSize + chunkSize%2
	}

	if format.channels == 0 || format.sampleRate == 0 {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	if format.data == nil {
		return nil, fmt.Errorf("missing data chunk")
	}
	return &format, nil
}

// downmixToMono averages interleaved channels into a single channel.
func downmixToMono(data []byte, channels int) []byte {
	if channels <= 1 {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}

	frameSize := channels * bytesPerSample
	numFrames := len(data) / frameSize
	out := make([]byte, numFrames*bytesPerSample)
	for frame := 0; frame < numFrames; frame++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sample := int16(binary.LittleEndian.Uint16(data[frame*frameSize+ch*bytesPerSample:])) //nolint:gosec // PCM16 uses the full int16 range
			sum += int(sample)
		}
		binary.LittleEndian.PutUint16(out[frame*bytesPerSample:], uint16(int16(sum/channels))) //nolint:gosec // PCM16 conversion
	}
	return out
}

// ResamplePCM16 resamples little-endian PCM16 samples between rates using
// linear interpolation.
func ResamplePCM16(input []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: from=%d, to=%d", fromRate, toRate)
	}
	if len(input)%bytesPerSample != 0 {
		return nil, fmt.Errorf("input length %d is not sample-aligned", len(input))
	}
	if fromRate == toRate {
		out := make([]byte, len(input))
		copy(out, input)
		return out, nil
	}

	numInput := len(input) / bytesPerSample
	if numInput == 0 {
		return []byte{}, nil
	}
	numOutput := int(float64(numInput) * float64(toRate) / float64(fromRate))
	if numOutput == 0 {
		return []byte{}, nil
	}

	samples := make([]int16, numInput)
	for i := 0; i < numInput; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(input[i*bytesPerSample:])) //nolint:gosec // PCM16 uses the full int16 range
	}

	out := make([]byte, numOutput*bytesPerSample)
	ratio := float64(fromRate) / float64(toRate)
	for i := 0; i < numOutput; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		var value int16
		if srcIdx >= numInput-1 {
			value = samples[numInput-1]
		} else {
			s0 := float64(samples[srcIdx])
			s1 := float64(samples[srcIdx+1])
			value = int16(s0 + frac*(s1-s0))
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(value)) //nolint:gosec // PCM16 conversion
	}
	return out, nil
}
