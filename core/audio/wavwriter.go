package audio

import (
	"encoding/binary"
	"io"
)

// EncodeWAV16 renders interleaved float32 samples as a complete 16-bit
// PCM WAV file in memory. Values outside [-1, 1] are clamped. The frame
// count is known up front, so the header is written in a single pass
// with no back-patching.
func EncodeWAV16(data []float32, sampleRate, channels int) []byte {
	dataSize := len(data) * 2

	out := make([]byte, 0, 44+dataSize)
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(36+dataSize))
	out = append(out, "WAVE"...)

	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, 1) // PCM
	out = binary.LittleEndian.AppendUint16(out, uint16(channels))
	out = binary.LittleEndian.AppendUint32(out, uint32(sampleRate))
	out = binary.LittleEndian.AppendUint32(out, uint32(sampleRate*channels*2))
	out = binary.LittleEndian.AppendUint16(out, uint16(channels*2))
	out = binary.LittleEndian.AppendUint16(out, 16)

	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(dataSize))
	for _, v := range data {
		out = binary.LittleEndian.AppendUint16(out, uint16(floatToInt16(v)))
	}
	return out
}

// WriteWAV16 writes the encoded WAV file to w.
func WriteWAV16(w io.Writer, data []float32, sampleRate, channels int) error {
	_, err := w.Write(EncodeWAV16(data, sampleRate, channels))
	return err
}

func floatToInt16(v float32) int16 {
	s := v * 32767.0
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return int16(s)
}
