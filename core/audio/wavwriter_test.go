package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeWAV16Header(t *testing.T) {
	t.Parallel()

	data := []float32{0, 0.5, -0.5, 1}
	out := EncodeWAV16(data, 44100, 2)

	if len(out) != 44+len(data)*2 {
		t.Fatalf("encoded size = %d, want header plus %d sample bytes", len(out), len(data)*2)
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if rate := binary.LittleEndian.Uint32(out[24:28]); rate != 44100 {
		t.Fatalf("header sample rate = %d, want 44100", rate)
	}
	if ch := binary.LittleEndian.Uint16(out[22:24]); ch != 2 {
		t.Fatalf("header channels = %d, want 2", ch)
	}
	if bits := binary.LittleEndian.Uint16(out[34:36]); bits != 16 {
		t.Fatalf("header bit depth = %d, want 16", bits)
	}
	if size := binary.LittleEndian.Uint32(out[40:44]); size != uint32(len(data)*2) {
		t.Fatalf("data chunk size = %d, want %d", size, len(data)*2)
	}
}

func TestEncodeWAV16RoundTrip(t *testing.T) {
	t.Parallel()

	data := []float32{0, 0.25, -0.25, 0.5, -0.5, 0.99, -0.99, 0}
	out := EncodeWAV16(data, 8000, 2)

	src, err := WavDecoder{}.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decoding own output: %v", err)
	}
	defer src.Close()
	if src.SampleRate() != 8000 || src.Channels() != 2 {
		t.Fatalf("round trip format: rate=%d channels=%d", src.SampleRate(), src.Channels())
	}

	clip, err := ReadAll(src)
	if err != nil {
		t.Fatalf("reading round trip: %v", err)
	}
	if len(clip.Data) != len(data) {
		t.Fatalf("round trip length = %d, want %d", len(clip.Data), len(data))
	}
	for i := range data {
		if math.Abs(float64(clip.Data[i]-data[i])) > 1.0/32768+1e-6 {
			t.Fatalf("sample %d = %f, want %f within one quantization step", i, clip.Data[i], data[i])
		}
	}
}

func TestFloatToInt16Clamps(t *testing.T) {
	t.Parallel()

	if got := floatToInt16(1.5); got != 32767 {
		t.Fatalf("overdriven sample = %d, want clamp to 32767", got)
	}
	if got := floatToInt16(-1.5); got != -32768 {
		t.Fatalf("overdriven sample = %d, want clamp to -32768", got)
	}
	if got := floatToInt16(0); got != 0 {
		t.Fatalf("silence = %d, want 0", got)
	}
}

func TestWriteWAV16(t *testing.T) {
	t.Parallel()

	data := []float32{0.1, -0.1}
	var buf bytes.Buffer
	if err := WriteWAV16(&buf, data, 8000, 1); err != nil {
		t.Fatalf("WriteWAV16 failed: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), EncodeWAV16(data, 8000, 1)) {
		t.Fatal("WriteWAV16 output differs from EncodeWAV16")
	}
}
