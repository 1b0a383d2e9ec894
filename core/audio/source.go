package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Source is a stream of interleaved float32 PCM samples in [-1, 1].
type Source interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (1=mono, 2=stereo).
	Channels() int
	// ReadSamples fills dst and returns the number of float32 values
	// written (samples, not frames). n == 0 with io.EOF ends the stream.
	ReadSamples(dst []float32) (int, error)
	// Close releases any resources.
	Close() error
}

// Decoder constructs a Source from raw container bytes.
type Decoder interface {
	Decode(r io.Reader) (Source, error)
}

var (
	regMu    sync.RWMutex
	decoders = make(map[string]Decoder)
)

// RegisterDecoder maps a lowercase format key (file extension) to a decoder.
func RegisterDecoder(format string, d Decoder) {
	regMu.Lock()
	defer regMu.Unlock()
	decoders[format] = d
}

// DecoderFor looks up the decoder for a format key.
func DecoderFor(format string) (Decoder, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	d, ok := decoders[strings.ToLower(format)]
	return d, ok
}

func init() {
	RegisterDecoder("wav", WavDecoder{})
	RegisterDecoder("aiff", AiffDecoder{})
	RegisterDecoder("aif", AiffDecoder{})
	RegisterDecoder("mp3", MP3Decoder{})
	RegisterDecoder("ogg", VorbisDecoder{})
	RegisterDecoder("oga", VorbisDecoder{})
}

// SupportedFormat reports whether a decoder is registered for the given
// file extension (with or without the leading dot).
func SupportedFormat(ext string) bool {
	_, ok := DecoderFor(strings.TrimPrefix(strings.ToLower(ext), "."))
	return ok
}

// Clip is a fully decoded audio clip held in memory, interleaved.
type Clip struct {
	Rate     int
	Channels int
	Data     []float32
}

// Frames is the clip length in sample frames.
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Data) / c.Channels
}

// DurationMs is the clip's natural play length in milliseconds.
func (c *Clip) DurationMs() float64 {
	if c.Rate == 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.Rate) * 1000.0
}

// OpenFile opens an audio file and picks the decoder by file extension.
func OpenFile(path string) (Source, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	dec, ok := DecoderFor(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src, err := dec.Decode(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSource{Source: src, f: f}, nil
}

// fileSource ties the underlying file's lifetime to the source.
type fileSource struct {
	Source
	f *os.File
}

func (s *fileSource) Close() error {
	err := s.Source.Close()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadClip decodes an entire audio file into memory.
func ReadClip(path string) (*Clip, error) {
	src, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return ReadAll(src)
}

// ReadAll drains a source into a Clip.
func ReadAll(src Source) (*Clip, error) {
	clip := &Clip{Rate: src.SampleRate(), Channels: src.Channels()}
	buf := make([]float32, 8192)
	for {
		n, err := src.ReadSamples(buf)
		if n > 0 {
			clip.Data = append(clip.Data, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read samples: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return clip, nil
}

// asReadSeeker hands back r unchanged when it already seeks, otherwise
// buffers the remaining data in memory. The go-audio decoders need seeking.
func asReadSeeker(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("buffering audio data: %w", err)
	}
	return bytes.NewReader(data), nil
}
