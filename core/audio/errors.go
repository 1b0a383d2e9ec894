package audio

import "errors"

var (
	// ErrUnsupportedFormat means no decoder is registered for the extension.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrNotWavFile means the data is not a valid RIFF/WAVE stream.
	ErrNotWavFile = errors.New("not a valid wav file")
	// ErrNotAiffFile means the data is not a valid AIFF stream.
	ErrNotAiffFile = errors.New("not a valid aiff file")
	// ErrEmptyClip means a decoded clip contains no frames.
	ErrEmptyClip = errors.New("audio clip contains no samples")
)
