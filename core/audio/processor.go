package audio

import "context"

// Transcoder converts imported audio into a format the decoder registry can
// read. Sources arriving in containers without a registered decoder (m4a,
// flac, ...) are rewritten to PCM WAV before they enter the track library.
type Transcoder interface {
	TranscodeToWAV(ctx context.Context, inputFile, outputFile string, sampleRate int) error
	DetectCodec(ctx context.Context, inputFile string) (string, error)
}
