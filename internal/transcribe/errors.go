package transcribe

import "errors"

// Sentinel errors for transcription operations.
var (
	// ErrFetchFailed indicates the attachment URL did not return the audio.
	ErrFetchFailed = errors.New("transcribe: audio fetch failed")

	// ErrEmptyAudio indicates the fetched payload contained no data.
	ErrEmptyAudio = errors.New("transcribe: audio payload empty")

	// ErrTooLarge indicates the payload exceeds MaxAudioBytes.
	ErrTooLarge = errors.New("transcribe: audio payload too large")
)
