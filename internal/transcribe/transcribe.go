// Package transcribe defines the audio transcription contract and a helper
// for fetching voice-note payloads from attachment URLs. Concrete
// transcribers live in modules (e.g., transcriber.whisper).
package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/parleyhq/parley/internal/security"
)

// MaxAudioBytes caps the size of a fetched voice note. Whisper-style APIs
// reject payloads above 25 MB, so there is no point downloading more.
const MaxAudioBytes = 25 * 1024 * 1024

// Transcriber converts spoken audio to text.
type Transcriber interface {
	// Transcribe reads audio and returns the transcript. The filename hint
	// carries the extension some APIs use to detect the container format.
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// FetchAudio downloads an attachment URL for transcription, enforcing
// MaxAudioBytes. A configured filter vets the URL before any request goes
// out; attachment URLs originate from chat platforms, not the operator.
// The caller owns closing nothing; the full payload is buffered and
// returned.
func FetchAudio(ctx context.Context, client *http.Client, filter *security.URLFilter, url string) ([]byte, error) {
	if filter != nil && filter.IsConfigured() {
		if err := filter.Check(url); err != nil {
			return nil, fmt.Errorf("transcribe: %w", err)
		}
	}

	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transcribe: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcribe: fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("transcribe: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	if len(data) > MaxAudioBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, MaxAudioBytes)
	}
	return data, nil
}
