package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxMessageSize caps inbound payload bytes when no limit is
// configured.
const DefaultMaxMessageSize = 1 << 20 // 1 MiB

// DefaultMaxJSONDepth caps JSON nesting when no limit is configured.
const DefaultMaxJSONDepth = 32

// Validation errors.
var (
	ErrInvalidJSON     = errors.New("invalid JSON")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
)

// ValidateMessageSize checks that data does not exceed limit bytes.
// A limit <= 0 means DefaultMaxMessageSize.
func ValidateMessageSize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	if n := len(data); n > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, n, limit)
	}
	return nil
}

// ValidateJSONDepth checks that the JSON in data nests no deeper than
// limit levels. Deeply nested payloads are a cheap way to exhaust the
// stack of anything that walks them. A limit <= 0 means
// DefaultMaxJSONDepth; empty data passes.
func ValidateJSONDepth(data []byte, limit int) error {
	if len(data) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	for depth := 0; ; {
		tok, err := dec.Token()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		switch tok {
		case json.Delim('}'), json.Delim(']'):
			depth--
		case json.Delim('{'), json.Delim('['):
			if depth++; depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		}
	}
}
