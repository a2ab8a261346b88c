// Package encoding provides text encoding utilities for OpenTibia file formats.
package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrUnmappable is returned when a byte has no mapping in the legacy codepage.
var ErrUnmappable = errors.New("byte not representable in codepage")

// Windows1252ToUTF8 converts Windows-1252 encoded bytes to a UTF-8 string.
// Unlike a lossy decode it fails instead of substituting U+FFFD.
func Windows1252ToUTF8(data []byte) (string, error) {
	result, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnmappable, err)
	}

	// Every byte decodes to exactly one rune, so a replacement rune can only
	// come from an unmapped input byte.
	if i := bytes.IndexRune(result, utf8.RuneError); i >= 0 {
		return "", fmt.Errorf("%w: 0x%02x at index %d", ErrUnmappable, data[utf8.RuneCount(result[:i])], utf8.RuneCount(result[:i]))
	}
	return string(result), nil
}

// UTF8ToWindows1252 converts a UTF-8 string to Windows-1252 bytes.
// Used by test fixtures that build synthetic files.
func UTF8ToWindows1252(s string) ([]byte, error) {
	result, err := charmap.Windows1252.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnmappable, err)
	}
	return result, nil
}

// TrimNullBytes returns data up to (not including) its first null byte.
func TrimNullBytes(data []byte) []byte {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return data[:i]
	}
	return data
}
