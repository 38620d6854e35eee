package composer

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultHost is the WhatsApp click-to-chat host.
const DefaultHost = "wa.me"

// MaxMessageLength is the practical message limit of the platform, in
// characters.
const MaxMessageLength = 4096

var (
	// ErrInvalidUTF8 means the message cannot be percent-encoded as UTF-8.
	ErrInvalidUTF8 = errors.New("message is not valid UTF-8")
	// ErrNoDestination means the destination id holds no digits.
	ErrNoDestination = errors.New("destination has no digits")
)

// EncodingError reports that a deep link could not be built. It is the only
// failure a customer ever sees during checkout.
type EncodingError struct {
	Destination string
	Err         error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("building deep link for %q: %v", e.Destination, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// DigitsOnly strips every non-digit character from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// BuildDeepLink builds https://wa.me/<digits>?text=<encoded message>.
func BuildDeepLink(destinationID, message string) (string, error) {
	return buildDeepLink(DefaultHost, destinationID, message)
}

func buildDeepLink(host, destinationID, message string) (string, error) {
	digits := DigitsOnly(destinationID)
	if digits == "" {
		return "", &EncodingError{Destination: destinationID, Err: ErrNoDestination}
	}
	encoded, err := EncodeURIComponent(message)
	if err != nil {
		return "", &EncodingError{Destination: destinationID, Err: err}
	}
	return "https://" + host + "/" + digits + "?text=" + encoded, nil
}

// shouldEscape reports whether c is outside the URI component unreserved set
// A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func shouldEscape(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return false
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return false
	}
	return true
}

// EncodeURIComponent percent-encodes s the way browsers encode a URI
// component: spaces become %20, never '+'. Invalid UTF-8 is rejected, as a
// lone surrogate would be in a browser.
func EncodeURIComponent(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", ErrInvalidUTF8
	}
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldEscape(c) {
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0F])
		} else {
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
