package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Annotation marker syntax: the model wraps a span of the passage as
// [surface|reading]. Stripping every marker must reproduce the original
// passage exactly; downstream consumers address annotations by byte offset
// into the plain text, so a single divergent character invalidates every
// offset after it.
const (
	markerOpen  = '['
	markerSep   = '|'
	markerClose = ']'
)

// Annotation round-trip errors.
var (
	// ErrAnnotationMalformed is returned when the marker syntax itself is
	// broken (unterminated marker, missing reading, nested markers).
	ErrAnnotationMalformed = errors.New("malformed annotation markup")

	// ErrAnnotationMismatch is returned when the de-annotated text differs
	// from the original passage. This is a hard integrity failure; the
	// pipeline never attempts to guess which character diverged.
	ErrAnnotationMismatch = errors.New("annotated text does not reproduce the original passage")
)

// Span is one parsed annotation: a surface span of the plain text and its
// reading. Start and End are byte offsets into the plain (stripped) text.
type Span struct {
	Start   int
	End     int
	Surface string
	Reading string
}

// ParseAnnotated strips [surface|reading] markers from annotated text,
// returning the plain text and the parsed spans in order of appearance.
func ParseAnnotated(annotated string) (string, []Span, error) {
	var plain strings.Builder
	var spans []Span

	i := 0
	for i < len(annotated) {
		c := annotated[i]

		switch c {
		case markerOpen:
			surface, reading, next, err := parseMarker(annotated, i)
			if err != nil {
				return "", nil, err
			}
			spans = append(spans, Span{
				Start:   plain.Len(),
				End:     plain.Len() + len(surface),
				Surface: surface,
				Reading: reading,
			})
			plain.WriteString(surface)
			i = next

		case markerClose:
			return "", nil, fmt.Errorf("%w: unmatched %q at byte %d", ErrAnnotationMalformed, string(markerClose), i)

		default:
			plain.WriteByte(c)
			i++
		}
	}

	return plain.String(), spans, nil
}

// parseMarker parses one [surface|reading] marker starting at open. It
// returns the surface, the reading, and the index just past the closing
// bracket.
func parseMarker(s string, open int) (string, string, int, error) {
	sep := -1
	for j := open + 1; j < len(s); j++ {
		switch s[j] {
		case markerOpen:
			return "", "", 0, fmt.Errorf("%w: nested %q at byte %d", ErrAnnotationMalformed, string(markerOpen), j)
		case markerSep:
			if sep >= 0 {
				return "", "", 0, fmt.Errorf("%w: second %q inside marker at byte %d", ErrAnnotationMalformed, string(markerSep), j)
			}
			sep = j
		case markerClose:
			if sep < 0 {
				return "", "", 0, fmt.Errorf("%w: marker at byte %d has no reading", ErrAnnotationMalformed, open)
			}
			surface := s[open+1 : sep]
			reading := s[sep+1 : j]
			if surface == "" || reading == "" {
				return "", "", 0, fmt.Errorf("%w: empty surface or reading at byte %d", ErrAnnotationMalformed, open)
			}
			return surface, reading, j + 1, nil
		}
	}
	return "", "", 0, fmt.Errorf("%w: unterminated marker at byte %d", ErrAnnotationMalformed, open)
}

// ValidateRoundTrip verifies, byte-for-byte, that the annotated text
// reproduces the original passage once markers are stripped. On success it
// returns the parsed spans; on any divergence it fails with the offset of the
// first differing byte.
func ValidateRoundTrip(original, annotated string) ([]Span, error) {
	plain, spans, err := ParseAnnotated(annotated)
	if err != nil {
		return nil, err
	}

	if plain == original {
		return spans, nil
	}

	limit := len(plain)
	if len(original) < limit {
		limit = len(original)
	}
	for i := 0; i < limit; i++ {
		if plain[i] != original[i] {
			return nil, fmt.Errorf("%w: first divergence at byte %d", ErrAnnotationMismatch, i)
		}
	}
	return nil, fmt.Errorf("%w: lengths differ (original %d bytes, de-annotated %d bytes)",
		ErrAnnotationMismatch, len(original), len(plain))
}
