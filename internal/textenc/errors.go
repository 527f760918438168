package textenc

import (
	"fmt"
	"strings"
)

// DecodeError reports the first byte an encoding could not decode.
type DecodeError struct {
	Encoding string
	Offset   int
	Byte     byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: cannot decode byte 0x%02x at offset %d", e.Encoding, e.Byte, e.Offset)
}

// Attempt records one failed candidate.
type Attempt struct {
	Encoding string
	Err      error
}

// ExhaustedError is returned when every candidate failed for a subject.
type ExhaustedError struct {
	Subject  string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%v)", attempt.Encoding, attempt.Err))
	}
	return fmt.Sprintf("%s: no candidate encoding succeeded: %s", e.Subject, strings.Join(parts, "; "))
}

// Encodings lists the attempted encoding names in order.
func (e *ExhaustedError) Encodings() []string {
	names := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		names = append(names, attempt.Encoding)
	}
	return names
}
