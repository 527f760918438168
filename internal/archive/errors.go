package archive

import (
	"fmt"
	"strconv"
)

// StructuralError reports a corrupt container or an unsafe entry path. It does
// not depend on the name encoding, so it is never retried.
type StructuralError struct {
	Archive string
	Entry   string
	Err     error
}

func (e *StructuralError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("archive %s: %v", e.Archive, e.Err)
	}
	return fmt.Sprintf("archive %s: entry %s: %v", e.Archive, strconv.Quote(e.Entry), e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// NameError reports an entry name that the candidate encoding rejected.
type NameError struct {
	Archive string
	Index   int
	Raw     []byte
	Err     error
}

func (e *NameError) Error() string {
	return fmt.Sprintf("archive %s: entry %d name %s: %v", e.Archive, e.Index, EscapeName(e.Raw), e.Err)
}

func (e *NameError) Unwrap() error { return e.Err }

// EscapeName renders raw name bytes printable, with invalid UTF-8 as \x escapes.
func EscapeName(raw []byte) string {
	return strconv.Quote(string(raw))
}
