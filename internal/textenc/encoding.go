package textenc

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// UTF8Name is the canonical name of UTF-8.
const UTF8Name = "utf-8"

// aliases maps spellings common in scripts and manifests to IANA names.
var aliases = map[string]string{
	"utf8":       "utf-8",
	"cp1250":     "windows-1250",
	"cp1251":     "windows-1251",
	"cp1252":     "windows-1252",
	"cp1253":     "windows-1253",
	"cp1254":     "windows-1254",
	"cp1257":     "windows-1257",
	"cp437":      "ibm437",
	"cp850":      "ibm850",
	"cp852":      "ibm852",
	"cp866":      "ibm866",
	"latin-2":    "iso-8859-2",
	"iso8859-2":  "iso-8859-2",
	"iso8859_2":  "iso-8859-2",
	"iso-8859_2": "iso-8859-2",
}

// Encoding is a resolved candidate: UTF-8 or a single-byte code page.
type Encoding struct {
	name string
	cm   *charmap.Charmap
	// noC1 marks Windows code pages, whose tables never map to C1 controls;
	// such a result means the byte is undefined in the vendor table.
	noC1 bool
	// c1 marks ISO-8859 pages, where 0x80-0x9F are the C1 controls.
	c1 bool
}

// UTF8 returns the canonical UTF-8 encoding.
func UTF8() Encoding {
	return Encoding{name: UTF8Name}
}

// Lookup resolves name to an Encoding. Multi-byte legacy encodings are rejected.
func Lookup(name string) (Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return Encoding{}, fmt.Errorf("empty encoding name")
	}
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	if key == UTF8Name {
		return UTF8(), nil
	}
	enc, err := ianaindex.IANA.Encoding(key)
	if err != nil {
		return Encoding{}, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return Encoding{}, fmt.Errorf("encoding %q is not supported", name)
	}
	canonical := canonicalName(enc, key)
	if canonical == UTF8Name {
		return UTF8(), nil
	}
	cm, ok := enc.(*charmap.Charmap)
	if !ok {
		return Encoding{}, fmt.Errorf("encoding %q is not a single-byte code page", name)
	}
	return Encoding{
		name: canonical,
		cm:   cm,
		noC1: strings.HasPrefix(canonical, "windows-"),
		c1:   strings.HasPrefix(canonical, "iso-8859-"),
	}, nil
}

// canonicalName prefers the MIME spelling (iso-8859-2) over the IANA
// primary name (iso_8859-2:1987).
func canonicalName(enc encoding.Encoding, fallback string) string {
	for _, index := range []*ianaindex.Index{ianaindex.MIME, ianaindex.IANA} {
		if name, err := index.Name(enc); err == nil && name != "" {
			return strings.ToLower(name)
		}
	}
	return fallback
}

// Name returns the canonical lower-case name, in its MIME spelling when one exists.
func (e Encoding) Name() string {
	return e.name
}

// String implements fmt.Stringer.
func (e Encoding) String() string {
	return e.name
}

// IsUTF8 reports whether e is UTF-8.
func (e Encoding) IsUTF8() bool {
	return e.cm == nil
}

// Decode converts raw to a string, failing on the first byte sequence e does not define.
func (e Encoding) Decode(raw []byte) (string, error) {
	if e.IsUTF8() {
		if utf8.Valid(raw) {
			return string(raw), nil
		}
		offset := 0
		for offset < len(raw) {
			r, size := utf8.DecodeRune(raw[offset:])
			if r == utf8.RuneError && size <= 1 {
				break
			}
			offset += size
		}
		return "", &DecodeError{Encoding: e.name, Offset: offset, Byte: raw[offset]}
	}
	var b strings.Builder
	b.Grow(len(raw) + len(raw)/2)
	for i, c := range raw {
		if e.c1 && c >= 0x80 && c <= 0x9f {
			b.WriteRune(rune(c))
			continue
		}
		r := e.cm.DecodeByte(c)
		if r == utf8.RuneError || (e.noC1 && r >= 0x80 && r <= 0x9f) {
			return "", &DecodeError{Encoding: e.name, Offset: i, Byte: c}
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

// DecodeString decodes a string holding raw bytes, as produced by archive readers.
func (e Encoding) DecodeString(raw string) (string, error) {
	return e.Decode([]byte(raw))
}
