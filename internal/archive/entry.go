package archive

import (
	"io/fs"
	"time"
)

// Kind classifies an archive entry.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	// KindOther covers links, devices and FIFOs, which are never materialized.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "other"
	}
}

// Entry is a raw archive entry as read from the container headers.
type Entry struct {
	// Name holds the undecoded name bytes.
	Name    []byte
	Kind    Kind
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
	// UTF8Flag is set for zip entries with general purpose bit 11.
	UTF8Flag bool
}

// ExtractedFile describes one materialized path under the extraction root.
type ExtractedFile struct {
	// Rel is the slash-separated path relative to the extraction root.
	Rel string
	// Path is the absolute filesystem path.
	Path string
	// Dir is the absolute owning directory.
	Dir  string
	Kind Kind
	Size int64
	// Digest is the hex BLAKE3 digest of the content; empty for directories.
	Digest string
}
