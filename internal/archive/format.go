package archive

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format identifies an archive container and its compression.
type Format string

const (
	FormatTar     Format = "tar"
	FormatTarGzip Format = "tar.gz"
	FormatTarZstd Format = "tar.zst"
	FormatTarLZ4  Format = "tar.lz4"
	FormatTarBz2  Format = "tar.bz2"
	FormatZip     Format = "zip"
	// FormatUnknown carries no recognizable magic; it is read as a pre-POSIX tar.
	FormatUnknown Format = "unknown"
)

const sniffLen = 512

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4   = []byte{0x04, 0x22, 0x4d, 0x18}
	magicBzip2 = []byte("BZh")
	magicZip   = []byte("PK\x03\x04")
	magicZipE  = []byte("PK\x05\x06")
	magicUstar = []byte("ustar")
)

// Sniff classifies the leading bytes of an archive.
func Sniff(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return FormatTarGzip
	case bytes.HasPrefix(head, magicZstd):
		return FormatTarZstd
	case bytes.HasPrefix(head, magicLZ4):
		return FormatTarLZ4
	case bytes.HasPrefix(head, magicBzip2):
		return FormatTarBz2
	case bytes.HasPrefix(head, magicZip), bytes.HasPrefix(head, magicZipE):
		return FormatZip
	case len(head) >= 262 && bytes.Equal(head[257:262], magicUstar):
		return FormatTar
	default:
		return FormatUnknown
	}
}

// SniffFile reads the head of path and classifies it.
func SniffFile(path string) (Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return Sniff(head[:n]), nil
}

// decompress wraps r according to format. The returned closer releases
// decoder resources and never closes r.
func decompress(r io.Reader, format Format) (io.Reader, func(), error) {
	buffered := bufio.NewReader(r)
	switch format {
	case FormatTarGzip:
		gr, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return gr, func() { _ = gr.Close() }, nil
	case FormatTarZstd:
		zr, err := zstd.NewReader(buffered)
		if err != nil {
			return nil, nil, fmt.Errorf("open zstd stream: %w", err)
		}
		return zr, zr.Close, nil
	case FormatTarLZ4:
		return lz4.NewReader(buffered), func() {}, nil
	case FormatTarBz2:
		return bzip2.NewReader(buffered), func() {}, nil
	default:
		return buffered, func() {}, nil
	}
}
