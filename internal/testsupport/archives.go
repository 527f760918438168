package testsupport

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ArchiveEntry describes one entry of a generated archive. Name holds raw
// bytes in whatever encoding the test needs; a trailing slash marks a directory.
type ArchiveEntry struct {
	Name string
	Body string
}

// Compression selects the stream wrapper for WriteTar.
type Compression string

const (
	CompressNone Compression = ""
	CompressGzip Compression = "gz"
	CompressZstd Compression = "zst"
	CompressLZ4  Compression = "lz4"
)

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// TarBytes builds a tar stream holding entries, compressed as requested.
func TarBytes(t testing.TB, compression Compression, entries ...ArchiveEntry) []byte {
	t.Helper()

	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.Name,
			ModTime: fixedTime,
			Format:  tar.FormatGNU,
		}
		if strings.HasSuffix(e.Name, "/") {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Mode = 0o644
			hdr.Size = int64(len(e.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write tar header %q: %v", e.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.WriteString(tw, e.Body); err != nil {
				t.Fatalf("write tar body %q: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}

	var out bytes.Buffer
	var w io.WriteCloser
	switch compression {
	case CompressNone:
		return raw.Bytes()
	case CompressGzip:
		w = gzip.NewWriter(&out)
	case CompressZstd:
		zw, err := zstd.NewWriter(&out)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		w = zw
	case CompressLZ4:
		w = lz4.NewWriter(&out)
	default:
		t.Fatalf("unsupported compression %q", compression)
	}
	if _, err := w.Write(raw.Bytes()); err != nil {
		t.Fatalf("compress tar: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close compressor: %v", err)
	}
	return out.Bytes()
}

// WriteTar writes a generated tar archive to path and returns path.
func WriteTar(t testing.TB, path string, compression Compression, entries ...ArchiveEntry) string {
	t.Helper()
	writeBytes(t, path, TarBytes(t, compression, entries...))
	return path
}

// WriteZip writes a zip archive to path. Names that are valid UTF-8 and not
// pure ASCII get the UTF-8 flag; other names are stored without it.
func WriteZip(t testing.TB, path string, entries ...ArchiveEntry) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: fixedTime}
		if strings.HasSuffix(e.Name, "/") {
			hdr.Method = zip.Store
			hdr.SetMode(0o755 | os.ModeDir)
		} else {
			hdr.SetMode(0o644)
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("zip header %q: %v", e.Name, err)
		}
		if !strings.HasSuffix(e.Name, "/") {
			if _, err := io.WriteString(w, e.Body); err != nil {
				t.Fatalf("zip body %q: %v", e.Name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	writeBytes(t, path, buf.Bytes())
	return path
}

func writeBytes(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
