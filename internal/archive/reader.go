package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// entryReader walks the entries of one container in archive order.
type entryReader interface {
	// Next returns the next entry header or io.EOF.
	Next() (Entry, error)
	// Content returns the body of the entry last returned by Next.
	Content() (io.Reader, error)
	Close() error
}

func openArchive(path string) (entryReader, Format, error) {
	format, err := SniffFile(path)
	if err != nil {
		return nil, "", err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	if format == FormatZip {
		info, err := file.Stat()
		if err != nil {
			_ = file.Close()
			return nil, "", err
		}
		zr, err := zip.NewReader(file, info.Size())
		if err != nil {
			_ = file.Close()
			return nil, "", &StructuralError{Archive: path, Err: fmt.Errorf("read zip directory: %w", err)}
		}
		return &zipEntries{file: file, zr: zr, index: -1}, format, nil
	}
	stream, release, err := decompress(file, format)
	if err != nil {
		_ = file.Close()
		return nil, "", &StructuralError{Archive: path, Err: err}
	}
	return &tarEntries{file: file, release: release, tr: tar.NewReader(stream)}, format, nil
}

type tarEntries struct {
	file    *os.File
	release func()
	tr      *tar.Reader
}

func (t *tarEntries) Next() (Entry, error) {
	hdr, err := t.tr.Next()
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		Name:    []byte(hdr.Name),
		Size:    hdr.Size,
		Mode:    fs.FileMode(hdr.Mode).Perm(),
		ModTime: hdr.ModTime,
	}
	switch hdr.Typeflag {
	case tar.TypeReg, tar.TypeCont:
		entry.Kind = KindFile
	case tar.TypeDir:
		entry.Kind = KindDir
	default:
		entry.Kind = KindOther
	}
	return entry, nil
}

func (t *tarEntries) Content() (io.Reader, error) {
	return t.tr, nil
}

func (t *tarEntries) Close() error {
	t.release()
	return t.file.Close()
}

type zipEntries struct {
	file    *os.File
	zr      *zip.Reader
	index   int
	current io.ReadCloser
}

func (z *zipEntries) Next() (Entry, error) {
	z.closeCurrent()
	z.index++
	if z.index >= len(z.zr.File) {
		return Entry{}, io.EOF
	}
	f := z.zr.File[z.index]
	entry := Entry{
		Name:     []byte(f.Name),
		Size:     int64(f.UncompressedSize64),
		Mode:     f.Mode().Perm(),
		ModTime:  f.Modified,
		UTF8Flag: f.Flags&0x800 != 0,
	}
	mode := f.Mode()
	switch {
	case strings.HasSuffix(f.Name, "/") || mode.IsDir():
		entry.Kind = KindDir
	case mode.IsRegular():
		entry.Kind = KindFile
	default:
		entry.Kind = KindOther
	}
	return entry, nil
}

func (z *zipEntries) Content() (io.Reader, error) {
	if z.index < 0 || z.index >= len(z.zr.File) {
		return nil, errors.New("no current zip entry")
	}
	z.closeCurrent()
	rc, err := z.zr.File[z.index].Open()
	if err != nil {
		return nil, err
	}
	z.current = rc
	return rc, nil
}

func (z *zipEntries) closeCurrent() {
	if z.current != nil {
		_ = z.current.Close()
		z.current = nil
	}
}

func (z *zipEntries) Close() error {
	z.closeCurrent()
	return z.file.Close()
}

// walk calls fn for each entry of the archive at path.
func walk(path string, fn func(Entry, entryReader) error) (Format, error) {
	r, format, err := openArchive(path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	for {
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			return format, nil
		}
		if err != nil {
			return format, &StructuralError{Archive: path, Err: fmt.Errorf("read entry header: %w", err)}
		}
		if err := fn(entry, r); err != nil {
			return format, err
		}
	}
}
