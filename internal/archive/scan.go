package archive

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"htrprep/internal/fileutil"
)

// Scan lists an existing extraction tree as ExtractedFiles, sorted by Rel.
// Digests are computed only when withDigest is set. Symlinks and other
// special files are skipped since extraction never creates them.
func Scan(ctx context.Context, root string, withDigest bool) ([]ExtractedFile, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	var files []ExtractedFile
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		f := ExtractedFile{Rel: filepath.ToSlash(rel), Path: p, Dir: filepath.Dir(p)}
		switch {
		case d.IsDir():
			f.Kind = KindDir
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			f.Kind = KindFile
			f.Size = info.Size()
			if withDigest {
				if f.Digest, err = fileutil.DigestFile(p); err != nil {
					return err
				}
			}
		default:
			return nil
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}
