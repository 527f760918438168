package manifest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gogs/chardet"

	"htrprep/internal/fileutil"
	"htrprep/internal/logging"
	"htrprep/internal/textenc"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decoded is a manifest decoded to text.
type Decoded struct {
	Path     string
	Text     string
	Encoding textenc.Encoding
	// Rewritten is set when the file on disk was replaced by its UTF-8 form.
	Rewritten bool
	// BOM is set when a leading UTF-8 byte order mark was stripped.
	BOM bool
	// Hint is the advisory charset guess; it never influences Encoding.
	Hint           string
	HintConfidence int
}

// Decoder trial-decodes manifests.
type Decoder struct {
	guess  textenc.Guess
	logger *slog.Logger
}

// NewDecoder returns a Decoder trying the candidates of guess in order.
func NewDecoder(guess textenc.Guess, logger *slog.Logger) *Decoder {
	return &Decoder{guess: guess, logger: logging.NewComponentLogger(logger, "manifest")}
}

// Decode decodes raw, stripping a leading UTF-8 BOM. The error is a
// *textenc.ExhaustedError when no candidate accepts the bytes.
func (d *Decoder) Decode(subject string, raw []byte) (string, textenc.Encoding, bool, error) {
	bom := bytes.HasPrefix(raw, utf8BOM)
	if bom {
		raw = raw[len(utf8BOM):]
	}
	text, enc, err := d.guess.DecodeFirst(subject, raw)
	if err != nil {
		return "", textenc.Encoding{}, bom, err
	}
	return text, enc, bom, nil
}

// DecodeFile decodes the manifest at path and, when the accepted encoding is
// not UTF-8, atomically rewrites the file as UTF-8.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*Decoded, error) {
	logger := logging.WithContext(ctx, d.logger)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat manifest: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	text, enc, bom, err := d.Decode(path, raw)
	if err != nil {
		return nil, err
	}
	result := &Decoded{Path: path, Text: text, Encoding: enc, BOM: bom}
	result.Hint, result.HintConfidence = advisoryCharset(raw)

	logger.Info("manifest decoded",
		logging.String(logging.FieldEncoding, enc.Name()),
		logging.Bool("bom", bom),
		logging.String(logging.FieldPath, path),
	)
	if result.Hint != "" && !sameEncoding(result.Hint, enc) {
		logger.Info("charset detector disagrees with accepted encoding",
			logging.String(logging.FieldEncoding, enc.Name()),
			logging.String("hint", result.Hint),
			logging.Int("confidence", result.HintConfidence),
			logging.String(logging.FieldEventType, "charset_hint_mismatch"),
		)
	}

	if !enc.IsUTF8() {
		if err := fileutil.WriteFileAtomic(path, []byte(text), info.Mode().Perm()); err != nil {
			return nil, fmt.Errorf("rewrite manifest as utf-8: %w", err)
		}
		result.Rewritten = true
		logger.Info("manifest rewritten as utf-8",
			logging.String("from", enc.Name()),
			logging.String(logging.FieldPath, path),
		)
	}
	return result, nil
}

func advisoryCharset(raw []byte) (string, int) {
	if len(raw) == 0 {
		return "", 0
	}
	best, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil || best == nil {
		return "", 0
	}
	return best.Charset, best.Confidence
}

func sameEncoding(hint string, enc textenc.Encoding) bool {
	resolved, err := textenc.Lookup(hint)
	if err != nil {
		return false
	}
	return resolved.Name() == enc.Name()
}
