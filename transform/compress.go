package transform

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/kbukum/streamkit/errors"
)

// Codec names a compression format.
type Codec string

const (
	Gzip Codec = "gzip"
	Zstd Codec = "zstd"
	LZ4  Codec = "lz4"
)

// DefaultLevel selects each codec's default compression level.
const DefaultLevel = 0

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// Compress returns a stage replacing bytes with their compressed form.
// Levels run 1-9 for gzip and lz4 and 1-22 for zstd; DefaultLevel picks
// the codec default.
func Compress(codec Codec, level int) (Stage, error) {
	maxLevel := 9
	if codec == Zstd {
		maxLevel = 22
	}
	if level < 0 || level > maxLevel {
		return nil, errors.InvalidArgument("level", fmt.Sprintf("%s level must be between 0 and %d", codec, maxLevel))
	}

	name := string(codec) + "-compress"
	switch codec {
	case Gzip:
		if level == DefaultLevel {
			level = gzip.DefaultCompression
		}
		return StageFunc(name, func(_ context.Context, dst io.Writer, src io.Reader) error {
			zw, err := gzip.NewWriterLevel(dst, level)
			if err != nil {
				return err
			}
			return copyAndClose(zw, src)
		}), nil

	case Zstd:
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if level != DefaultLevel {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		return StageFunc(name, func(_ context.Context, dst io.Writer, src io.Reader) error {
			zw, err := zstd.NewWriter(dst, opts...)
			if err != nil {
				return err
			}
			return copyAndClose(zw, src)
		}), nil

	case LZ4:
		lvl := lz4Levels[level]
		return StageFunc(name, func(_ context.Context, dst io.Writer, src io.Reader) error {
			zw := lz4.NewWriter(dst)
			if err := zw.Apply(lz4.CompressionLevelOption(lvl)); err != nil {
				return err
			}
			return copyAndClose(zw, src)
		}), nil

	default:
		return nil, errors.InvalidArgument("codec", "unsupported codec "+string(codec))
	}
}

// Decompress returns a stage replacing compressed bytes with the original.
func Decompress(codec Codec) (Stage, error) {
	name := string(codec) + "-decompress"
	switch codec {
	case Gzip:
		return StageFunc(name, func(_ context.Context, dst io.Writer, src io.Reader) error {
			zr, err := gzip.NewReader(src)
			if err != nil {
				return err
			}
			defer zr.Close()
			_, err = io.Copy(dst, zr)
			return err
		}), nil

	case Zstd:
		return StageFunc(name, func(_ context.Context, dst io.Writer, src io.Reader) error {
			zr, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return err
			}
			defer zr.Close()
			_, err = io.Copy(dst, zr)
			return err
		}), nil

	case LZ4:
		return StageFunc(name, func(_ context.Context, dst io.Writer, src io.Reader) error {
			_, err := io.Copy(dst, lz4.NewReader(src))
			return err
		}), nil

	default:
		return nil, errors.InvalidArgument("codec", "unsupported codec "+string(codec))
	}
}

// copyAndClose copies src into w and closes w to flush the trailer.
func copyAndClose(w io.WriteCloser, src io.Reader) error {
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
