// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression applied to an object
// payload. Tags are recorded in object headers, so the numeric values
// are format constants.
type CompressionTag uint8

const (
	// CompressionNone stores the payload as is.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 uses LZ4 frames. Cheap to decode; a reasonable
	// choice for stores on fast local networks.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd uses zstd frames. The default.
	CompressionZstd CompressionTag = 2
)

// DefaultCompressionLevel is the zstd level used when none is
// configured. Level 1 keeps publishing fast; builds and patches are
// written once and read many times, so raising it is a deployment
// choice.
const DefaultCompressionLevel = 1

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses a compression tag from its string
// representation.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, or zstd)", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (tag CompressionTag) MarshalText() ([]byte, error) {
	switch tag {
	case CompressionNone, CompressionLZ4, CompressionZstd:
		return []byte(tag.String()), nil
	default:
		return nil, fmt.Errorf("invalid compression tag %d", uint8(tag))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler. Unlike
// ParseCompressionTag, an empty input is rejected: headers always
// name their compression.
func (tag *CompressionTag) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		return fmt.Errorf("empty compression tag")
	}
	parsed, err := ParseCompressionTag(string(text))
	if err != nil {
		return err
	}
	*tag = parsed
	return nil
}

var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast,
	lz4.Level1, lz4.Level2, lz4.Level3,
	lz4.Level4, lz4.Level5, lz4.Level6,
	lz4.Level7, lz4.Level8, lz4.Level9,
}

// NewCompressor returns a writer that compresses into w. Closing the
// returned writer flushes the final frame but does not close w. The
// level is interpreted per algorithm: zstd levels 1 through 22, lz4
// levels 0 (fast) through 9.
func NewCompressor(w io.Writer, tag CompressionTag, level int) (io.WriteCloser, error) {
	switch tag {
	case CompressionNone:
		return nopWriteCloser{w}, nil

	case CompressionZstd:
		if level <= 0 {
			level = DefaultCompressionLevel
		}
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return encoder, nil

	case CompressionLZ4:
		level = min(max(level, 0), len(lz4Levels)-1)
		writer := lz4.NewWriter(w)
		if err := writer.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
			return nil, fmt.Errorf("lz4 encoder: %w", err)
		}
		return writer, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag %d", uint8(tag))
	}
}

// NewDecompressor returns a reader of the decompressed stream r.
// Errors raised by the decompressor itself surface as ErrCodec; errors
// from r pass through unchanged, so a network failure mid-download is
// still classified as a network failure.
func NewDecompressor(r io.Reader, tag CompressionTag) (io.ReadCloser, error) {
	source := &sourceReader{r: r}
	switch tag {
	case CompressionNone:
		return io.NopCloser(r), nil

	case CompressionZstd:
		decoder, err := zstd.NewReader(source)
		if err != nil {
			return nil, NewError(ErrCodec, "decompress", "", err)
		}
		return &codecReader{r: decoder.IOReadCloser(), source: source}, nil

	case CompressionLZ4:
		return &codecReader{r: io.NopCloser(lz4.NewReader(source)), source: source}, nil

	default:
		return nil, Errorf(ErrCodec, "decompress", "", "unsupported compression tag %d", uint8(tag))
	}
}

// sourceReader remembers the last error its underlying reader returned.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

type codecReader struct {
	r      io.ReadCloser
	source *sourceReader
}

func (c *codecReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err == nil || err == io.EOF {
		return n, err
	}
	if c.source.err != nil {
		return n, c.source.err
	}
	return n, NewError(ErrCodec, "decompress", "", err)
}

func (c *codecReader) Close() error { return c.r.Close() }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
