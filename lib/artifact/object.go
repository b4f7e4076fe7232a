// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/artefacta/lib/codec"
)

const (
	objectMagic = "ARTF"

	// objectFormat is the envelope format version. Readers reject
	// other values rather than guessing.
	objectFormat = 1

	// maxHeaderSize bounds the CBOR header length field.
	maxHeaderSize = 16 * 1024

	// preambleSize is magic + format byte + header length.
	preambleSize = len(objectMagic) + 1 + 4
)

// Header describes the payload of a stored object.
type Header struct {
	Kind    Kind    `cbor:"kind"`
	Version Version `cbor:"version"`
	From    Version `cbor:"from"`
	To      Version `cbor:"to"`

	Compression CompressionTag `cbor:"compression"`

	// ContentSize and ContentHash describe the decompressed payload:
	// the build content for builds, the raw patch for patches.
	ContentSize int64 `cbor:"content_size"`
	ContentHash Hash  `cbor:"content_hash"`

	// SourceHash and TargetHash are set on patches only: the content
	// hashes of the From build the patch applies to and of the To
	// build it produces.
	SourceHash Hash `cbor:"source_hash"`
	TargetHash Hash `cbor:"target_hash"`
}

// BuildHeader returns the header of a build object.
func BuildHeader(version Version, tag CompressionTag, size int64, hash Hash) Header {
	return Header{
		Kind:        KindBuild,
		Version:     version,
		Compression: tag,
		ContentSize: size,
		ContentHash: hash,
	}
}

// PatchHeader returns the header of a patch object.
func PatchHeader(from, to Version, tag CompressionTag, size int64, hash, source, target Hash) Header {
	return Header{
		Kind:        KindPatch,
		From:        from,
		To:          to,
		Compression: tag,
		ContentSize: size,
		ContentHash: hash,
		SourceHash:  source,
		TargetHash:  target,
	}
}

// Name returns the object name the header belongs under.
func (h Header) Name() string {
	if h.Kind == KindPatch {
		return PatchName(h.From, h.To)
	}
	return BuildName(h.Version)
}

// Validate checks the header's internal consistency.
func (h Header) Validate() error {
	switch h.Kind {
	case KindBuild:
		if h.Version.IsZero() {
			return fmt.Errorf("build header has no version")
		}
		if !h.From.IsZero() || !h.To.IsZero() || !h.SourceHash.IsZero() || !h.TargetHash.IsZero() {
			return fmt.Errorf("build header for %s carries patch fields", h.Version)
		}
	case KindPatch:
		if h.From.IsZero() || h.To.IsZero() {
			return fmt.Errorf("patch header is missing from or to version")
		}
		if h.From == h.To {
			return fmt.Errorf("patch header goes from %s to itself", h.From)
		}
		if !h.Version.IsZero() {
			return fmt.Errorf("patch header %s carries a build version", h.Name())
		}
		if h.SourceHash.IsZero() || h.TargetHash.IsZero() {
			return fmt.Errorf("patch header %s is missing source or target hash", h.Name())
		}
	default:
		return fmt.Errorf("unknown object kind %d", uint8(h.Kind))
	}
	switch h.Compression {
	case CompressionNone, CompressionLZ4, CompressionZstd:
	default:
		return fmt.Errorf("unknown compression tag %d", uint8(h.Compression))
	}
	if h.ContentSize < 0 {
		return fmt.Errorf("negative content size %d", h.ContentSize)
	}
	if h.ContentHash.IsZero() {
		return fmt.Errorf("header %s has no content hash", h.Name())
	}
	return nil
}

// CheckName verifies that the header describes the object stored
// under name. A mismatch means the store holds the wrong object under
// that name, which is an integrity failure.
func (h Header) CheckName(name string) error {
	if h.Name() != name {
		return Errorf(ErrIntegrity, "verify", name, "object header describes %s", h.Name())
	}
	return nil
}

// WriteObject writes the envelope for header followed by content
// compressed as the header specifies, at the given level (0 selects the
// algorithm default). The content is hashed as it streams; if it does
// not match the header's size and hash, what was written is garbage and
// an ErrIntegrity error is returned. The returned count is the number
// of bytes written to w.
func WriteObject(w io.Writer, header Header, content io.Reader, level int) (int64, error) {
	if err := header.Validate(); err != nil {
		return 0, NewError(ErrCodec, "encode", header.Name(), err)
	}
	encoded, err := codec.Marshal(header)
	if err != nil {
		return 0, NewError(ErrCodec, "encode", header.Name(), err)
	}
	if len(encoded) > maxHeaderSize {
		return 0, Errorf(ErrCodec, "encode", header.Name(), "header is %d bytes, maximum is %d", len(encoded), maxHeaderSize)
	}

	counter := &countingWriter{w: w}
	envelope := make([]byte, 0, preambleSize+len(encoded))
	envelope = append(envelope, objectMagic...)
	envelope = append(envelope, objectFormat)
	envelope = binary.BigEndian.AppendUint32(envelope, uint32(len(encoded)))
	envelope = append(envelope, encoded...)
	if _, err := counter.Write(envelope); err != nil {
		return counter.n, err
	}

	compressor, err := NewCompressor(counter, header.Compression, level)
	if err != nil {
		return counter.n, NewError(ErrCodec, "encode", header.Name(), err)
	}
	hasher := NewHasher()
	if _, err := io.Copy(compressor, io.TeeReader(content, hasher)); err != nil {
		compressor.Close()
		return counter.n, err
	}
	if err := compressor.Close(); err != nil {
		return counter.n, err
	}
	if hasher.Size() != header.ContentSize {
		return counter.n, Errorf(ErrIntegrity, "encode", header.Name(),
			"content is %d bytes, header declares %d", hasher.Size(), header.ContentSize)
	}
	if sum := hasher.Sum(); sum != header.ContentHash {
		return counter.n, Errorf(ErrIntegrity, "encode", header.Name(),
			"content hash %s, header declares %s", sum.Short(), header.ContentHash.Short())
	}
	return counter.n, nil
}

// ReadHeader reads and validates the envelope at the start of r,
// leaving r positioned at the first payload byte. Any malformation is
// reported as ErrCodec; read failures keep their own classification.
func ReadHeader(r io.Reader) (Header, error) {
	var preamble [preambleSize]byte
	if _, err := io.ReadFull(r, preamble[:]); err != nil {
		return Header{}, truncation(err, "object envelope")
	}
	if string(preamble[:len(objectMagic)]) != objectMagic {
		return Header{}, Errorf(ErrCodec, "decode", "", "bad magic %q", preamble[:len(objectMagic)])
	}
	if format := preamble[len(objectMagic)]; format != objectFormat {
		return Header{}, Errorf(ErrCodec, "decode", "", "unsupported envelope format %d", format)
	}
	length := binary.BigEndian.Uint32(preamble[len(objectMagic)+1:])
	if length == 0 || length > maxHeaderSize {
		return Header{}, Errorf(ErrCodec, "decode", "", "header length %d out of range", length)
	}

	encoded := make([]byte, length)
	if _, err := io.ReadFull(r, encoded); err != nil {
		return Header{}, truncation(err, "object header")
	}
	var header Header
	if err := codec.Unmarshal(encoded, &header); err != nil {
		return Header{}, NewError(ErrCodec, "decode", "", err)
	}
	if err := header.Validate(); err != nil {
		return Header{}, NewError(ErrCodec, "decode", "", err)
	}
	return header, nil
}

// truncation classifies a short read: running out of bytes means the
// object is malformed, anything else is the reader's own failure.
func truncation(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Errorf(ErrCodec, "decode", "", "%s truncated", what)
	}
	return err
}

// OpenContent returns a reader of the decompressed payload that
// follows header in r. The reader verifies size and hash as it goes:
// it fails with ErrIntegrity as soon as more bytes than declared
// arrive, and at end of stream if the size or hash differ. Content
// read before a failure must not be trusted.
func OpenContent(r io.Reader, header Header) (io.ReadCloser, error) {
	decompressed, err := NewDecompressor(r, header.Compression)
	if err != nil {
		return nil, err
	}
	return &verifyingReader{r: decompressed, header: header, hasher: NewHasher()}, nil
}

// VerifyPayload reads the payload that follows header in r to its end
// and checks it against the header.
func VerifyPayload(r io.Reader, header Header) error {
	content, err := OpenContent(r, header)
	if err != nil {
		return err
	}
	defer content.Close()
	_, err = io.Copy(io.Discard, content)
	return err
}

// ReadContent returns the verified payload that follows header in r.
func ReadContent(r io.Reader, header Header) ([]byte, error) {
	content, err := OpenContent(r, header)
	if err != nil {
		return nil, err
	}
	defer content.Close()
	buffer := bytes.NewBuffer(make([]byte, 0, header.ContentSize))
	if _, err := io.Copy(buffer, content); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

type verifyingReader struct {
	r      io.ReadCloser
	header Header
	hasher *Hasher
	err    error
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	if v.err != nil {
		return 0, v.err
	}
	n, err := v.r.Read(p)
	v.hasher.Write(p[:n])
	if v.hasher.Size() > v.header.ContentSize {
		v.err = Errorf(ErrIntegrity, "verify", v.header.Name(),
			"content exceeds declared size %d", v.header.ContentSize)
		return 0, v.err
	}
	if err == io.EOF {
		if v.hasher.Size() != v.header.ContentSize {
			v.err = Errorf(ErrIntegrity, "verify", v.header.Name(),
				"content is %d bytes, header declares %d", v.hasher.Size(), v.header.ContentSize)
			return n, v.err
		}
		if sum := v.hasher.Sum(); sum != v.header.ContentHash {
			v.err = Errorf(ErrIntegrity, "verify", v.header.Name(),
				"content hash %s, header declares %s", sum.Short(), v.header.ContentHash.Short())
			return n, v.err
		}
		v.err = io.EOF
	}
	if err != nil && err != io.EOF {
		v.err = err
	}
	return n, err
}

func (v *verifyingReader) Close() error { return v.r.Close() }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
