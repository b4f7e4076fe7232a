// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration used for artefacta's
// on-store object headers.
//
// Object headers are written once at publish time and read back by
// every installer that fetches the object, possibly years later and by
// a newer release of this tool. Two properties matter:
//
//   - Determinism. The encoder uses Core Deterministic Encoding (RFC
//     8949 §4.2), so the same header always produces the same bytes
//     and two publishers of the same build produce identical objects.
//   - Forward compatibility. The decoder ignores unknown fields, so a
//     header written by a newer publisher with extra fields still
//     decodes.
//
// Types implementing encoding.TextMarshaler (artifact.Version,
// artifact.Hash) are encoded as CBOR text strings, which keeps headers
// readable in cbor diagnostic dumps.
package codec
