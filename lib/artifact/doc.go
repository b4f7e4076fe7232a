// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact defines the object model shared by every artefacta
// component: versions, object names, the on-store object envelope,
// content hashing, compression, and the error taxonomy.
//
// A store holds two kinds of objects:
//
//   - Builds, named "<version>.build", containing the complete content
//     of one version.
//   - Patches, named "<from>-<to>.patch", containing a binary diff that
//     transforms the content of version "from" into the content of
//     version "to". When either version contains '-', the separator is
//     "---" so the name stays unambiguous.
//
// Every object is stored in an envelope:
//
//	"ARTF" | format (u8) | header length (u32 BE) | CBOR header | payload
//
// The header declares the object's kind and versions, the compression
// applied to the payload, and the size and BLAKE3 hash of the
// decompressed payload. Patch headers additionally declare the content
// hashes of their source and target builds, so a patch chain can be
// verified end to end before the result is committed.
//
// Hashes use BLAKE3 keyed mode with the domain key "artefacta.content"
// (zero-padded to 32 bytes). A content hash therefore never collides
// with a plain BLAKE3 hash of the same bytes computed elsewhere.
//
// Nothing in this package performs I/O against a store. Stores move
// opaque byte streams; this package interprets them.
package artifact
