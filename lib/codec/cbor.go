// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MaxItemSize bounds a single decoded CBOR item. Object headers are a
// few hundred bytes; anything near this limit is a corrupt or hostile
// object, not a header.
const MaxItemSize = 64 * 1024

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler:  cbor.TextUnmarshalerTextString,
		MaxArrayElements: 1024,
		MaxMapPairs:      1024,
		MaxNestedLevels:  16,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes a single CBOR item from data into v. Inputs larger
// than MaxItemSize are rejected without being parsed.
func Unmarshal(data []byte, v any) error {
	if len(data) > MaxItemSize {
		return fmt.Errorf("cbor item is %d bytes, maximum is %d", len(data), MaxItemSize)
	}
	return decMode.Unmarshal(data, v)
}
