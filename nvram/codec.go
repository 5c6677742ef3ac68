// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nvram

import (
	"encoding/binary"
	"fmt"
)

// WordSize returns the encoded size of T in bytes.
func WordSize[T Word]() int {
	var v T
	return binary.Size(v)
}

// EncodeWord writes v into buf using order. buf must hold WordSize[T]() bytes.
func EncodeWord[T Word](order binary.ByteOrder, buf []byte, v T) error {
	if len(buf) < WordSize[T]() {
		return fmt.Errorf("nvram: buffer of %d bytes too small for %T", len(buf), v)
	}
	_, err := binary.Encode(buf, order, v)
	return err
}

// DecodeWord reads a T from buf using order.
func DecodeWord[T Word](order binary.ByteOrder, buf []byte) (T, error) {
	var v T
	if len(buf) < WordSize[T]() {
		return v, fmt.Errorf("nvram: buffer of %d bytes too small for %T", len(buf), v)
	}
	_, err := binary.Decode(buf, order, &v)
	return v, err
}
