// SPDX-License-Identifier: MIT
//
// Copyright © 2019 Kent Gibson <warthog618@gmail.com>.

package uapi

import (
	"encoding/binary"
	"unsafe"
)

// endian of descriptors passed from the local caller.
var nativeEndian = findEndian()

func findEndian() binary.ByteOrder {
	// the standard hack to determine native Endianness.
	buf := [2]byte{}
	*(*uint16)(unsafe.Pointer(&buf[0])) = uint16(0xABCD)
	switch buf {
	case [2]byte{0xCD, 0xAB}:
		return binary.LittleEndian
	case [2]byte{0xAB, 0xCD}:
		return binary.BigEndian
	default:
		panic("Could not determine native endianness.")
	}
}

// NativeEndian returns the byte order used to encode descriptors.
func NativeEndian() binary.ByteOrder {
	return nativeEndian
}
