// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package vspi

// Memory is the address space of the caller of an ioctl.
//
// Addresses passed in ioctl arguments and transfer descriptors are resolved
// through it.
type Memory interface {
	// AccessOK returns true if size bytes at addr may be accessed.
	//
	// write is from the driver's perspective, so true checks the driver may
	// write to the caller's memory.
	AccessOK(addr uint64, size int, write bool) bool

	// CopyIn returns a copy of size bytes from addr.
	CopyIn(addr uint64, size int) ([]byte, error)

	// CopyOut copies b to addr.
	CopyOut(addr uint64, b []byte) error
}
