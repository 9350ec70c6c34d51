// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package mockup

import (
	"fmt"
	"sort"
	"sync"
)

// Prot is the access permitted to a mapped region.
type Prot int

const (
	// ProtRead permits the driver to copy from the region.
	ProtRead Prot = 1 << iota

	// ProtWrite permits the driver to copy to the region.
	ProtWrite

	// ProtRW permits both.
	ProtRW = ProtRead | ProtWrite
)

// Space is a simulated user address space.
//
// Byte slices are mapped into the space and the returned addresses passed
// as ioctl arguments and in transfer descriptors. Unmapped addresses, and
// accesses not permitted by the region's Prot, fault.
type Space struct {
	mu      sync.Mutex
	next    uint64
	regions []region
}

type region struct {
	base uint64
	b    []byte
	prot Prot
}

func (r region) contains(addr uint64, size int) bool {
	return addr >= r.base && addr+uint64(size) <= r.base+uint64(len(r.b))
}

// regions are spaced by at least a page so overruns fault.
const pageSize = 4096

// NewSpace creates an empty address space.
func NewSpace() *Space {
	return &Space{next: 0x10000}
}

// Map maps b into the space and returns its address.
//
// The region refers to b, so copies out by the driver are visible in b.
func (s *Space) Map(b []byte, prot Prot) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := s.next
	pages := (uint64(len(b)) + pageSize - 1) / pageSize
	s.next += (pages + 1) * pageSize
	s.regions = append(s.regions, region{base: addr, b: b, prot: prot})
	return addr
}

// Alloc maps a new zeroed region of size bytes.
func (s *Space) Alloc(size int, prot Prot) (uint64, []byte) {
	b := make([]byte, size)
	return s.Map(b, prot), b
}

// Unmap removes the region mapped at addr.
func (s *Space) Unmap(addr uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.regions {
		if r.base == addr {
			s.regions = append(s.regions[:i], s.regions[i+1:]...)
			return nil
		}
	}
	return ErrorFault{addr, 0}
}

// Regions returns the base addresses of the mapped regions, in order.
func (s *Space) Regions() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	aa := make([]uint64, len(s.regions))
	for i, r := range s.regions {
		aa[i] = r.base
	}
	sort.Slice(aa, func(i, j int) bool { return aa[i] < aa[j] })
	return aa
}

func (s *Space) find(addr uint64, size int, prot Prot) (region, bool) {
	for _, r := range s.regions {
		if r.contains(addr, size) && r.prot&prot == prot {
			return r, true
		}
	}
	return region{}, false
}

// AccessOK returns true if size bytes at addr may be accessed.
func (s *Space) AccessOK(addr uint64, size int, write bool) bool {
	if size == 0 {
		return true
	}
	prot := ProtRead
	if write {
		prot = ProtWrite
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.find(addr, size, prot)
	return ok
}

// CopyIn returns a copy of size bytes from addr.
func (s *Space) CopyIn(addr uint64, size int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.find(addr, size, ProtRead)
	if !ok {
		return nil, ErrorFault{addr, size}
	}
	off := addr - r.base
	b := make([]byte, size)
	copy(b, r.b[off:])
	return b, nil
}

// CopyOut copies b to addr.
func (s *Space) CopyOut(addr uint64, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.find(addr, len(b), ProtWrite)
	if !ok {
		return ErrorFault{addr, len(b)}
	}
	copy(r.b[addr-r.base:], b)
	return nil
}

// ErrorFault indicates an access to memory that is not mapped, or not
// permitted.
type ErrorFault struct {
	Addr uint64
	Size int
}

func (e ErrorFault) Error() string {
	return fmt.Sprintf("fault accessing %d bytes at 0x%x", e.Size, e.Addr)
}
