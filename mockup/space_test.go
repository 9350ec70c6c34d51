// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package mockup_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/vspi/mockup"
)

func TestSpaceMap(t *testing.T) {
	s := mockup.NewSpace()
	b := []byte{1, 2, 3, 4}
	a1 := s.Map(b, mockup.ProtRW)
	a2, b2 := s.Alloc(5000, mockup.ProtRead)
	assert.NotZero(t, a1)
	assert.Greater(t, a2, a1+uint64(len(b)))
	assert.Equal(t, 5000, len(b2))
	a3, _ := s.Alloc(1, mockup.ProtWrite)
	// regions are separated so overruns fault
	assert.Greater(t, a3, a2+5000)
	assert.Equal(t, []uint64{a1, a2, a3}, s.Regions())

	assert.Nil(t, s.Unmap(a2))
	assert.Equal(t, []uint64{a1, a3}, s.Regions())
	assert.Equal(t, mockup.ErrorFault{Addr: a2}, s.Unmap(a2))
}

func TestSpaceAccessOK(t *testing.T) {
	s := mockup.NewSpace()
	r := s.Map(make([]byte, 8), mockup.ProtRead)
	w := s.Map(make([]byte, 8), mockup.ProtWrite)
	rw := s.Map(make([]byte, 8), mockup.ProtRW)
	patterns := []struct {
		name  string
		addr  uint64
		size  int
		write bool
		ok    bool
	}{
		{"read", r, 8, false, true},
		{"read only", r, 8, true, false},
		{"write", w, 8, true, true},
		{"write only", w, 8, false, false},
		{"rw read", rw, 8, false, true},
		{"rw write", rw, 8, true, true},
		{"offset", rw + 4, 4, true, true},
		{"overrun", rw + 4, 5, true, false},
		{"before", r - 1, 1, false, false},
		{"unmapped", 0, 1, false, false},
		{"empty", 0, 0, true, true},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			assert.Equal(t, p.ok, s.AccessOK(p.addr, p.size, p.write))
		}
		t.Run(p.name, tf)
	}
}

func TestSpaceCopy(t *testing.T) {
	s := mockup.NewSpace()
	b := []byte{1, 2, 3, 4, 5, 6}
	a := s.Map(b, mockup.ProtRW)

	v, err := s.CopyIn(a+2, 3)
	assert.Nil(t, err)
	assert.Equal(t, []byte{3, 4, 5}, v)
	// a copy, not an alias
	v[0] = 9
	assert.Equal(t, byte(3), b[2])

	err = s.CopyOut(a+4, []byte{7, 8})
	assert.Nil(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 7, 8}, b)

	_, err = s.CopyIn(a+4, 3)
	assert.Equal(t, mockup.ErrorFault{Addr: a + 4, Size: 3}, err)
	err = s.CopyOut(a+5, []byte{1, 2})
	require.NotNil(t, err)
	assert.Equal(t, fmt.Sprintf("fault accessing 2 bytes at 0x%x", a+5), err.Error())

	ro := s.Map([]byte{1}, mockup.ProtRead)
	err = s.CopyOut(ro, []byte{2})
	assert.Equal(t, mockup.ErrorFault{Addr: ro, Size: 1}, err)
	wo := s.Map([]byte{1}, mockup.ProtWrite)
	_, err = s.CopyIn(wo, 1)
	assert.Equal(t, mockup.ErrorFault{Addr: wo, Size: 1}, err)
}
