// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package vspi

import (
	"math"
	"math/rand"
	"sync"
)

// injector flips bits in data crossing the bus.
//
// Each bit is flipped independently with probability p. Rather than drawing
// for every bit, the gap to the next flip is drawn from the geometric
// distribution, and carried across calls.
type injector struct {
	p float64

	// mutex covers the attributes below it.
	mu  sync.Mutex
	rnd *rand.Rand

	// bits remaining before the next flip.
	next int64
}

func newInjector(src rand.Source, p float64) *injector {
	i := &injector{p: p, rnd: rand.New(src)}
	if p > 0 && p < 1 {
		i.next = i.gap()
	}
	return i
}

// gap returns the number of clean bits before the next flipped bit.
func (i *injector) gap() int64 {
	u := i.rnd.Float64()
	g := math.Log1p(-u) / math.Log1p(-i.p)
	if g > math.MaxInt32 {
		return math.MaxInt32
	}
	return int64(g)
}

// corrupt flips bits in b and returns the number flipped.
func (i *injector) corrupt(b []byte) int {
	if i.p <= 0 || len(b) == 0 {
		return 0
	}
	if i.p >= 1 {
		for k := range b {
			b[k] = ^b[k]
		}
		return len(b) * 8
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	bits := int64(len(b)) * 8
	pos := i.next
	flips := 0
	for pos < bits {
		b[pos/8] ^= 1 << uint(pos%8)
		flips++
		pos += 1 + i.gap()
	}
	i.next = pos - bits
	return flips
}
