// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package vspi

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Transfer is a single segment of a full-duplex message.
//
// Tx and Rx must be the same length, or one of them empty. An empty Tx
// shifts out zeros. Rx receives the bytes most recently shifted out by the
// partner. If Rx is empty those bytes are discarded, and only the partner's
// receive latch is affected.
type Transfer struct {
	Tx []byte
	Rx []byte

	// Overrides the endpoint clock speed for this segment, if non-zero.
	SpeedHz uint32

	// Delay after the segment before the next.
	DelayUsecs uint16

	// Overrides the endpoint word size for this segment, if non-zero.
	BitsPerWord uint8

	// Deselect the slave between segments.
	//
	// There is no chip select on the virtual bus so this has no effect.
	CSChange bool
}

// Transfer performs a segmented full-duplex message with the bus partner.
//
// Segments are performed in order. Returns the number of bytes exchanged,
// and on error the number exchanged before the failing segment. Completed
// segments are not rolled back.
func (h *Handle) Transfer(ctx context.Context, xfers []Transfer) (int, error) {
	segs := make([]segment, len(xfers))
	for i, x := range xfers {
		if len(x.Tx) != 0 && len(x.Rx) != 0 && len(x.Tx) != len(x.Rx) {
			return 0, fmt.Errorf("%w: segment %d tx and rx lengths differ",
				ErrInvalidArgument, i)
		}
		s := segment{
			len:         len(x.Tx),
			speedHz:     x.SpeedHz,
			bitsPerWord: x.BitsPerWord,
			delay:       time.Duration(x.DelayUsecs) * time.Microsecond,
			csChange:    x.CSChange,
		}
		if len(x.Tx) != 0 {
			s.tx = fromSlice(x.Tx)
		}
		if len(x.Rx) != 0 {
			s.len = len(x.Rx)
			s.rx = toSlice(x.Rx)
		}
		segs[i] = s
	}
	return h.e.r.transfer(ctx, h, segs)
}

// segment is a transfer segment as executed by the engine.
type segment struct {
	len int

	// tx fills its argument with the bytes to send, if not nil.
	tx func([]byte) error

	// rx accepts the bytes received, if not nil.
	rx func([]byte) error

	speedHz     uint32
	bitsPerWord uint8
	delay       time.Duration
	csChange    bool
}

func fromSlice(b []byte) func([]byte) error {
	return func(dst []byte) error {
		copy(dst, b)
		return nil
	}
}

func toSlice(b []byte) func([]byte) error {
	return func(src []byte) error {
		copy(b, src)
		return nil
	}
}

// transfer executes a message on behalf of the handle.
func (r *Registry) transfer(ctx context.Context, h *Handle, segs []segment) (int, error) {
	if h.released.Load() || r.isClosed() {
		return 0, ErrClosed
	}
	for i, s := range segs {
		if uint(s.len) > r.params.MaxBytesPerRequest {
			return 0, fmt.Errorf("%w: segment %d is %d bytes",
				ErrMessageTooLarge, i, s.len)
		}
	}
	if len(segs) == 0 {
		return 0, nil
	}
	e := h.e
	p, err := r.partner(e)
	if err != nil {
		return 0, err
	}
	unlock, err := lockPair(ctx, e, p)
	if err != nil {
		return 0, err
	}
	defer unlock()
	if h.released.Load() || e.openers == 0 {
		return 0, ErrClosed
	}
	// the set of open endpoints may have changed while waiting for the gates.
	cur, err := r.partner(e)
	if err != nil {
		return 0, err
	}
	if cur != p {
		return 0, fmt.Errorf("%w: partner changed from %s to %s",
			ErrNoPartner, p.Name(), cur.Name())
	}
	n := 0
	for i, s := range segs {
		if err := e.exchange(ctx, p, s); err != nil {
			e.logger.Debug("transfer failed",
				zap.Int("segment", i),
				zap.Int("moved", n),
				zap.Error(err))
			return n, err
		}
		n += s.len
	}
	e.logger.Debug("transfer",
		zap.String("partner", p.Name()),
		zap.Int("segments", len(segs)),
		zap.Int("bytes", n))
	return n, nil
}

// partner returns the endpoint on the other side of the bus from e.
//
// The master partners the single open slave. A slave partners the master.
// The result is only a candidate, and must be rechecked with its gate held.
func (r *Registry) partner(e *Endpoint) (*Endpoint, error) {
	if !e.master {
		m := r.eps[0]
		if !m.IsOpen() {
			return nil, fmt.Errorf("%w: master is not open", ErrNoPartner)
		}
		return m, nil
	}
	var p *Endpoint
	for _, s := range r.eps[1:] {
		if !s.IsOpen() {
			continue
		}
		if p != nil {
			return nil, fmt.Errorf("%w: slaves %s and %s are both open",
				ErrNoPartner, p.Name(), s.Name())
		}
		p = s
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no slave is open", ErrNoPartner)
	}
	return p, nil
}

// lockPair takes the gates of both endpoints, lowest id first, so transfers
// initiated from either end cannot deadlock.
func lockPair(ctx context.Context, a, b *Endpoint) (func(), error) {
	if b.id < a.id {
		a, b = b, a
	}
	if err := a.lock(ctx); err != nil {
		return nil, err
	}
	if err := b.lock(ctx); err != nil {
		a.unlock()
		return nil, err
	}
	return func() {
		b.unlock()
		a.unlock()
	}, nil
}

// exchange performs one segment between e and its partner p.
//
// Both gates must be held.
func (e *Endpoint) exchange(ctx context.Context, p *Endpoint, s segment) error {
	bpw := s.bitsPerWord
	if bpw == 0 {
		bpw = e.config.BitsPerWord
	}
	if bpw == 0 {
		bpw = 8
	}
	if bpw > 32 {
		return fmt.Errorf("%w: %d bits per word", ErrInvalidArgument, bpw)
	}
	if wb := (int(bpw) + 7) / 8; s.len%wb != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of %d bit words",
			ErrInvalidArgument, s.len, bpw)
	}
	hz := s.speedHz
	if hz == 0 {
		hz = e.config.MaxSpeedHz
	}
	out := e.tx[:s.len]
	if s.tx != nil {
		if err := s.tx(out); err != nil {
			return fmt.Errorf("%w: tx: %v", ErrFaultyAddress, err)
		}
	} else {
		clear(out)
	}
	if err := e.r.throttle.wait(ctx, s.len, hz, s.delay); err != nil {
		return err
	}
	p.receive(out)
	// without readback the bytes shifted in are discarded.
	if s.rx == nil {
		return nil
	}
	got := make([]byte, s.len)
	copy(got, p.tx[:s.len])
	e.r.injector.corrupt(got)
	if err := s.rx(got); err != nil {
		return fmt.Errorf("%w: rx: %v", ErrFaultyAddress, err)
	}
	return nil
}
