// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package vspi_test

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/vspi"
	"github.com/warthog618/vspi/uapi"
	"golang.org/x/sys/unix"
)

func TestOpen(t *testing.T) {
	bus := newBus(t, unthrottled(2))
	e := bus.Master()
	h, err := e.Open(ctx)
	require.Nil(t, err)
	assert.True(t, e.IsOpen())
	assert.Equal(t, e, h.Endpoint())

	// exclusive
	h2, err := e.Open(ctx)
	assert.True(t, errors.Is(err, vspi.ErrTooManyUsers))
	assert.True(t, errors.Is(err, unix.EUSERS))
	assert.Nil(t, h2)

	assert.Nil(t, h.Release(ctx))
	assert.False(t, e.IsOpen())

	// reopen
	h2, err = e.Open(ctx)
	require.Nil(t, err)
	assert.Nil(t, h2.Close())
}

func TestRelease(t *testing.T) {
	p := unthrottled(2)
	bus := newBus(t, p)
	open(t, bus, 1)
	h, err := bus.Master().Open(ctx)
	require.Nil(t, err)
	assert.Equal(t, int(4*p.MaxBytesPerRequest), bus.BuffersAllocated())

	assert.Nil(t, h.Release(ctx))
	assert.Equal(t, int(2*p.MaxBytesPerRequest), bus.BuffersAllocated())

	// second release is ignored
	assert.Nil(t, h.Release(ctx))
	assert.Equal(t, int(2*p.MaxBytesPerRequest), bus.BuffersAllocated())

	// released handle is no longer usable
	_, err = h.Mode(ctx)
	assert.True(t, errors.Is(err, vspi.ErrClosed))
	_, err = h.Read(make([]byte, 4))
	assert.True(t, errors.Is(err, vspi.ErrClosed))
	_, err = h.Write([]byte{1, 2})
	assert.True(t, errors.Is(err, vspi.ErrClosed))

	// and does not affect a subsequent opener
	h2 := open(t, bus, 0)
	assert.Nil(t, h.Release(ctx))
	_, err = h2.Write([]byte{1, 2})
	assert.Nil(t, err)
}

func TestReleaseResetsConfig(t *testing.T) {
	bus := newBus(t, unthrottled(2))
	h, err := bus.Master().Open(ctx)
	require.Nil(t, err)
	require.Nil(t, h.SetMode(ctx, uapi.Mode3))
	require.Nil(t, h.SetBitsPerWord(ctx, 16))
	require.Nil(t, h.SetMaxSpeedHz(ctx, 1000000))
	require.Nil(t, h.Close())

	h = open(t, bus, 0)
	cfg, err := h.Config(ctx)
	assert.Nil(t, err)
	assert.Equal(t, vspi.Config{}, cfg)
}

func TestBufferBudget(t *testing.T) {
	p := unthrottled(3)
	bus := newBus(t, p, vspi.WithBufferBudget(int(3*p.MaxBytesPerRequest)))
	m := open(t, bus, 0)

	e, err := bus.Endpoint(1)
	require.Nil(t, err)
	h, err := e.Open(ctx)
	assert.True(t, errors.Is(err, vspi.ErrResourceExhausted))
	assert.True(t, errors.Is(err, unix.ENOMEM))
	assert.Nil(t, h)

	// failed open leaves the endpoint closed
	assert.False(t, e.IsOpen())
	_, err = m.Write([]byte{1})
	assert.True(t, errors.Is(err, vspi.ErrNoPartner))

	require.Nil(t, m.Close())
	h, err = e.Open(ctx)
	assert.Nil(t, err)
	require.NotNil(t, h)
	assert.Nil(t, h.Close())
}

func TestOpenClosedWhileWaiting(t *testing.T) {
	mc := clock.NewMock()
	bus := newBus(t, unthrottled(2), vspi.WithClock(mc))
	m := open(t, bus, 0)
	s := open(t, bus, 1)
	sdone := stall(t, s, m)

	// queued on the slave gate behind the stalled transfer
	rdone := make(chan error, 1)
	go func() {
		rdone <- s.Release(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	type result struct {
		h   *vspi.Handle
		err error
	}
	e, err := bus.Endpoint(1)
	require.Nil(t, err)
	odone := make(chan result, 1)
	go func() {
		h, err := e.Open(ctx)
		odone <- result{h, err}
	}()
	time.Sleep(50 * time.Millisecond)
	cdone := make(chan error, 1)
	go func() {
		cdone <- bus.Close()
	}()
	time.Sleep(50 * time.Millisecond)
	unstall(t, mc, sdone)

	assert.Nil(t, <-rdone)
	res := <-odone
	assert.True(t, errors.Is(res.err, vspi.ErrClosed), res.err)
	assert.Nil(t, res.h)
	assert.Nil(t, <-cdone)
	assert.Equal(t, 0, bus.BuffersAllocated())
}

func TestOpenLargestRequest(t *testing.T) {
	p := vspi.Params{MaxBytesPerRequest: vspi.MaxRequestSize, Endpoints: 2}
	bus := newBus(t, p)
	h := open(t, bus, 0)
	assert.Equal(t, 2*vspi.MaxRequestSize, bus.BuffersAllocated())
	require.Nil(t, h.Close())
	assert.Equal(t, 0, bus.BuffersAllocated())
}

func TestMode(t *testing.T) {
	bus := newBus(t, unthrottled(2))
	h := open(t, bus, 0)

	m, err := h.Mode(ctx)
	assert.Nil(t, err)
	assert.Equal(t, uapi.Mode0, m)

	modes := []uapi.Mode{
		uapi.Mode1,
		uapi.Mode2,
		uapi.Mode3 | uapi.ModeCSHigh,
		uapi.ModeMask,
		uapi.Mode0,
	}
	for _, mode := range modes {
		assert.Nil(t, h.SetMode(ctx, mode))
		m, err = h.Mode(ctx)
		assert.Nil(t, err)
		assert.Equal(t, mode, m)
	}

	// unrecognised bits
	require.Nil(t, h.SetMode(ctx, uapi.Mode3))
	err = h.SetMode(ctx, uapi.Mode1|0x100)
	assert.True(t, errors.Is(err, vspi.ErrInvalidArgument))
	m, err = h.Mode(ctx)
	assert.Nil(t, err)
	assert.Equal(t, uapi.Mode3, m)
}

func TestLSBFirst(t *testing.T) {
	bus := newBus(t, unthrottled(2))
	h := open(t, bus, 1)
	require.Nil(t, h.SetMode(ctx, uapi.Mode2))

	lsb, err := h.LSBFirst(ctx)
	assert.Nil(t, err)
	assert.False(t, lsb)

	assert.Nil(t, h.SetLSBFirst(ctx, true))
	lsb, err = h.LSBFirst(ctx)
	assert.Nil(t, err)
	assert.True(t, lsb)
	m, _ := h.Mode(ctx)
	assert.Equal(t, uapi.Mode2|uapi.ModeLSBFirst, m)

	assert.Nil(t, h.SetLSBFirst(ctx, false))
	m, _ = h.Mode(ctx)
	assert.Equal(t, uapi.Mode2, m)
}

func TestBitsPerWord(t *testing.T) {
	bus := newBus(t, unthrottled(2))
	h := open(t, bus, 0)
	for _, bpw := range []uint8{0, 8, 16, 32, 64} {
		assert.Nil(t, h.SetBitsPerWord(ctx, bpw))
		v, err := h.BitsPerWord(ctx)
		assert.Nil(t, err)
		assert.Equal(t, bpw, v)
	}
}

func TestMaxSpeedHz(t *testing.T) {
	bus := newBus(t, unthrottled(2))
	h := open(t, bus, 0)
	for _, hz := range []uint32{0, 1, 500000, 0xffffffff} {
		assert.Nil(t, h.SetMaxSpeedHz(ctx, hz))
		v, err := h.MaxSpeedHz(ctx)
		assert.Nil(t, err)
		assert.Equal(t, hz, v)
	}
}
