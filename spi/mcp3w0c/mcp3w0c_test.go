// SPDX-License-Identifier: MIT
//
// Copyright © 2019 Kent Gibson <warthog618@gmail.com>.

package mcp3w0c_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/vspi"
	"github.com/warthog618/vspi/spi"
	"github.com/warthog618/vspi/spi/mcp3w0c"
	"golang.org/x/sync/errgroup"
)

func setup(t *testing.T, width uint) (*mcp3w0c.MCP3w0c, *mcp3w0c.Device) {
	t.Helper()
	bus, err := vspi.New(vspi.Params{MaxBytesPerRequest: 16, Endpoints: 2})
	require.Nil(t, err)
	t.Cleanup(func() { bus.Close() })
	se, _ := bus.Endpoint(1)
	s, err := se.Open(context.Background())
	require.Nil(t, err)
	t.Cleanup(func() { s.Close() })
	dev := mcp3w0c.NewDevice(s, width, 8)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dev.Serve(gctx) })
	t.Cleanup(func() {
		cancel()
		assert.Nil(t, g.Wait())
	})

	c, err := spi.Open(context.Background(), bus.Master(), spi.WithSpeedHz(1000000))
	require.Nil(t, err)
	adc := mcp3w0c.New(c, width)
	t.Cleanup(func() { adc.Close() })
	return adc, dev
}

func TestRead(t *testing.T) {
	patterns := []struct {
		name  string
		width uint
		in    []uint16
	}{
		{"mcp3008", 10, []uint16{0, 1, 0x155, 0x2aa, 0x3ff, 512, 7, 1000}},
		{"mcp3208", 12, []uint16{0xfff, 0, 0xabc, 0x123, 2048, 4000, 1, 77}},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			adc, dev := setup(t, p.width)
			for ch, v := range p.in {
				require.Nil(t, dev.SetInput(ch, v))
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			for ch, v := range p.in {
				got, err := adc.Read(ctx, ch)
				assert.Nil(t, err)
				assert.Equal(t, v, got, "channel %d", ch)
			}
		}
		t.Run(p.name, tf)
	}
}

func TestReadDifferential(t *testing.T) {
	adc, dev := setup(t, 10)
	require.Nil(t, dev.SetInput(0, 600))
	require.Nil(t, dev.SetInput(1, 200))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := adc.ReadDifferential(ctx, 0)
	assert.Nil(t, err)
	assert.Equal(t, uint16(400), v)

	// negative clamps to zero
	v, err = adc.ReadDifferential(ctx, 1)
	assert.Nil(t, err)
	assert.Equal(t, uint16(0), v)
}

func TestErrors(t *testing.T) {
	adc, dev := setup(t, 10)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := dev.SetInput(0, 0x400)
	assert.True(t, errors.Is(err, mcp3w0c.ErrOutOfRange))
	err = dev.SetInput(8, 1)
	assert.Equal(t, mcp3w0c.ErrInvalidChannel, err)

	_, err = adc.Read(ctx, 8)
	assert.Equal(t, mcp3w0c.ErrInvalidChannel, err)
	_, err = adc.Read(ctx, -1)
	assert.Equal(t, mcp3w0c.ErrInvalidChannel, err)

	assert.Nil(t, adc.Close())
	_, err = adc.Read(ctx, 0)
	assert.Equal(t, mcp3w0c.ErrClosed, err)
	assert.Equal(t, mcp3w0c.ErrClosed, adc.Close())
}

func TestNoDevice(t *testing.T) {
	bus, err := vspi.New(vspi.Params{MaxBytesPerRequest: 16, Endpoints: 2})
	require.Nil(t, err)
	defer bus.Close()
	se, _ := bus.Endpoint(1)
	s, err := se.Open(context.Background())
	require.Nil(t, err)
	defer s.Close()
	c, err := spi.Open(context.Background(), bus.Master())
	require.Nil(t, err)
	adc := mcp3w0c.NewMCP3008(c)
	defer adc.Close()

	// nothing serving the slave, so no response
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = adc.Read(ctx, 0)
	assert.NotNil(t, err)
}
