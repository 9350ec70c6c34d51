// SPDX-License-Identifier: MIT
//
// Copyright © 2019 Kent Gibson <warthog618@gmail.com>.

// Package mcp3w0c provides a driver for MCP3004/3008/3204/3208 SPI ADCs
// attached to a virtual SPI bus, and a simulation of the ADC to attach to
// the bus.
//
// The exchange is framed in whole bytes. The driver sends a three byte
// command, [start, sgl/diff and channel, 0], and the device responds with
// three bytes, [0, high, low], once it has sampled the input.
package mcp3w0c

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/vspi"
	"github.com/warthog618/vspi/spi"
)

const (
	frameSize = 3
	startBit  = 0x01
	sglBit    = 0x80

	// DefaultPoll is the period at which the receive latch is checked for a
	// response or command.
	DefaultPoll = time.Millisecond
)

// MCP3w0c reads ADC values from a connected Microchip MCP3xxx family device.
//
// Supported variants are MCP3004/3008/3204/3208.
// The w indicates the width of the device (0 => 10, 2 => 12)
// and the c the number of channels.
type MCP3w0c struct {
	mu    sync.Mutex
	c     *spi.Conn
	width uint
	poll  time.Duration
}

// New creates a MCP3w0c.
//
// The connection must be to the bus master.
func New(c *spi.Conn, width uint) *MCP3w0c {
	return &MCP3w0c{c: c, width: width, poll: DefaultPoll}
}

// NewMCP3008 creates a MCP3008.
func NewMCP3008(c *spi.Conn) *MCP3w0c {
	return New(c, 10)
}

// NewMCP3208 creates a MCP3208.
func NewMCP3208(c *spi.Conn) *MCP3w0c {
	return New(c, 12)
}

// Close releases all resources allocated to the ADC.
func (adc *MCP3w0c) Close() error {
	adc.mu.Lock()
	defer adc.mu.Unlock()
	if adc.c == nil {
		return ErrClosed
	}
	err := adc.c.Close()
	adc.c = nil
	return err
}

// Read returns the value of a single channel read from the ADC.
func (adc *MCP3w0c) Read(ctx context.Context, ch int) (uint16, error) {
	return adc.read(ctx, ch, 1)
}

// ReadDifferential returns the value of a differential pair read from the ADC.
func (adc *MCP3w0c) ReadDifferential(ctx context.Context, ch int) (uint16, error) {
	return adc.read(ctx, ch, 0)
}

var (
	// ErrClosed indicates the ADC is closed.
	ErrClosed = errors.New("closed")

	// ErrInvalidChannel indicates the channel is not supported by the ADC.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrOutOfRange indicates an input beyond the width of the ADC.
	ErrOutOfRange = errors.New("value out of range")
)

func (adc *MCP3w0c) read(ctx context.Context, ch int, sgl int) (uint16, error) {
	if ch < 0 || ch > 7 {
		return 0, ErrInvalidChannel
	}
	adc.mu.Lock()
	defer adc.mu.Unlock()
	if adc.c == nil {
		return 0, ErrClosed
	}
	h := adc.c.Handle()
	// discard any stale response
	junk := make([]byte, frameSize)
	for {
		n, err := h.ReadContext(ctx, junk)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			break
		}
	}
	cmd := []byte{startBit, byte(ch&0x07) << 4, 0}
	if sgl != 0 {
		cmd[1] |= sglBit
	}
	// the device's previous response, shifted in by the command, is dropped.
	if err := adc.c.Tx(ctx, cmd, nil); err != nil {
		return 0, err
	}
	resp, err := readFrame(ctx, h, adc.poll)
	if err != nil {
		return 0, err
	}
	d := uint16(resp[1])<<8 | uint16(resp[2])
	return d & mask(adc.width), nil
}

// readFrame polls the receive latch until a full frame has been received.
func readFrame(ctx context.Context, h *vspi.Handle, poll time.Duration) ([]byte, error) {
	f := make([]byte, frameSize)
	got := 0
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		n, err := h.ReadContext(ctx, f[got:])
		if err != nil {
			return nil, err
		}
		got += n
		if got == frameSize {
			return f, nil
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func mask(width uint) uint16 {
	return uint16(1)<<width - 1
}

// Device simulates an MCP3w0c attached to a slave endpoint.
type Device struct {
	h     *vspi.Handle
	width uint
	poll  time.Duration

	// mutex covers inputs.
	mu     sync.Mutex
	inputs []uint16
}

// NewDevice creates a device of the given width and number of channels
// that serves requests on the slave handle.
func NewDevice(h *vspi.Handle, width uint, channels int) *Device {
	return &Device{
		h:      h,
		width:  width,
		poll:   DefaultPoll,
		inputs: make([]uint16, channels),
	}
}

// SetInput sets the level presented to a channel.
func (d *Device) SetInput(ch int, v uint16) error {
	if v > mask(d.width) {
		return fmt.Errorf("%w: %d exceeds %d bits", ErrOutOfRange, v, d.width)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch < 0 || ch >= len(d.inputs) {
		return ErrInvalidChannel
	}
	d.inputs[ch] = v
	return nil
}

// sample returns the conversion for the command.
func (d *Device) sample(ch int, sgl bool) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch >= len(d.inputs) {
		return 0
	}
	if sgl {
		return d.inputs[ch]
	}
	// pairs are 0/1, 2/3 etc, with ch selecting the positive input.
	neg := ch ^ 1
	if neg >= len(d.inputs) || d.inputs[neg] >= d.inputs[ch] {
		return 0
	}
	return d.inputs[ch] - d.inputs[neg]
}

// Serve responds to commands until the ctx is done.
//
// Malformed commands are ignored.
func (d *Device) Serve(ctx context.Context) error {
	cmd := make([]byte, frameSize)
	scratch := make([]byte, frameSize)
	t := time.NewTicker(d.poll)
	defer t.Stop()
	for {
		n, err := d.h.ReadContext(ctx, cmd)
		if err != nil {
			if errors.Is(err, vspi.ErrInterrupted) {
				return nil
			}
			return err
		}
		if n == frameSize && cmd[0] == startBit {
			ch := int(cmd[1]>>4) & 0x07
			v := d.sample(ch, cmd[1]&sglBit != 0)
			resp := []byte{0, byte(v >> 8), byte(v)}
			// the master has no command pending, so what it shifts back is
			// dropped rather than latched as another command.
			_, err = d.h.Transfer(ctx, []vspi.Transfer{{Tx: resp, Rx: scratch}})
			if err != nil && !errors.Is(err, vspi.ErrNoPartner) {
				if errors.Is(err, vspi.ErrInterrupted) {
					return nil
				}
				return err
			}
			continue
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil
		}
	}
}
