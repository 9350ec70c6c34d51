// SPDX-License-Identifier: MIT
//
// Copyright © 2019 Kent Gibson <warthog618@gmail.com>.

// Package spi provides a convenience wrapper for a vspi endpoint, configured
// once at open and then used for transactions.
package spi

import (
	"context"

	"github.com/warthog618/vspi"
	"github.com/warthog618/vspi/uapi"
)

// Conn represents an open connection to the bus through a single endpoint.
type Conn struct {
	h           *vspi.Handle
	mode        uapi.Mode
	speedHz     uint32
	bitsPerWord uint8
}

// Open opens the endpoint and applies the options.
//
// If the configuration cannot be applied the endpoint is released.
func Open(ctx context.Context, e *vspi.Endpoint, options ...Option) (*Conn, error) {
	c := Conn{}
	for _, option := range options {
		option(&c)
	}
	h, err := e.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			h.Release(ctx)
		}
	}()
	if err = h.SetMode(ctx, c.mode); err != nil {
		return nil, err
	}
	if err = h.SetMaxSpeedHz(ctx, c.speedHz); err != nil {
		return nil, err
	}
	if err = h.SetBitsPerWord(ctx, c.bitsPerWord); err != nil {
		return nil, err
	}
	c.h = h
	return &c, nil
}

// Close releases the endpoint.
func (c *Conn) Close() error {
	return c.h.Close()
}

// Handle returns the underlying endpoint handle.
func (c *Conn) Handle() *vspi.Handle {
	return c.h
}

// Tx performs a single full-duplex transfer.
//
// w and r must be the same length, or one of them nil.
func (c *Conn) Tx(ctx context.Context, w, r []byte) error {
	_, err := c.h.Transfer(ctx, []vspi.Transfer{{Tx: w, Rx: r}})
	return err
}

// WriteThenRead writes w and then reads into r, as a single message.
func (c *Conn) WriteThenRead(ctx context.Context, w, r []byte) error {
	_, err := c.h.Transfer(ctx, []vspi.Transfer{
		{Tx: w},
		{Rx: r, CSChange: true},
	})
	return err
}

// Option specifies a construction option for the Conn.
type Option func(*Conn)

// WithMode sets the mode flags for the Conn.
func WithMode(mode uapi.Mode) Option {
	return func(c *Conn) {
		c.mode = mode
	}
}

// WithCPOL sets the cpol for the Conn.
func WithCPOL(cpol int) Option {
	return func(c *Conn) {
		if cpol != 0 {
			c.mode |= uapi.ModeCPOL
		} else {
			c.mode &^= uapi.ModeCPOL
		}
	}
}

// WithCPHA sets the cpha for the Conn.
func WithCPHA(cpha int) Option {
	return func(c *Conn) {
		if cpha != 0 {
			c.mode |= uapi.ModeCPHA
		} else {
			c.mode &^= uapi.ModeCPHA
		}
	}
}

// WithSpeedHz sets the clock speed for the Conn.
//
// Zero leaves the bus speed as the only limit.
func WithSpeedHz(hz uint32) Option {
	return func(c *Conn) {
		c.speedHz = hz
	}
}

// WithBitsPerWord sets the word size for the Conn.
func WithBitsPerWord(bpw uint8) Option {
	return func(c *Conn) {
		c.bitsPerWord = bpw
	}
}
