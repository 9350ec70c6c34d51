// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package vspi

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warthog618/vspi/uapi"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Endpoint is a single participant on the bus.
type Endpoint struct {
	r      *Registry
	logger *zap.Logger

	// The minor number of the endpoint.
	id int

	// Endpoint 0 is the master, all others are slaves.
	master bool

	// gate serializes all operations that touch the fields below it.
	gate *semaphore.Weighted

	// mirrors openers for partner discovery without holding the gate.
	open atomic.Bool

	openers int
	config  Config

	// rx is the receive latch, holding rxLen bytes delivered from the bus
	// that have not yet been read.
	rx    []byte
	rxLen int

	// tx holds the bytes most recently shifted out by this endpoint.
	tx []byte
}

// Config contains the SPI configuration of an endpoint.
type Config struct {
	// The SPI mode flags, including the bit order.
	Mode uapi.Mode

	// The word size in bits. Zero implies 8.
	BitsPerWord uint8

	// The maximum clock speed. Zero implies the bus speed.
	MaxSpeedHz uint32
}

func newEndpoint(r *Registry, id int) *Endpoint {
	e := &Endpoint{
		r:      r,
		id:     id,
		master: id == 0,
		gate:   semaphore.NewWeighted(1),
	}
	e.logger = r.logger.With(zap.String("node", e.Name()))
	return e
}

// ID returns the minor number of the endpoint.
func (e *Endpoint) ID() int {
	return e.id
}

// IsMaster returns true if the endpoint is the bus master.
func (e *Endpoint) IsMaster() bool {
	return e.master
}

// Name returns the device name of the endpoint.
func (e *Endpoint) Name() string {
	return fmt.Sprintf("vspi%d", e.id)
}

// IsOpen returns true if the endpoint currently has a user.
func (e *Endpoint) IsOpen() bool {
	return e.open.Load()
}

func (e *Endpoint) role() string {
	if e.master {
		return "master"
	}
	return "slave"
}

func (e *Endpoint) lock(ctx context.Context) error {
	if err := e.gate.Acquire(ctx, 1); err != nil {
		return interrupted(err)
	}
	return nil
}

func (e *Endpoint) unlock() {
	e.gate.Release(1)
}

// Open opens the endpoint for exclusive use.
//
// Only one user may have the endpoint open at a time. Fails with
// ErrTooManyUsers if the endpoint is already open, or ErrInterrupted if the
// ctx is done while waiting for another operation on the endpoint.
func (e *Endpoint) Open(ctx context.Context) (*Handle, error) {
	if e.r.isClosed() {
		return nil, ErrClosed
	}
	if err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.unlock()
	// the bus may have been closed while waiting for the gate.
	if e.r.isClosed() {
		return nil, ErrClosed
	}
	if e.openers != 0 {
		return nil, ErrTooManyUsers
	}
	e.openers++
	if err := e.allocBuffers(); err != nil {
		e.openers--
		return nil, err
	}
	e.open.Store(true)
	e.logger.Debug("open", zap.String("role", e.role()))
	return &Handle{e: e}, nil
}

func (e *Endpoint) allocBuffers() error {
	size := int(e.r.params.MaxBytesPerRequest)
	need := 0
	if e.rx == nil {
		need += size
	}
	if e.tx == nil {
		need += size
	}
	if !e.r.budget.take(need) {
		return fmt.Errorf("%w: %d bytes of buffers for %s",
			ErrResourceExhausted, need, e.Name())
	}
	if e.rx == nil {
		e.rx = make([]byte, size)
		e.rxLen = 0
	}
	if e.tx == nil {
		e.tx = make([]byte, size)
	}
	return nil
}

// freeBuffers releases the buffers, if held.
//
// Must be called with the gate held.
func (e *Endpoint) freeBuffers() {
	if e.rx != nil {
		e.r.budget.give(len(e.rx))
		e.rx = nil
		e.rxLen = 0
	}
	if e.tx != nil {
		e.r.budget.give(len(e.tx))
		e.tx = nil
	}
}

func (e *Endpoint) release(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.unlock()
	if e.openers == 0 {
		e.logger.Warn("release called with no one opened")
	} else {
		e.openers--
	}
	if e.openers == 0 {
		e.freeBuffers()
		e.config = Config{}
		e.open.Store(false)
	}
	e.logger.Debug("release", zap.String("role", e.role()))
	return nil
}

// teardown forcibly closes the endpoint as the bus is removed.
func (e *Endpoint) teardown() {
	// cannot fail without a deadline.
	e.lock(context.Background())
	defer e.unlock()
	if e.openers != 0 {
		e.logger.Warn("bus closed while endpoint open")
	}
	e.openers = 0
	e.freeBuffers()
	e.open.Store(false)
}

// receive appends data from the bus to the receive latch, injecting bit
// errors as it goes.
//
// If the latch overflows the oldest bytes are dropped.
// Must be called with the gate held, and len(data) no more than the latch
// capacity.
func (e *Endpoint) receive(data []byte) {
	if over := e.rxLen + len(data) - len(e.rx); over > 0 {
		e.logger.Warn("receive overrun", zap.Int("dropped", over))
		copy(e.rx, e.rx[over:e.rxLen])
		e.rxLen -= over
	}
	dst := e.rx[e.rxLen : e.rxLen+len(data)]
	copy(dst, data)
	e.r.injector.corrupt(dst)
	e.rxLen += len(data)
}

// Handle is an open endpoint.
//
// The Handle is the capability to operate on the endpoint until it is
// released.
type Handle struct {
	e        *Endpoint
	released atomic.Bool
}

// Endpoint returns the endpoint the handle refers to.
func (h *Handle) Endpoint() *Endpoint {
	return h.e
}

// Release closes the handle.
//
// When the last user releases the endpoint its buffers are freed and its
// configuration reset. Releasing an already released handle has no effect.
// Fails with ErrInterrupted if ctx is done while waiting for an operation in
// progress on the endpoint, in which case the release may be retried.
func (h *Handle) Release(ctx context.Context) error {
	if !h.released.CompareAndSwap(false, true) {
		h.e.logger.Warn("release of released handle")
		return nil
	}
	if err := h.e.release(ctx); err != nil {
		h.released.Store(false)
		return err
	}
	return nil
}

// Close releases the handle, waiting for any operation in progress.
func (h *Handle) Close() error {
	return h.Release(context.Background())
}

// acquire takes the endpoint gate on behalf of the handle.
func (h *Handle) acquire(ctx context.Context) error {
	if h.released.Load() {
		return ErrClosed
	}
	if err := h.e.lock(ctx); err != nil {
		return err
	}
	if h.released.Load() || h.e.openers == 0 {
		h.e.unlock()
		return ErrClosed
	}
	return nil
}

// Config returns the current configuration of the endpoint.
func (h *Handle) Config(ctx context.Context) (Config, error) {
	if err := h.acquire(ctx); err != nil {
		return Config{}, err
	}
	defer h.e.unlock()
	return h.e.config, nil
}

// Mode returns the recognised mode flags of the endpoint.
func (h *Handle) Mode(ctx context.Context) (uapi.Mode, error) {
	if err := h.acquire(ctx); err != nil {
		return 0, err
	}
	defer h.e.unlock()
	return h.e.config.Mode & uapi.ModeMask, nil
}

// SetMode sets the mode flags of the endpoint.
//
// Fails with ErrInvalidArgument if any flag outside uapi.ModeMask is set.
func (h *Handle) SetMode(ctx context.Context, mode uapi.Mode) error {
	if mode&^uapi.ModeMask != 0 {
		return fmt.Errorf("%w: unrecognised mode bits 0x%x",
			ErrInvalidArgument, uint32(mode&^uapi.ModeMask))
	}
	if err := h.acquire(ctx); err != nil {
		return err
	}
	defer h.e.unlock()
	h.e.config.Mode = mode | (h.e.config.Mode &^ uapi.ModeMask)
	return nil
}

// LSBFirst returns true if the endpoint shifts the least significant bit
// first.
func (h *Handle) LSBFirst(ctx context.Context) (bool, error) {
	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	defer h.e.unlock()
	return h.e.config.Mode.IsLSBFirst(), nil
}

// SetLSBFirst sets the bit order of the endpoint.
func (h *Handle) SetLSBFirst(ctx context.Context, lsbFirst bool) error {
	if err := h.acquire(ctx); err != nil {
		return err
	}
	defer h.e.unlock()
	if lsbFirst {
		h.e.config.Mode |= uapi.ModeLSBFirst
	} else {
		h.e.config.Mode &^= uapi.ModeLSBFirst
	}
	return nil
}

// BitsPerWord returns the word size of the endpoint.
func (h *Handle) BitsPerWord(ctx context.Context) (uint8, error) {
	if err := h.acquire(ctx); err != nil {
		return 0, err
	}
	defer h.e.unlock()
	return h.e.config.BitsPerWord, nil
}

// SetBitsPerWord sets the word size of the endpoint.
//
// The value is stored as is. Transfers fail if the word size is not
// supported.
func (h *Handle) SetBitsPerWord(ctx context.Context, bpw uint8) error {
	if err := h.acquire(ctx); err != nil {
		return err
	}
	defer h.e.unlock()
	h.e.config.BitsPerWord = bpw
	return nil
}

// MaxSpeedHz returns the clock speed of the endpoint.
func (h *Handle) MaxSpeedHz(ctx context.Context) (uint32, error) {
	if err := h.acquire(ctx); err != nil {
		return 0, err
	}
	defer h.e.unlock()
	return h.e.config.MaxSpeedHz, nil
}

// SetMaxSpeedHz sets the clock speed of the endpoint.
//
// There is no transceiver to exceed, so any speed is accepted.
func (h *Handle) SetMaxSpeedHz(ctx context.Context, hz uint32) error {
	if err := h.acquire(ctx); err != nil {
		return err
	}
	defer h.e.unlock()
	h.e.config.MaxSpeedHz = hz
	return nil
}

// Read reads bytes received from the bus.
//
// Returns the bytes delivered to the endpoint by earlier transfers, up to
// len(p), and 0 if none are pending.
func (h *Handle) Read(p []byte) (int, error) {
	return h.ReadContext(context.Background(), p)
}

// ReadContext is Read with a context that may interrupt waiting for the
// endpoint.
func (h *Handle) ReadContext(ctx context.Context, p []byte) (int, error) {
	if uint(len(p)) > h.e.r.params.MaxBytesPerRequest {
		return 0, ErrMessageTooLarge
	}
	if err := h.acquire(ctx); err != nil {
		return 0, err
	}
	defer h.e.unlock()
	e := h.e
	n := copy(p, e.rx[:e.rxLen])
	copy(e.rx, e.rx[n:e.rxLen])
	e.rxLen -= n
	return n, nil
}

// Buffered returns the number of received bytes waiting to be read.
func (h *Handle) Buffered(ctx context.Context) (int, error) {
	if err := h.acquire(ctx); err != nil {
		return 0, err
	}
	defer h.e.unlock()
	return h.e.rxLen, nil
}

// Write writes p to the bus partner as a single transfer.
func (h *Handle) Write(p []byte) (int, error) {
	return h.WriteContext(context.Background(), p)
}

// WriteContext is Write with a context that may interrupt the transfer.
func (h *Handle) WriteContext(ctx context.Context, p []byte) (int, error) {
	if uint(len(p)) > h.e.r.params.MaxBytesPerRequest {
		return 0, ErrMessageTooLarge
	}
	return h.e.r.transfer(ctx, h, []segment{{len: len(p), tx: fromSlice(p)}})
}

// budget limits the memory used by endpoint buffers.
type budget struct {
	mu    sync.Mutex
	limit int
	used  int
}

func newBudget(limit int) *budget {
	return &budget{limit: limit}
}

func (b *budget) take(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && b.used+n > b.limit {
		return false
	}
	b.used += n
	return true
}

func (b *budget) give(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used -= n
}

// BuffersAllocated returns the bytes of endpoint buffers currently held
// across the bus.
func (r *Registry) BuffersAllocated() int {
	r.budget.mu.Lock()
	defer r.budget.mu.Unlock()
	return r.budget.used
}
