// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package vspi

import (
	"math/rand"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Option defines the interface required to provide a Registry option.
type Option interface {
	applyOption(*options)
}

type options struct {
	logger *zap.Logger
	clock  clock.Clock
	source rand.Source
	budget int
	nh     []NodeHandler
}

// LoggerOption provides the logger for the bus.
type LoggerOption struct {
	logger *zap.Logger
}

// WithLogger provides the logger used for bus diagnostics.
//
// The default is a no-op logger.
func WithLogger(logger *zap.Logger) LoggerOption {
	return LoggerOption{logger}
}

func (o LoggerOption) applyOption(opts *options) {
	opts.logger = o.logger
}

// ClockOption provides the clock used to throttle transfers.
type ClockOption struct {
	clock clock.Clock
}

// WithClock provides the clock used to time simulated transfers.
//
// The default is the system clock.
func WithClock(c clock.Clock) ClockOption {
	return ClockOption{c}
}

func (o ClockOption) applyOption(opts *options) {
	opts.clock = o.clock
}

// SeedOption seeds the bit error generator.
type SeedOption int64

// WithSeed seeds the bit error generator so injected errors are repeatable.
func WithSeed(seed int64) SeedOption {
	return SeedOption(seed)
}

func (o SeedOption) applyOption(opts *options) {
	opts.source = rand.NewSource(int64(o))
}

// BufferBudgetOption limits the memory available for endpoint buffers.
type BufferBudgetOption int

// WithBufferBudget limits the total bytes of endpoint buffers allocated at
// any one time.
//
// Opening an endpoint fails with ErrResourceExhausted if its buffers would
// exceed the budget. The default is unlimited.
func WithBufferBudget(bytes int) BufferBudgetOption {
	return BufferBudgetOption(bytes)
}

func (o BufferBudgetOption) applyOption(opts *options) {
	opts.budget = int(o)
}

// NodeHandler receives notification of endpoint nodes being added to or
// removed from the system.
type NodeHandler func(NodeEvent) error

// NodeHandlerOption adds a NodeHandler.
type NodeHandlerOption struct {
	nh NodeHandler
}

// WithNodeHandler adds a handler called for each endpoint node as the
// Registry is created and closed.
func WithNodeHandler(nh NodeHandler) NodeHandlerOption {
	return NodeHandlerOption{nh}
}

func (o NodeHandlerOption) applyOption(opts *options) {
	opts.nh = append(opts.nh, o.nh)
}
