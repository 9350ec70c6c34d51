// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package vspi is a virtual SPI bus.
//
// A bus is a fixed set of endpoints, the first being the master and the rest
// slaves, that exchange bytes as if connected by a synchronous serial bus.
// Each endpoint behaves like a spidev node: it may be opened by one user at a
// time, configured with mode, word size and clock speed, and used to issue
// reads, writes and segmented full-duplex transfers, either via the typed
// methods of Handle or via spidev ioctl commands.
//
// Transfers are throttled to the bus speed and subject to an injectable bit
// error rate.
//
// Example of use:
//
//	bus, err := vspi.New(vspi.DefaultParams())
//	if err != nil {
//		panic(err)
//	}
//	defer bus.Close()
//	master, _ := bus.Endpoint(0)
//	slave, _ := bus.Endpoint(1)
//	s, _ := slave.Open(ctx)
//	defer s.Release(ctx)
//	m, _ := master.Open(ctx)
//	defer m.Release(ctx)
//	m.Write([]byte{1, 2, 3, 4})
//	buf := make([]byte, 4)
//	n, _ := s.Read(buf)
package vspi

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Registry is a virtual SPI bus and the endpoints attached to it.
type Registry struct {
	params Params
	logger *zap.Logger
	clock  clock.Clock
	nh     []NodeHandler

	eps []*Endpoint

	// shared by all transfers on the bus.
	throttle *throttle
	injector *injector
	budget   *budget

	// mutex covers closed.
	mu     sync.Mutex
	closed bool
}

// New creates a bus with the given parameters.
//
// Endpoint 0 is the master, the remainder are slaves.
func New(p Params, oo ...Option) (*Registry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Endpoints > MaxEndpoints {
		return nil, fmt.Errorf("%w: %d endpoints exceeds the %d available minors",
			ErrResourceExhausted, p.Endpoints, MaxEndpoints)
	}
	opts := options{
		logger: zap.NewNop(),
		clock:  clock.New(),
	}
	for _, o := range oo {
		o.applyOption(&opts)
	}
	if opts.source == nil {
		opts.source = rand.NewSource(time.Now().UnixNano())
	}
	r := &Registry{
		params:   p,
		logger:   opts.logger.Named("vspi"),
		clock:    opts.clock,
		nh:       opts.nh,
		throttle: newThrottle(opts.clock, p.SpeedBytesPerSecond, p.MaxBytesPerRequest),
		injector: newInjector(opts.source, p.BitErrorProbability()),
		budget:   newBudget(opts.budget),
	}
	r.eps = make([]*Endpoint, p.Endpoints)
	for i := range r.eps {
		r.eps[i] = newEndpoint(r, i)
	}
	if err := r.notify(NodeAdd); err != nil {
		return nil, err
	}
	r.logger.Info("bus created",
		zap.Uint("endpoints", p.Endpoints),
		zap.Uint("ber", p.BitErrorRate),
		zap.Uint("speed", p.SpeedBytesPerSecond),
		zap.Uint("maxreq", p.MaxBytesPerRequest))
	return r, nil
}

// Params returns the parameters of the bus.
func (r *Registry) Params() Params {
	return r.params
}

// Endpoints returns the number of endpoints on the bus.
func (r *Registry) Endpoints() int {
	return len(r.eps)
}

// Endpoint returns the endpoint with the given id.
func (r *Registry) Endpoint(id int) (*Endpoint, error) {
	if id < 0 || id >= len(r.eps) {
		return nil, fmt.Errorf("%w: id %d, bus has %d endpoints",
			ErrNotFound, id, len(r.eps))
	}
	return r.eps[id], nil
}

// Master returns the master endpoint.
func (r *Registry) Master() *Endpoint {
	return r.eps[0]
}

// Close tears down the bus.
//
// Any buffers still held by endpoints are freed, whether or not their users
// have released them. Subsequent opens fail with ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	for _, e := range r.eps {
		e.teardown()
	}
	r.logger.Info("bus closed")
	return r.notify(NodeRemove)
}

func (r *Registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Registry) notify(action NodeAction) (err error) {
	for _, e := range r.eps {
		evt := NodeEvent{Action: action, Minor: e.id, Name: e.Name(), Master: e.master}
		for _, nh := range r.nh {
			err = multierr.Append(err, nh(evt))
		}
	}
	return err
}

// NodeAction is the change to a node reported in a NodeEvent.
type NodeAction int

const (
	// NodeAdd indicates the node has been created.
	NodeAdd NodeAction = iota + 1

	// NodeRemove indicates the node has been removed.
	NodeRemove
)

func (a NodeAction) String() string {
	switch a {
	case NodeAdd:
		return "add"
	case NodeRemove:
		return "remove"
	}
	return "unknown"
}

// NodeEvent describes the addition or removal of an endpoint node.
type NodeEvent struct {
	Action NodeAction

	// The minor number of the node, which is the endpoint id.
	Minor int

	// The device name of the node, e.g. vspi0.
	Name string

	// True if the node is the bus master.
	Master bool
}
