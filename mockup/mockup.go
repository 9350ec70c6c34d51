// SPDX-License-Identifier: MIT
//
// Copyright © 2019 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

// Package mockup provides a virtual SPI bus harness for testing vspi, and
// for testing code that uses vspi.
//
// A Mockup bundles a bus with a simulated user address space, for issuing
// ioctls, and the node uevents announced as the bus is created and removed.
package mockup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pilebones/go-udev/netlink"
	"github.com/warthog618/vspi"
	"github.com/warthog618/vspi/uapi"
	"go.uber.org/multierr"
)

// Mockup represents a virtual SPI bus being mocked.
type Mockup struct {
	mu    sync.Mutex
	bus   *vspi.Registry
	space *Space
	nn    []Node
	rmMon *udevMonitor
}

// Node represents a single endpoint node, as announced by udev.
type Node struct {
	Name    string
	Minor   int
	Master  bool
	DevPath string
}

// New creates a new Mockup.
//
// The bus is created with the params and options provided, and the nodes
// announced for it collected.
func New(p vspi.Params, options ...vspi.Option) (*Mockup, error) {
	if p.Endpoints == 0 {
		p.Endpoints = vspi.DefaultParams().Endpoints
	}
	addMon, err := newUdevMonitor(netlink.ADD)
	if err != nil {
		return nil, err
	}
	rmMon, err := newUdevMonitor(netlink.REMOVE)
	if err != nil {
		return nil, err
	}
	nh := func(evt vspi.NodeEvent) error {
		return multierr.Append(addMon.handle(evt), rmMon.handle(evt))
	}
	options = append(options, vspi.WithNodeHandler(nh))
	bus, err := vspi.New(p, options...)
	if err != nil {
		return nil, err
	}
	nn, err := addMon.Nodes(bus.Endpoints())
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to collect nodes: %w", err)
	}
	m := Mockup{bus: bus, space: NewSpace(), nn: nn, rmMon: rmMon}
	return &m, nil
}

// Bus returns the mocked bus.
func (m *Mockup) Bus() *vspi.Registry {
	return m.bus
}

// Space returns the address space used for ioctls.
func (m *Mockup) Space() *Space {
	return m.space
}

// Node returns the node indicated by num.
func (m *Mockup) Node(num int) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if num < 0 || num >= len(m.nn) {
		return nil, ErrorIndexRange{num, len(m.nn)}
	}
	return &m.nn[num], nil
}

// Nodes returns the number of nodes mocked.
func (m *Mockup) Nodes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nn)
}

// Open opens the endpoint behind the node indicated by num.
func (m *Mockup) Open(ctx context.Context, num int) (*vspi.Handle, error) {
	n, err := m.Node(num)
	if err != nil {
		return nil, err
	}
	e, err := m.bus.Endpoint(n.Minor)
	if err != nil {
		return nil, err
	}
	return e.Open(ctx)
}

// Ioctl performs an ioctl on the handle using the mockup address space.
func (m *Mockup) Ioctl(ctx context.Context, h *vspi.Handle, cmd uapi.Cmd, arg uint64) (int, error) {
	return h.Ioctl(ctx, m.space, cmd, arg)
}

// Close removes the bus and confirms all its nodes were removed.
func (m *Mockup) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bus == nil {
		return nil
	}
	err := m.bus.Close()
	rn, rerr := m.rmMon.Nodes(len(m.nn))
	if rerr == nil && len(rn) != len(m.nn) {
		rerr = errors.New("not all nodes removed")
	}
	m.bus = nil
	m.nn = []Node{}
	return multierr.Combine(err, rerr)
}

// ErrorIndexRange indicates the requested index is beyond the limit of the array.
type ErrorIndexRange struct {
	Req   int
	Limit int
}

func (e ErrorIndexRange) Error() string {
	return fmt.Sprintf("index out of range - got %d, limit is %d.", e.Req, e.Limit)
}
