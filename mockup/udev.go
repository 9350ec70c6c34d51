// SPDX-License-Identifier: MIT
//
// SPDX-FileCopyrightText: © 2019 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package mockup

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/warthog618/vspi"
)

// udevMonitor renders node events from the bus as the uevents the kernel
// would emit for the nodes, and queues those matching the vspi subsystem.
type udevMonitor struct {
	matcher *netlink.RuleDefinition
	queue   chan netlink.UEvent
}

const subsystem = "vspi"

func newUdevMonitor(action netlink.KObjAction) (*udevMonitor, error) {
	a := string(action)
	matcher := &netlink.RuleDefinition{Action: &a,
		Env: map[string]string{
			"SUBSYSTEM": subsystem,
			"DEVPATH":   "/devices/virtual/vspi/vspi\\d+",
		}}
	if err := matcher.Compile(); err != nil {
		return nil, fmt.Errorf("unable to compile uevent matcher: %w", err)
	}
	mon := udevMonitor{
		matcher: matcher,
		queue:   make(chan netlink.UEvent, vspi.MaxEndpoints),
	}
	return &mon, nil
}

// handle is a vspi.NodeHandler.
func (m *udevMonitor) handle(evt vspi.NodeEvent) error {
	ue := toUEvent(evt)
	if !m.matcher.Evaluate(ue) {
		return nil
	}
	select {
	case m.queue <- ue:
		return nil
	default:
		return errors.New("uevent queue overflow")
	}
}

func toUEvent(evt vspi.NodeEvent) netlink.UEvent {
	action := netlink.ADD
	if evt.Action == vspi.NodeRemove {
		action = netlink.REMOVE
	}
	role := "slave"
	if evt.Master {
		role = "master"
	}
	devpath := "/devices/virtual/vspi/" + evt.Name
	return netlink.UEvent{
		Action: action,
		KObj:   devpath,
		Env: map[string]string{
			"ACTION":    string(action),
			"DEVPATH":   devpath,
			"SUBSYSTEM": subsystem,
			"DEVNAME":   "/dev/" + evt.Name,
			"MINOR":     strconv.Itoa(evt.Minor),
			"VSPI_ROLE": role,
		},
	}
}

// Nodes collects the nodes described by the next n queued events.
func (m *udevMonitor) Nodes(n int) ([]Node, error) {
	evts := make([]netlink.UEvent, n)
	for i := range evts {
		select {
		case evts[i] = <-m.queue:
		case <-time.After(time.Second):
			return nil, errors.New("timeout waiting for udev events")
		}
	}
	sort.Slice(evts, func(i, j int) bool {
		return minorOf(evts[i]) < minorOf(evts[j])
	})
	// make nodes from udev events
	nn := make([]Node, n)
	for i, evt := range evts {
		devpath := evt.Env["DEVNAME"]
		name := devpath[len("/dev/"):]
		var num int
		_, err := fmt.Sscanf(name, "vspi%d", &num)
		if err != nil {
			return nil, fmt.Errorf("failed to parse node num: %s", err)
		}
		nn[i] = Node{
			Name:    name,
			Minor:   num,
			Master:  evt.Env["VSPI_ROLE"] == "master",
			DevPath: devpath,
		}
	}
	return nn, nil
}

func minorOf(evt netlink.UEvent) int {
	minor, _ := strconv.Atoi(evt.Env["MINOR"])
	return minor
}
