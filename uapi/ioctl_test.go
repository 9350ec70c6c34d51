// SPDX-FileCopyrightText: 2020 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build arm || arm64 || 386 || amd64 || riscv64 || s390x || loong64
// +build arm arm64 386 amd64 riscv64 s390x loong64

package uapi_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warthog618/vspi/uapi"
)

// values from linux/spi/spidev.h as built for the default ioctl layout.
func TestIoctlCodes(t *testing.T) {
	patterns := []struct {
		name string
		cmd  uapi.Cmd
		code uint32
	}{
		{"rd mode", uapi.RdModeIoctl, 0x80016b01},
		{"wr mode", uapi.WrModeIoctl, 0x40016b01},
		{"rd lsb first", uapi.RdLSBFirstIoctl, 0x80016b02},
		{"wr lsb first", uapi.WrLSBFirstIoctl, 0x40016b02},
		{"rd bits per word", uapi.RdBitsPerWordIoctl, 0x80016b03},
		{"wr bits per word", uapi.WrBitsPerWordIoctl, 0x40016b03},
		{"rd max speed", uapi.RdMaxSpeedHzIoctl, 0x80046b04},
		{"wr max speed", uapi.WrMaxSpeedHzIoctl, 0x40046b04},
		{"rd mode32", uapi.RdMode32Ioctl, 0x80046b05},
		{"wr mode32", uapi.WrMode32Ioctl, 0x40046b05},
		{"message 1", uapi.MessageIoctl(1), 0x40206b00},
		{"message 2", uapi.MessageIoctl(2), 0x40406b00},
		{"message 0", uapi.MessageIoctl(0), 0x40006b00},
		{"message overflow", uapi.MessageIoctl(512), 0x40006b00},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			assert.Equal(t, fmt.Sprintf("0x%08x", p.code),
				fmt.Sprintf("0x%08x", uint32(p.cmd)))
		}
		t.Run(p.name, tf)
	}
}
