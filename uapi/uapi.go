// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package uapi provides the Linux spidev UAPI definitions for vspi.
//
// These are the ioctl command codes, mode bits and the spi_ioc_transfer
// descriptor defined in include/uapi/linux/spi/spidev.h, so the virtual bus
// can decode requests built for a real spidev node.
package uapi

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Magic is the ioctl type shared by all spidev commands.
const Magic = 'k'

// TransferSize is the encoded size of a single Transfer descriptor.
const TransferSize = 32

// Cmd is an ioctl command code.
type Cmd uint32

// Dir returns the direction bits of the command, from the user's perspective.
func (c Cmd) Dir() Dir {
	return Dir((uintptr(c) >> iocDirShift) & (1<<iocDirBits - 1))
}

// Type returns the type, or magic, of the command.
func (c Cmd) Type() uint8 {
	return uint8(uintptr(c) >> iocTypeShift)
}

// NR returns the command number.
func (c Cmd) NR() uint8 {
	return uint8(uintptr(c) >> iocNRShift)
}

// Size returns the size of the argument encoded in the command.
func (c Cmd) Size() int {
	return int((uintptr(c) >> iocSizeShift) & (1<<iocSizeBits - 1))
}

// Dir is the direction of an ioctl.
type Dir uint8

const (
	// DirWrite indicates the user writes the argument to the driver.
	DirWrite Dir = iocWrite

	// DirRead indicates the driver writes the argument back to the user.
	DirRead Dir = iocRead
)

// Command numbers within the Magic type.
const (
	nrMessage     = 0
	nrMode        = 1
	nrLSBFirst    = 2
	nrBitsPerWord = 3
	nrMaxSpeedHz  = 4
	nrMode32      = 5
)

// The fixed size spidev commands.
var (
	RdModeIoctl        Cmd
	WrModeIoctl        Cmd
	RdLSBFirstIoctl    Cmd
	WrLSBFirstIoctl    Cmd
	RdBitsPerWordIoctl Cmd
	WrBitsPerWordIoctl Cmd
	RdMaxSpeedHzIoctl  Cmd
	WrMaxSpeedHzIoctl  Cmd
	RdMode32Ioctl      Cmd
	WrMode32Ioctl      Cmd
)

func init() {
	RdModeIoctl = ior(Magic, nrMode, 1)
	WrModeIoctl = iow(Magic, nrMode, 1)
	RdLSBFirstIoctl = ior(Magic, nrLSBFirst, 1)
	WrLSBFirstIoctl = iow(Magic, nrLSBFirst, 1)
	RdBitsPerWordIoctl = ior(Magic, nrBitsPerWord, 1)
	WrBitsPerWordIoctl = iow(Magic, nrBitsPerWord, 1)
	RdMaxSpeedHzIoctl = ior(Magic, nrMaxSpeedHz, 4)
	WrMaxSpeedHzIoctl = iow(Magic, nrMaxSpeedHz, 4)
	RdMode32Ioctl = ior(Magic, nrMode32, 4)
	WrMode32Ioctl = iow(Magic, nrMode32, 4)
}

// MessageIoctl returns the SPI_IOC_MESSAGE(n) command for n transfers.
//
// Returns the command for 0 transfers if the encoded size would overflow the
// size field.
func MessageIoctl(n int) Cmd {
	size := n * TransferSize
	if n < 0 || size >= 1<<iocSizeBits {
		size = 0
	}
	return iow(Magic, nrMessage, uintptr(size))
}

// IsMessage returns true if the command number is that of SPI_IOC_MESSAGE,
// irrespective of direction and size.
func (c Cmd) IsMessage() bool {
	return c.Type() == Magic && c.NR() == nrMessage
}

// Mode is the set of SPI mode flags.
type Mode uint32

const (
	// ModeCPHA samples data on the trailing clock edge.
	ModeCPHA Mode = 1 << iota

	// ModeCPOL idles the clock high.
	ModeCPOL

	// ModeCSHigh makes chip select active high.
	ModeCSHigh

	// ModeLSBFirst shifts the least significant bit first.
	ModeLSBFirst

	// Mode3Wire shares SI/SO on a single line.
	Mode3Wire

	// ModeLoop enables loopback.
	ModeLoop

	// ModeNoCS indicates a single device on the bus with no chip select.
	ModeNoCS

	// ModeReady indicates the slave pulls low to pause.
	ModeReady
)

// ModeMask is the set of mode bits recognised by the virtual bus.
const ModeMask = ModeCPHA | ModeCPOL | ModeCSHigh | ModeLSBFirst |
	Mode3Wire | ModeLoop | ModeNoCS | ModeReady

// The standard SPI clock modes.
const (
	Mode0 = Mode(0)
	Mode1 = ModeCPHA
	Mode2 = ModeCPOL
	Mode3 = ModeCPOL | ModeCPHA
)

// IsLSBFirst returns true if the mode shifts the least significant bit first.
func (m Mode) IsLSBFirst() bool {
	return m&ModeLSBFirst != 0
}

// Transfer is the spi_ioc_transfer descriptor.
//
// TxBuf and RxBuf are addresses in the caller's address space, and zero if
// absent.
type Transfer struct {
	TxBuf uint64
	RxBuf uint64

	// The length of both tx and rx buffers, in bytes.
	Len uint32

	// Overrides the device speed for this transfer, if non-zero.
	SpeedHz uint32

	// Delay after the last bit of this transfer before the next.
	DelayUsecs uint16

	// Overrides the device word size for this transfer, if non-zero.
	BitsPerWord uint8

	// Deselect the device before starting the next transfer.
	CSChange uint8

	TxNBits        uint8
	RxNBits        uint8
	WordDelayUsecs uint8
	_              uint8
}

// DecodeTransfers decodes a packed array of transfer descriptors, as passed
// to SPI_IOC_MESSAGE.
//
// The length of b must be a multiple of TransferSize.
func DecodeTransfers(b []byte) ([]Transfer, error) {
	if len(b)%TransferSize != 0 {
		return nil, ErrInvalidSize
	}
	tt := make([]Transfer, len(b)/TransferSize)
	err := binary.Read(bytes.NewReader(b), nativeEndian, tt)
	if err != nil {
		return nil, err
	}
	return tt, nil
}

// EncodeTransfers encodes transfer descriptors in the layout expected by
// SPI_IOC_MESSAGE.
func EncodeTransfers(tt []Transfer) []byte {
	var buf bytes.Buffer
	buf.Grow(len(tt) * TransferSize)
	// writes to a bytes.Buffer of fixed size structs cannot fail
	binary.Write(&buf, nativeEndian, tt)
	return buf.Bytes()
}

// ErrInvalidSize indicates a descriptor array is not a whole number of
// descriptors.
var ErrInvalidSize = errors.New("size is not a multiple of the transfer descriptor size")
