// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package vspi

import (
	"context"
	"fmt"
	"time"

	"github.com/warthog618/vspi/uapi"
)

// Op is a decoded spidev control operation.
//
// The set of operations is closed - it is one of the types below.
type Op interface {
	isOp()
}

// ReadMode reads the mode flags, as 8 bits or, if Wide, 32 bits.
type ReadMode struct{ Wide bool }

// WriteMode writes the mode flags, as 8 bits or, if Wide, 32 bits.
type WriteMode struct{ Wide bool }

// ReadLSBFirst reads the bit order.
type ReadLSBFirst struct{}

// WriteLSBFirst writes the bit order.
type WriteLSBFirst struct{}

// ReadBitsPerWord reads the word size.
type ReadBitsPerWord struct{}

// WriteBitsPerWord writes the word size.
type WriteBitsPerWord struct{}

// ReadMaxSpeedHz reads the clock speed.
type ReadMaxSpeedHz struct{}

// WriteMaxSpeedHz writes the clock speed.
type WriteMaxSpeedHz struct{}

// Message performs N transfer segments.
type Message struct{ N int }

func (ReadMode) isOp()         {}
func (WriteMode) isOp()        {}
func (ReadLSBFirst) isOp()     {}
func (WriteLSBFirst) isOp()    {}
func (ReadBitsPerWord) isOp()  {}
func (WriteBitsPerWord) isOp() {}
func (ReadMaxSpeedHz) isOp()   {}
func (WriteMaxSpeedHz) isOp()  {}
func (Message) isOp()          {}

// DecodeOp decodes a spidev ioctl command.
//
// Fails with ErrNotSupported for commands outside the spidev vocabulary,
// and ErrInvalidArgument for a message that is not a whole number of
// transfer descriptors.
func DecodeOp(cmd uapi.Cmd) (Op, error) {
	switch cmd {
	case uapi.RdModeIoctl:
		return ReadMode{}, nil
	case uapi.RdMode32Ioctl:
		return ReadMode{Wide: true}, nil
	case uapi.WrModeIoctl:
		return WriteMode{}, nil
	case uapi.WrMode32Ioctl:
		return WriteMode{Wide: true}, nil
	case uapi.RdLSBFirstIoctl:
		return ReadLSBFirst{}, nil
	case uapi.WrLSBFirstIoctl:
		return WriteLSBFirst{}, nil
	case uapi.RdBitsPerWordIoctl:
		return ReadBitsPerWord{}, nil
	case uapi.WrBitsPerWordIoctl:
		return WriteBitsPerWord{}, nil
	case uapi.RdMaxSpeedHzIoctl:
		return ReadMaxSpeedHz{}, nil
	case uapi.WrMaxSpeedHzIoctl:
		return WriteMaxSpeedHz{}, nil
	}
	// spidev also rejects messages with the read direction.
	if !cmd.IsMessage() || cmd.Dir() != uapi.DirWrite {
		return nil, fmt.Errorf("%w: 0x%08x", ErrNotSupported, uint32(cmd))
	}
	size := cmd.Size()
	if size%uapi.TransferSize != 0 {
		return nil, fmt.Errorf("%w: message size %d", ErrInvalidArgument, size)
	}
	return Message{N: size / uapi.TransferSize}, nil
}

// Ioctl performs a spidev ioctl on the endpoint.
//
// The arg is an address in mem. It is checked to be accessible, as implied
// by the direction of cmd, before anything else is done. Returns the number
// of bytes transferred for messages, and 0 otherwise.
func (h *Handle) Ioctl(ctx context.Context, mem Memory, cmd uapi.Cmd, arg uint64) (int, error) {
	if cmd.Type() != uapi.Magic {
		return 0, fmt.Errorf("%w: type 0x%02x", ErrNotSupported, cmd.Type())
	}
	size := cmd.Size()
	if cmd.Dir()&uapi.DirRead != 0 && !mem.AccessOK(arg, size, true) {
		return 0, ErrFaultyAddress
	}
	if cmd.Dir()&uapi.DirWrite != 0 && !mem.AccessOK(arg, size, false) {
		return 0, ErrFaultyAddress
	}
	op, err := DecodeOp(cmd)
	if err != nil {
		return 0, err
	}
	return h.Do(ctx, mem, op, arg)
}

// Do performs a decoded control operation.
func (h *Handle) Do(ctx context.Context, mem Memory, op Op, arg uint64) (int, error) {
	switch o := op.(type) {
	case ReadMode:
		m, err := h.Mode(ctx)
		if err != nil {
			return 0, err
		}
		if o.Wide {
			return 0, putU32(mem, arg, uint32(m))
		}
		return 0, putU8(mem, arg, uint8(m))
	case WriteMode:
		var v uint32
		var err error
		if o.Wide {
			v, err = getU32(mem, arg)
		} else {
			var v8 uint8
			v8, err = getU8(mem, arg)
			v = uint32(v8)
		}
		if err != nil {
			return 0, err
		}
		return 0, h.SetMode(ctx, uapi.Mode(v))
	case ReadLSBFirst:
		lsb, err := h.LSBFirst(ctx)
		if err != nil {
			return 0, err
		}
		var v uint8
		if lsb {
			v = 1
		}
		return 0, putU8(mem, arg, v)
	case WriteLSBFirst:
		v, err := getU8(mem, arg)
		if err != nil {
			return 0, err
		}
		return 0, h.SetLSBFirst(ctx, v != 0)
	case ReadBitsPerWord:
		bpw, err := h.BitsPerWord(ctx)
		if err != nil {
			return 0, err
		}
		return 0, putU8(mem, arg, bpw)
	case WriteBitsPerWord:
		v, err := getU8(mem, arg)
		if err != nil {
			return 0, err
		}
		return 0, h.SetBitsPerWord(ctx, v)
	case ReadMaxSpeedHz:
		hz, err := h.MaxSpeedHz(ctx)
		if err != nil {
			return 0, err
		}
		return 0, putU32(mem, arg, hz)
	case WriteMaxSpeedHz:
		v, err := getU32(mem, arg)
		if err != nil {
			return 0, err
		}
		return 0, h.SetMaxSpeedHz(ctx, v)
	case Message:
		return h.message(ctx, mem, o.N, arg)
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotSupported, op)
	}
}

// message copies in n transfer descriptors from arg and performs them.
func (h *Handle) message(ctx context.Context, mem Memory, n int, arg uint64) (int, error) {
	if n == 0 {
		return 0, nil
	}
	b, err := mem.CopyIn(arg, n*uapi.TransferSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFaultyAddress, err)
	}
	tt, err := uapi.DecodeTransfers(b)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	segs := make([]segment, len(tt))
	for i, t := range tt {
		segs[i] = segmentFromUapi(mem, t)
	}
	return h.e.r.transfer(ctx, h, segs)
}

func segmentFromUapi(mem Memory, t uapi.Transfer) segment {
	s := segment{
		len:         int(t.Len),
		speedHz:     t.SpeedHz,
		bitsPerWord: t.BitsPerWord,
		delay:       time.Duration(t.DelayUsecs) * time.Microsecond,
		csChange:    t.CSChange != 0,
	}
	if t.TxBuf != 0 {
		addr := t.TxBuf
		s.tx = func(dst []byte) error {
			b, err := mem.CopyIn(addr, len(dst))
			if err != nil {
				return err
			}
			copy(dst, b)
			return nil
		}
	}
	if t.RxBuf != 0 {
		addr := t.RxBuf
		s.rx = func(src []byte) error {
			return mem.CopyOut(addr, src)
		}
	}
	return s
}

func getU8(mem Memory, addr uint64) (uint8, error) {
	b, err := mem.CopyIn(addr, 1)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFaultyAddress, err)
	}
	return b[0], nil
}

func putU8(mem Memory, addr uint64, v uint8) error {
	if err := mem.CopyOut(addr, []byte{v}); err != nil {
		return fmt.Errorf("%w: %v", ErrFaultyAddress, err)
	}
	return nil
}

func getU32(mem Memory, addr uint64) (uint32, error) {
	b, err := mem.CopyIn(addr, 4)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFaultyAddress, err)
	}
	return uapi.NativeEndian().Uint32(b), nil
}

func putU32(mem Memory, addr uint64, v uint32) error {
	b := make([]byte, 4)
	uapi.NativeEndian().PutUint32(b, v)
	if err := mem.CopyOut(addr, b); err != nil {
		return fmt.Errorf("%w: %v", ErrFaultyAddress, err)
	}
	return nil
}
