// SPDX-License-Identifier: MIT
//
// Copyright © 2019 Kent Gibson <warthog618@gmail.com>.

package vspi_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/warthog618/vspi"
	"github.com/warthog618/vspi/uapi"
)

func benchBus(b *testing.B, ber uint) (*vspi.Registry, *vspi.Handle, *vspi.Handle) {
	bus, err := vspi.New(vspi.Params{
		BitErrorRate:       ber,
		MaxBytesPerRequest: 4096,
		Endpoints:          2,
	}, vspi.WithSeed(1))
	require.Nil(b, err)
	se, _ := bus.Endpoint(1)
	s, err := se.Open(ctx)
	require.Nil(b, err)
	m, err := bus.Master().Open(ctx)
	require.Nil(b, err)
	return bus, m, s
}

func BenchmarkWriteRead(b *testing.B) {
	bus, m, s := benchBus(b, 0)
	defer bus.Close()
	tx := make([]byte, 256)
	rx := make([]byte, 256)
	b.SetBytes(int64(len(tx)))
	for i := 0; i < b.N; i++ {
		m.Write(tx)
		s.Read(rx)
	}
}

func BenchmarkTransfer(b *testing.B) {
	bus, m, _ := benchBus(b, 0)
	defer bus.Close()
	xfers := []vspi.Transfer{
		{Tx: make([]byte, 4)},
		{Rx: make([]byte, 252)},
	}
	b.SetBytes(256)
	for i := 0; i < b.N; i++ {
		m.Transfer(ctx, xfers)
	}
}

func BenchmarkTransferBitErrors(b *testing.B) {
	bus, m, _ := benchBus(b, 1000)
	defer bus.Close()
	tx := make([]byte, 256)
	rx := make([]byte, 256)
	xfers := []vspi.Transfer{{Tx: tx, Rx: rx}}
	b.SetBytes(256)
	for i := 0; i < b.N; i++ {
		m.Transfer(ctx, xfers)
	}
}

func BenchmarkSetMode(b *testing.B) {
	bus, m, _ := benchBus(b, 0)
	defer bus.Close()
	for i := 0; i < b.N; i++ {
		m.SetMode(ctx, uapi.Mode3)
	}
}
