// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/bits"
	"time"

	"github.com/spf13/cobra"
	"github.com/warthog618/vspi/spi"
)

func init() {
	xferCmd.Flags().IntVarP(&xferOpts.Slave, "slave", "s", 1, "the slave endpoint to transfer with")
	xferCmd.Flags().BoolVarP(&xferOpts.FromSlave, "from-slave", "r", false, "send from the slave to the master")
	xferCmd.Flags().Uint32Var(&xferOpts.SpeedHz, "speed-hz", 0, "clock speed of the sender")
	xferCmd.Flags().Uint8Var(&xferOpts.BitsPerWord, "bits-per-word", 0, "word size of the sender")
	rootCmd.AddCommand(xferCmd)
}

var xferOpts = struct {
	Slave       int
	FromSlave   bool
	SpeedHz     uint32
	BitsPerWord uint8
}{}

var xferCmd = &cobra.Command{
	Use:   "xfer [flags] <hex data>",
	Short: "Transfer data across the bus",
	Long:  `Send the hex encoded data from the master to a slave, or the reverse, and print what was received.`,
	Args:  cobra.ExactArgs(1),
	RunE:  xfer,
}

func xfer(cmd *cobra.Command, args []string) error {
	data, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("can't parse data '%s': %w", args[0], err)
	}
	bus, err := newBus()
	if err != nil {
		return err
	}
	defer bus.Close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	se, err := bus.Endpoint(xferOpts.Slave)
	if err != nil {
		return err
	}
	if se.IsMaster() {
		return fmt.Errorf("endpoint %d is the master", xferOpts.Slave)
	}
	src, dst := bus.Master(), se
	if xferOpts.FromSlave {
		src, dst = dst, src
	}
	rx, err := dst.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := rx.Release(ctx); err != nil {
			logErr(cmd, err)
		}
	}()
	tx, err := spi.Open(ctx, src,
		spi.WithSpeedHz(xferOpts.SpeedHz),
		spi.WithBitsPerWord(xferOpts.BitsPerWord))
	if err != nil {
		return err
	}
	defer tx.Close()
	start := time.Now()
	if err = tx.Tx(ctx, data, nil); err != nil {
		return err
	}
	elapsed := time.Since(start)
	got := make([]byte, len(data))
	n, err := rx.ReadContext(ctx, got)
	if err != nil {
		return err
	}
	got = got[:n]
	fmt.Printf("%s -> %s: %d bytes in %s\n", src.Name(), dst.Name(), len(data), elapsed)
	fmt.Printf("sent:     %s\n", hex.EncodeToString(data))
	fmt.Printf("received: %s\n", hex.EncodeToString(got))
	fmt.Printf("flipped:  %d bits\n", flipped(data, got))
	return nil
}

// flipped returns the number of bits that differ between a and b.
func flipped(a, b []byte) int {
	n := 0
	for i := range a {
		if i >= len(b) {
			n += bits.OnesCount8(a[i])
			continue
		}
		n += bits.OnesCount8(a[i] ^ b[i])
	}
	return n
}

