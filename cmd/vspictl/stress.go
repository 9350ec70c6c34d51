// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"github.com/warthog618/vspi"
	"golang.org/x/sync/errgroup"
)

func init() {
	stressCmd.Flags().IntVarP(&stressOpts.Count, "count", "n", 100, "number of messages to send")
	stressCmd.Flags().IntVarP(&stressOpts.Size, "size", "s", 0, "message size (0 for max request)")
	stressCmd.Flags().DurationVarP(&stressOpts.Timeout, "timeout", "t", 0, "abort after this period")
	rootCmd.AddCommand(stressCmd)
}

var stressOpts = struct {
	Count   int
	Size    int
	Timeout time.Duration
}{}

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Measure bus throughput and error rate",
	Long:  `Stream random messages from the master to a slave and report the observed throughput and bit error rate.`,
	RunE:  stress,
}

type stats struct {
	bytes   int
	flipped int
}

func stress(cmd *cobra.Command, args []string) error {
	bus, err := newBus()
	if err != nil {
		return err
	}
	defer bus.Close()
	size := stressOpts.Size
	if size <= 0 || uint(size) > bus.Params().MaxBytesPerRequest {
		size = int(bus.Params().MaxBytesPerRequest)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if stressOpts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stressOpts.Timeout)
		defer cancel()
	}
	se, err := bus.Endpoint(1)
	if err != nil {
		return err
	}
	s, err := se.Open(ctx)
	if err != nil {
		return err
	}
	defer s.Release(context.Background())
	m, err := bus.Master().Open(ctx)
	if err != nil {
		return err
	}
	defer m.Release(context.Background())

	sent := make(chan []byte)
	done := make(chan struct{})
	var st stats
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(sent)
		return send(gctx, m, size, sent, done)
	})
	g.Go(func() error {
		return receive(gctx, s, sent, done, &st)
	})
	err = g.Wait()
	elapsed := time.Since(start)
	fmt.Printf("%d bytes in %s (%.0f bytes/s)\n",
		st.bytes, elapsed, float64(st.bytes)/elapsed.Seconds())
	if st.bytes > 0 {
		fmt.Printf("%d bits flipped, %.1f ppm\n",
			st.flipped, float64(st.flipped)*1e6/float64(st.bytes*8))
	}
	return err
}

func send(ctx context.Context, m *vspi.Handle, size int, sent chan<- []byte, done <-chan struct{}) error {
	// master receives the slave's idle bytes, which are discarded.
	scratch := make([]byte, size)
	for i := 0; i < stressOpts.Count; i++ {
		data := make([]byte, size)
		rand.Read(data)
		_, err := m.Transfer(ctx, []vspi.Transfer{{Tx: data, Rx: scratch}})
		if err != nil {
			return err
		}
		select {
		case sent <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func receive(ctx context.Context, s *vspi.Handle, sent <-chan []byte, done chan<- struct{}, st *stats) error {
	for data := range sent {
		got := make([]byte, len(data))
		n, err := s.ReadContext(ctx, got)
		if err != nil {
			return err
		}
		if n != len(data) {
			return fmt.Errorf("short read: expected %d bytes, got %d", len(data), n)
		}
		st.bytes += n
		st.flipped += flipped(data, got)
		select {
		case done <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
