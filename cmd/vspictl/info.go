// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:                   "info",
	Short:                 "Info about the bus",
	Long:                  `Print the bus parameters and the endpoints attached to it.`,
	RunE:                  info,
	DisableFlagsInUseLine: true,
}

func info(cmd *cobra.Command, args []string) error {
	bus, err := newBus()
	if err != nil {
		return err
	}
	defer bus.Close()
	p := bus.Params()
	fmt.Printf("bit error rate:\t%d ppm\n", p.BitErrorRate)
	if p.SpeedBytesPerSecond == 0 {
		fmt.Printf("speed:\t\tunthrottled\n")
	} else {
		fmt.Printf("speed:\t\t%d bytes/s\n", p.SpeedBytesPerSecond)
	}
	fmt.Printf("max request:\t%d bytes\n", p.MaxBytesPerRequest)
	fmt.Printf("%d endpoints:\n", bus.Endpoints())
	for i := 0; i < bus.Endpoints(); i++ {
		e, err := bus.Endpoint(i)
		if err != nil {
			return err
		}
		role := "slave"
		if e.IsMaster() {
			role = "master"
		}
		fmt.Printf("\tendpoint %3d:%12s%8s\n", e.ID(), e.Name(), role)
	}
	return nil
}
