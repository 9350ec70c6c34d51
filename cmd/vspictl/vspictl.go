// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

// A utility to exercise a virtual SPI bus.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warthog618/vspi"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "vspictl",
	Short: "vspictl is a utility to exercise a virtual SPI bus",
	Long:  "vspictl creates a virtual SPI bus in process and performs transfers across it",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRunE: setup,
	Version:           version,
}

var rootOpts = struct {
	ConfigFile string
	Verbose    bool
	Seed       int64
}{}

// populated by setup for the subcommands.
var (
	params vspi.Params
	logger *zap.Logger
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootOpts.ConfigFile, "config", "c", "", "config file (JSON)")
	pf.BoolVarP(&rootOpts.Verbose, "verbose", "v", false, "log bus diagnostics")
	pf.Int64Var(&rootOpts.Seed, "seed", 0, "seed for bit error injection (0 for random)")
	pf.Uint("ber", 0, "bit error rate, in flipped bits per million")
	pf.Uint("speed", 0, "bus speed in bytes per second")
	pf.Uint("maxreq", 0, "maximum bytes per request")
	pf.Uint("endpoints", 0, "number of endpoints, including the master")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	params, err = loadParams(cmd.Flags())
	if err != nil {
		return err
	}
	if rootOpts.Verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction(zap.IncreaseLevel(zap.WarnLevel))
	}
	return err
}

func newBus() (*vspi.Registry, error) {
	opts := []vspi.Option{vspi.WithLogger(logger)}
	if rootOpts.Seed != 0 {
		opts = append(opts, vspi.WithSeed(rootOpts.Seed))
	}
	return vspi.New(params, opts...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func logErr(cmd *cobra.Command, err error) {
	fmt.Fprintf(os.Stderr, "vspictl %s: %s\n", cmd.Name(), err)
}
