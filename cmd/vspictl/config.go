// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/vspi"
)

// bus parameter keys, as used in flags, the environment (VSPI_ prefixed)
// and the config file.
var paramKeys = []string{"ber", "speed", "maxreq", "endpoints"}

// loadParams builds the bus parameters from, in order of precedence, the
// command line flags, the environment, the config file and the defaults.
func loadParams(flags *pflag.FlagSet) (vspi.Params, error) {
	def := vspi.DefaultParams()
	defaultConfig := map[string]interface{}{
		"ber":        int(def.BitErrorRate),
		"speed":      int(def.SpeedBytesPerSecond),
		"maxreq":     int(def.MaxBytesPerRequest),
		"endpoints":  int(def.Endpoints),
		"configfile": "vspi.json",
	}
	// only flags explicitly set override the other sources.
	flagConfig := map[string]interface{}{}
	for _, k := range paramKeys {
		if f := flags.Lookup(k); f != nil && f.Changed {
			flagConfig[k] = f.Value.String()
		}
	}
	if rootOpts.ConfigFile != "" {
		flagConfig["configfile"] = rootOpts.ConfigFile
	}
	cfg := config.New(
		dict.New(dict.WithMap(flagConfig)),
		env.New(env.WithEnvPrefix("VSPI_")),
		config.WithDefault(dict.New(dict.WithMap(defaultConfig))))
	cfg.Append(
		blob.NewConfigFile(cfg, "configfile", "vspi.json", json.NewDecoder()))
	vv := make([]uint, len(paramKeys))
	for i, k := range paramKeys {
		v, err := cfg.Get(k)
		if err != nil {
			return vspi.Params{}, err
		}
		n := v.Int()
		if n < 0 {
			return vspi.Params{}, fmt.Errorf("%s must not be negative, got %d", k, n)
		}
		vv[i] = uint(n)
	}
	p := vspi.Params{
		BitErrorRate:        vv[0],
		SpeedBytesPerSecond: vv[1],
		MaxBytesPerRequest:  vv[2],
		Endpoints:           vv[3],
	}
	return p, p.Validate()
}
