// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package vspi

import "fmt"

// Params are the bus wide parameters, fixed when the Registry is created.
type Params struct {
	// The bit error rate, in flipped bits per million transferred bits.
	//
	// Zero disables error injection.
	BitErrorRate uint

	// The throughput ceiling shared by all endpoints.
	//
	// Zero disables throttling.
	SpeedBytesPerSecond uint

	// The maximum length of a single read, write or transfer segment.
	MaxBytesPerRequest uint

	// The number of endpoints on the bus, including the master.
	Endpoints uint
}

// MaxEndpoints is the size of the minor number space available to a bus.
const MaxEndpoints = 256

// MaxRequestSize is the largest MaxBytesPerRequest a bus accepts.
//
// Each open endpoint holds two buffers of MaxBytesPerRequest bytes.
const MaxRequestSize = 16 * 1024 * 1024

// ppm is the denominator of the BitErrorRate.
const ppm = 1000000

// DefaultParams returns the parameters used when none are configured.
func DefaultParams() Params {
	return Params{
		SpeedBytesPerSecond: 18000000 / 8,
		MaxBytesPerRequest:  4 * 1024,
		Endpoints:           2,
	}
}

// Validate returns an error if the parameters cannot describe a bus.
func (p Params) Validate() error {
	if p.Endpoints < 2 {
		return fmt.Errorf("%w: bus requires at least 2 endpoints, got %d",
			ErrInvalidArgument, p.Endpoints)
	}
	if p.MaxBytesPerRequest == 0 {
		return fmt.Errorf("%w: max bytes per request must be non-zero",
			ErrInvalidArgument)
	}
	if p.MaxBytesPerRequest > MaxRequestSize {
		return fmt.Errorf("%w: max bytes per request %d exceeds %d",
			ErrInvalidArgument, p.MaxBytesPerRequest, MaxRequestSize)
	}
	return nil
}

// BitErrorProbability returns the probability of any one bit being flipped.
func (p Params) BitErrorProbability() float64 {
	if p.BitErrorRate >= ppm {
		return 1
	}
	return float64(p.BitErrorRate) / ppm
}
