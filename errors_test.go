// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package vspi_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warthog618/vspi"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

func TestErrnoOf(t *testing.T) {
	patterns := []struct {
		name  string
		err   error
		errno unix.Errno
	}{
		{"nil", nil, 0},
		{"exhausted", vspi.ErrResourceExhausted, unix.ENOMEM},
		{"users", vspi.ErrTooManyUsers, unix.EUSERS},
		{"interrupted", vspi.ErrInterrupted, unix.EINTR},
		{"too large", vspi.ErrMessageTooLarge, unix.EMSGSIZE},
		{"invalid", vspi.ErrInvalidArgument, unix.EINVAL},
		{"unsupported", vspi.ErrNotSupported, unix.ENOTTY},
		{"fault", vspi.ErrFaultyAddress, unix.EFAULT},
		{"partner", vspi.ErrNoPartner, unix.ENODEV},
		{"not found", vspi.ErrNotFound, unix.ENXIO},
		{"closed", vspi.ErrClosed, unix.EBADF},
		{"wrapped", fmt.Errorf("%w: detail", vspi.ErrNoPartner), unix.ENODEV},
		{"combined", multierr.Combine(errors.New("other"), vspi.ErrFaultyAddress), unix.EFAULT},
		{"errno", unix.EAGAIN, unix.EAGAIN},
		{"foreign", context.Canceled, unix.EIO},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			assert.Equal(t, p.errno, vspi.ErrnoOf(p.err))
		}
		t.Run(p.name, tf)
	}
}

func TestErrorIs(t *testing.T) {
	assert.True(t, errors.Is(vspi.ErrNotSupported, unix.ENOTTY))
	assert.False(t, errors.Is(vspi.ErrNotSupported, unix.EINVAL))
	assert.False(t, errors.Is(vspi.ErrNotSupported, vspi.ErrInvalidArgument))
	assert.Equal(t, unix.EMSGSIZE, vspi.ErrMessageTooLarge.Errno())
	assert.Equal(t, "no bus partner", vspi.ErrNoPartner.Error())
}

func TestParams(t *testing.T) {
	p := vspi.DefaultParams()
	assert.Nil(t, p.Validate())
	assert.Equal(t, uint(0), p.BitErrorRate)
	assert.Equal(t, uint(2250000), p.SpeedBytesPerSecond)
	assert.Equal(t, uint(4096), p.MaxBytesPerRequest)
	assert.Equal(t, uint(2), p.Endpoints)
	assert.Equal(t, 0.0, p.BitErrorProbability())

	p.BitErrorRate = 250
	assert.Equal(t, 0.00025, p.BitErrorProbability())
	p.BitErrorRate = 2000000
	assert.Equal(t, 1.0, p.BitErrorProbability())
}
