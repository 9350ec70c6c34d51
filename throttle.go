// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package vspi

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// throttle limits the bus to its configured speed.
//
// The limiter is shared by all endpoints so concurrent transfers share the
// bus bandwidth.
type throttle struct {
	clock clock.Clock

	// nil if the bus is unthrottled.
	lim *rate.Limiter
}

func newThrottle(c clock.Clock, speed, burst uint) *throttle {
	t := &throttle{clock: c}
	if speed == 0 {
		return t
	}
	t.lim = rate.NewLimiter(rate.Limit(speed), int(burst))
	// start empty so the first transfer takes as long as any other.
	t.lim.ReserveN(c.Now(), int(burst))
	return t
}

// wait blocks for the time taken to shift n bytes onto the bus.
//
// That is the longer of the time allowed by the bus speed and the time at
// the clock speed hz, if non-zero, followed by the extra delay.
func (t *throttle) wait(ctx context.Context, n int, hz uint32, extra time.Duration) error {
	now := t.clock.Now()
	var d time.Duration
	var res *rate.Reservation
	if t.lim != nil && n > 0 {
		res = t.lim.ReserveN(now, n)
		if res.OK() {
			d = res.DelayFrom(now)
		}
	}
	if hz != 0 {
		if cd := shiftTime(n, hz); cd > d {
			d = cd
		}
	}
	d += extra
	if d <= 0 {
		return nil
	}
	tmr := t.clock.Timer(d)
	select {
	case <-tmr.C:
		return nil
	case <-ctx.Done():
		tmr.Stop()
		if res != nil {
			res.CancelAt(t.clock.Now())
		}
		return interrupted(ctx.Err())
	}
}

// shiftTime returns the time taken to shift n bytes at hz bits per second.
//
// Saturates rather than overflowing.
func shiftTime(n int, hz uint32) time.Duration {
	bits := int64(n) * 8
	secs := bits / int64(hz)
	if secs >= math.MaxInt64/int64(time.Second) {
		return math.MaxInt64
	}
	rem := bits % int64(hz)
	return time.Duration(secs)*time.Second +
		time.Duration(rem)*time.Second/time.Duration(hz)
}
