// Package timing provides the millisecond clock shared by the control loop.
//
// All timers in the controller are expressed as a start mark plus a
// duration, compared with Elapsed(now, mark) > duration. The counter is
// 32 bits wide, matching the microcontroller tick the device firmware
// exposes, and Elapsed is correct across wraparound.
//
// Usage:
//
//	clock := timing.NewSystemClock()
//	mark := clock.Now()
//	...
//	if timing.Elapsed(clock.Now(), mark) > 20000 {
//	    // phase finished
//	}
package timing
