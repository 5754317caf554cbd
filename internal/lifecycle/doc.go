// Package lifecycle defines the device-wide behavioural state and the
// machine that broadcasts transitions to the peripherals.
//
// There is exactly one Machine per process. Every change is pushed
// synchronously to the registered observers in a fixed order (display,
// actuator, indicator in the default wiring), so by the time Set returns
// every peripheral has run its entry action.
package lifecycle
