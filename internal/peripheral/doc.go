// Package peripheral defines the contract shared by the display, actuator
// and indicator renderers.
//
// A peripheral is observed by the lifecycle machine and ticked by the
// control loop. It owns all of its timers and random sources; nothing is
// shared between renderers.
package peripheral
