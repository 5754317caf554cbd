// Package hal defines the hardware boundary of the controller.
//
// The renderers talk only to these interfaces: a round colour Screen, a
// servo PWM board, a digital OutputPin and the Preemption/Waiter pair used
// by bit-banged protocols. Register-level drivers live outside this module;
// package sim provides recording implementations used in simulation mode
// and in tests.
package hal
