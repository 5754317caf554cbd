// Package serial connects the perception node's UART to the protocol
// decoder.
//
// The control loop must never wait on I/O, so a goroutine reads lines as
// they arrive and parks only the newest in a single slot. The loop polls
// that slot once per pass. Lines that arrive faster than the loop polls
// are dropped, oldest first, and counted.
//
// Line noise never ends the link. An overlong line is cut at
// MaxLineLength and reading resumes after its newline, and a reader that
// stops on a device error is replaced once the port has been reopened.
package serial
