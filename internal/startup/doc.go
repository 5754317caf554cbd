// Package startup brings the peripherals up in a fixed order.
//
// The default plan is:
//
//	initialize:indicator
//	initialize:display
//	await_ready:display
//	initialize:actuator
//	complete
//
// One step runs per control-loop pass. A failed Begin forces the
// lifecycle into ERROR and the sequencer halts without retrying.
package startup
