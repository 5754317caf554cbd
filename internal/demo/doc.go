// Package demo runs the scripted demonstration schedule.
//
// Once startup completes the controller hands over to a Sequencer, which
// walks the enabled phases and sets the lifecycle state for each. When the
// last phase expires the default wiring restarts the startup sequence, so
// every cycle begins with a full peripheral bring-up.
package demo
