// Package controller runs the ICU control loop.
//
// A Controller owns the lifecycle machine and hands it between the
// startup sequencer, the demo sequencer and a terminal halted state:
//
//	startup ──complete──▶ demo ──wrap──▶ startup (when RestartStartupOnWrap)
//	   │                   │
//	   └──── ERROR ────────┴──▶ halted
//
// Each pass ticks the peripherals, steps the active driver, polls one
// perception message and samples the climate sensor. Outbound reports go
// through a Dispatcher so sinks (journal, broker, time-series, WebSocket)
// never run on the control-loop goroutine.
package controller
