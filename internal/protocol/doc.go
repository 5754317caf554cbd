// Package protocol implements the line protocol spoken by the perception
// node over its UART.
//
// Each line is a JSON object with two string fields:
//
//	{"action":"detection","data":"10,20,30,40"}
//	{"action":"alive","data":"XIAO is running"}
//	{"action":"error","data":"Camera init failed"}
//
// The controller side only decodes. Decoding never fails: malformed input
// comes back as a ParseError message carrying the raw line, and an
// unrecognised action as UnknownAction. The sending side (Sender,
// HeartbeatTimer) is used by the perception simulator.
package protocol
