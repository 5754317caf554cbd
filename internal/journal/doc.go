// Package journal keeps a local SQLite record of lifecycle transitions and
// perception messages.
//
// The journal is a convenience for operators, not a control input: the
// control loop never reads it, and write failures are logged and dropped
// by the caller.
//
// Rows carry the boot ID of the run that produced them so restarts can be
// told apart. Timestamps are stored as fixed-width UTC text.
package journal
