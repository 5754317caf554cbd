// Package sim provides in-memory hardware for simulation mode and tests.
//
// Every device records what the controller asked of it and can be told to
// fail Begin, which is how startup faults are injected.
package sim
