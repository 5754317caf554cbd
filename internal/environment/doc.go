// Package environment covers the enclosure's climate sensor and cooling fan.
//
// Sensor absence is not an error at read time: Monitor returns NaN for
// every field and callers check Reading.Valid before using a sample.
package environment
