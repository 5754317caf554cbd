package environment

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/icu-core/internal/hal"
	"github.com/nerrad567/icu-core/internal/timing"
)

// Sensor is a combined temperature, humidity and pressure sensor.
// Readings are NaN when the device is not present.
type Sensor interface {
	Begin() error
	// Temperature in degrees Celsius.
	Temperature() float64
	// Humidity in percent relative humidity.
	Humidity() float64
	// Pressure in pascals.
	Pressure() float64
}

// Reading is one sample. Unavailable climate fields are NaN. FanRPM is
// only meaningful when FanMeasured is set.
type Reading struct {
	TemperatureC float64
	HumidityPct  float64
	PressureHPa  float64
	FanRPM       int
	FanMeasured  bool
	At           time.Time
}

// Valid reports whether every climate field holds a number.
func (r Reading) Valid() bool {
	return !math.IsNaN(r.TemperatureC) && !math.IsNaN(r.HumidityPct) && !math.IsNaN(r.PressureHPa)
}

// Fields returns the non-NaN fields keyed by name.
func (r Reading) Fields() map[string]float64 {
	out := make(map[string]float64, 4)
	if !math.IsNaN(r.TemperatureC) {
		out["temperature_c"] = r.TemperatureC
	}
	if !math.IsNaN(r.HumidityPct) {
		out["humidity_pct"] = r.HumidityPct
	}
	if !math.IsNaN(r.PressureHPa) {
		out["pressure_hpa"] = r.PressureHPa
	}
	if r.FanMeasured {
		out["fan_rpm"] = float64(r.FanRPM)
	}
	return out
}

// Monitor reads the climate sensor. A sensor that failed Begin is never
// read; every sample from it is all-NaN.
type Monitor struct {
	sensor Sensor
	tach   hal.Tachometer
	found  bool
	now    func() time.Time
}

// NewMonitor returns a Monitor over sensor.
func NewMonitor(sensor Sensor) *Monitor {
	return &Monitor{sensor: sensor, now: time.Now}
}

// Begin probes the sensor. The error is informational; the monitor keeps
// working and reports NaN.
func (m *Monitor) Begin() error {
	if err := m.sensor.Begin(); err != nil {
		m.found = false
		return fmt.Errorf("climate sensor: %w", err)
	}
	m.found = true
	return nil
}

// SetTachometer adds the cooling fan's speed to every reading.
func (m *Monitor) SetTachometer(t hal.Tachometer) { m.tach = t }

// Found reports whether Begin located the sensor.
func (m *Monitor) Found() bool { return m.found }

// Read takes one sample.
func (m *Monitor) Read() Reading {
	r := Reading{At: m.now()}
	if m.tach != nil {
		r.FanRPM = RPM(m.tach.PulseWidth())
		r.FanMeasured = true
	}
	if !m.found {
		r.TemperatureC, r.HumidityPct, r.PressureHPa = math.NaN(), math.NaN(), math.NaN()
		return r
	}
	r.TemperatureC = m.sensor.Temperature()
	r.HumidityPct = m.sensor.Humidity()
	r.PressureHPa = m.sensor.Pressure() / 100
	return r
}

// Sampler takes a reading on a fixed period from the control loop and
// hands it to a sink.
type Sampler struct {
	monitor *Monitor
	iv      timing.Interval
	sink    func(Reading)
	last    Reading
	samples int
}

// NewSampler returns a sampler first due one period after start.
func NewSampler(monitor *Monitor, every, start timing.Millis, sink func(Reading)) *Sampler {
	s := &Sampler{monitor: monitor, sink: sink}
	s.iv.Reset(start, every)
	return s
}

// Tick samples when the period has elapsed.
func (s *Sampler) Tick(now timing.Millis) {
	if !s.iv.Due(now) {
		return
	}
	s.iv.Reset(now, s.iv.Every())
	s.last = s.monitor.Read()
	s.samples++
	if s.sink != nil {
		s.sink(s.last)
	}
}

// Last returns the latest sample and how many have been taken.
func (s *Sampler) Last() (Reading, int) {
	return s.last, s.samples
}
