// Package trace defines the captured-waveform model shared by the
// acquisition engine, the trace store, and the web layer.
package trace

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Trace is one captured waveform record from one source
type Trace struct {
	ID         uuid.UUID `json:"id"`
	Instrument string    `json:"instrument"`
	Source     string    `json:"source"`
	X          []float64 `json:"x"`
	Y          []float64 `json:"y"`
	XUnits     string    `json:"x_units,omitempty"`
	YUnits     string    `json:"y_units,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// New builds a trace with a fresh id and the current capture time
func New(instrument, source string, x, y []float64) *Trace {
	return &Trace{
		ID:         uuid.New(),
		Instrument: instrument,
		Source:     source,
		X:          x,
		Y:          y,
		XUnits:     "s",
		YUnits:     "V",
		CapturedAt: time.Now().UTC(),
	}
}

// Validate checks structural consistency before persistence
func (t *Trace) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("trace has no id")
	}
	if t.Source == "" {
		return fmt.Errorf("trace has no source")
	}
	if len(t.X) != len(t.Y) {
		return fmt.Errorf("trace %s: x/y length mismatch (%d vs %d)", t.ID, len(t.X), len(t.Y))
	}
	return nil
}

// Points returns the number of samples in the trace
func (t *Trace) Points() int { return len(t.Y) }

// TimeAxis builds an x axis from waveform preamble values: origin plus
// increment per sample.
func TimeAxis(points int, origin, increment float64) []float64 {
	x := make([]float64, points)
	for i := range x {
		x[i] = origin + float64(i)*increment
	}
	return x
}

// ScaleSamples converts raw quantized samples to volts using waveform
// preamble values: (raw - reference) * increment + origin.
func ScaleSamples(raw []float64, origin, increment, reference float64) []float64 {
	y := make([]float64, len(raw))
	for i, v := range raw {
		y[i] = (v-reference)*increment + origin
	}
	return y
}
