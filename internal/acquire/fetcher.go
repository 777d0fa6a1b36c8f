package acquire

import (
	"context"
	"fmt"

	"github.com/gometr/gometr/internal/scpi"
	"github.com/gometr/gometr/internal/trace"
)

// WaveformFetcher captures traces through an instrument's waveform
// subsystem: select the source, read the scaling preamble, then transfer
// the record. Property names follow the common driver convention and can
// be overridden for instruments that spell them differently.
type WaveformFetcher struct {
	Instrument *scpi.Instrument

	// SubsystemAttr is the instrument attribute of the waveform subsystem.
	// Defaults to "waveform".
	SubsystemAttr string

	// Property name overrides; zero values select the defaults.
	SourceProp     string // default "source"
	DataProp       string // default "data"
	XOriginProp    string // default "x_origin"
	XIncrementProp string // default "x_increment"
}

func (f *WaveformFetcher) names() (attr, source, data, xOrigin, xIncrement string) {
	attr, source, data, xOrigin, xIncrement =
		f.SubsystemAttr, f.SourceProp, f.DataProp, f.XOriginProp, f.XIncrementProp
	if attr == "" {
		attr = "waveform"
	}
	if source == "" {
		source = "source"
	}
	if data == "" {
		data = "data"
	}
	if xOrigin == "" {
		xOrigin = "x_origin"
	}
	if xIncrement == "" {
		xIncrement = "x_increment"
	}
	return
}

// Fetch implements Fetcher
func (f *WaveformFetcher) Fetch(ctx context.Context, source string) (*trace.Trace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	attr, sourceProp, dataProp, xOriginProp, xIncrementProp := f.names()
	wf := f.Instrument.Subsystem(attr, 0)
	if wf == nil {
		return nil, fmt.Errorf("instrument %s has no %q subsystem",
			f.Instrument.Metadata().Name, attr)
	}

	if err := wf.SetAttr(sourceProp, source); err != nil {
		return nil, fmt.Errorf("select source %s: %w", source, err)
	}

	raw, err := f.readSamples(wf, dataProp)
	if err != nil {
		return nil, err
	}

	// The x axis comes from the preamble when the driver exposes it;
	// otherwise fall back to sample indices.
	origin, originOK := f.readFloat(wf, xOriginProp)
	increment, incrementOK := f.readFloat(wf, xIncrementProp)
	if !originOK || !incrementOK || increment == 0 {
		origin, increment = 0, 1
	}
	x := trace.TimeAxis(len(raw), origin, increment)

	t := trace.New(f.Instrument.Metadata().Name, source, x, raw)
	return t, nil
}

func (f *WaveformFetcher) readSamples(wf *scpi.Subsystem, dataProp string) ([]float64, error) {
	value, ok, err := wf.Attr(dataProp)
	if err != nil {
		return nil, fmt.Errorf("transfer waveform record: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("waveform subsystem has no %q property", dataProp)
	}
	samples, ok := value.([]float64)
	if !ok {
		return nil, fmt.Errorf("waveform %q is not a data property", dataProp)
	}
	return samples, nil
}

func (f *WaveformFetcher) readFloat(wf *scpi.Subsystem, prop string) (float64, bool) {
	value, ok, err := wf.Attr(prop)
	if err != nil || !ok {
		return 0, false
	}
	v, ok := value.(float64)
	return v, ok
}
