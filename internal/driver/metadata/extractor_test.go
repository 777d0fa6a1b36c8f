package metadata

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractFixture(t *testing.T) *Extraction {
	t.Helper()
	source, err := os.ReadFile("testdata/dsox1204g.py")
	require.NoError(t, err)
	ex, err := ExtractSource(string(source))
	require.NoError(t, err)
	return ex
}

func TestExtractFixtureDriver(t *testing.T) {
	ex := extractFixture(t)
	require.Len(t, ex.Drivers, 1)
	assert.Empty(t, ex.Warnings)

	d := ex.Drivers[0]
	assert.Equal(t, "Oscilloscope", d.Name)
	assert.Equal(t, []string{"CHAN1", "CHAN2", "CHAN3", "CHAN4"}, d.Sources)

	// Subsystems come out in build-call order.
	var names []string
	for _, s := range d.Subsystems {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Channel", "Timebase", "Trigger", "Acquire", "Waveform", "Wavegen"}, names)
}

func TestExtractIndexedSubsystem(t *testing.T) {
	d := extractFixture(t).Drivers[0]

	ch := d.Subsystem("Channel")
	require.NotNil(t, ch)
	assert.Equal(t, "channel", ch.Attr)
	assert.Equal(t, ":CHANnel", ch.Prefix)
	assert.True(t, ch.NeedsIndexing)
	assert.Equal(t, 4, ch.InstanceCount)

	tb := d.Subsystem("Timebase")
	require.NotNil(t, tb)
	assert.False(t, tb.NeedsIndexing)
	assert.Zero(t, tb.InstanceCount)
}

func TestExtractPropertyKinds(t *testing.T) {
	d := extractFixture(t).Drivers[0]
	ch := d.Subsystem("Channel")
	require.NotNil(t, ch)
	require.Len(t, ch.Properties, 5)

	display := ch.Properties[0]
	assert.Equal(t, "display", display.Name)
	assert.Equal(t, KindSwitch, display.Kind)
	assert.Equal(t, ":DISPlay", display.Cmd)
	assert.Equal(t, "Channel visibility", display.Doc)

	coupling := ch.Properties[1]
	assert.Equal(t, KindSelect, coupling.Kind)
	assert.Equal(t, []string{"AC", "DC"}, coupling.Choices)

	scale := ch.Properties[3]
	assert.Equal(t, KindValue, scale.Kind)
	assert.Equal(t, "float", scale.ValueType)
	assert.Equal(t, "V", scale.Units)
	require.NotNil(t, scale.Range)
	assert.Equal(t, 0.001, scale.Range.Min)
	assert.Equal(t, 10.0, scale.Range.Max)
}

func TestExtractMinMaxValueBounds(t *testing.T) {
	d := extractFixture(t).Drivers[0]
	trig := d.Subsystem("Trigger")
	require.NotNil(t, trig)

	var level *PropertyMetadata
	for i := range trig.Properties {
		if trig.Properties[i].Name == "level" {
			level = &trig.Properties[i]
		}
	}
	require.NotNil(t, level)
	require.NotNil(t, level.Range)
	assert.Equal(t, -6.0, level.Range.Min)
	assert.Equal(t, 6.0, level.Range.Max)
}

func TestExtractAccessModes(t *testing.T) {
	d := extractFixture(t).Drivers[0]
	wf := d.Subsystem("Waveform")
	require.NotNil(t, wf)

	byName := make(map[string]PropertyMetadata)
	for _, p := range wf.Properties {
		byName[p.Name] = p
	}

	assert.Equal(t, AccessRead, byName["x_increment"].Access)
	assert.False(t, byName["x_increment"].Access.CanWrite())
	assert.Equal(t, AccessReadWrite, byName["points"].Access)
	assert.Equal(t, KindData, byName["data"].Kind)
	assert.Equal(t, AccessRead, byName["data"].Access)
}

func TestExtractMethods(t *testing.T) {
	d := extractFixture(t).Drivers[0]

	byName := make(map[string]MethodMetadata)
	for _, m := range d.Methods {
		byName[m.Name] = m
	}

	assert.NotContains(t, byName, "__init__", "private methods excluded")
	assert.Contains(t, byName, "autoscale")
	assert.False(t, byName["autoscale"].SourceCommand)
	require.Contains(t, byName, "digitize")
	assert.True(t, byName["digitize"].SourceCommand)
}

func TestExtractDeterministic(t *testing.T) {
	source, err := os.ReadFile("testdata/dsox1204g.py")
	require.NoError(t, err)

	first, err := ExtractSource(string(source))
	require.NoError(t, err)
	second, err := ExtractSource(string(source))
	require.NoError(t, err)

	a, err := first.Drivers[0].ToJSON()
	require.NoError(t, err)
	b, err := second.Drivers[0].ToJSON()
	require.NoError(t, err)
	assert.Equal(t, a, b, "same source yields byte-identical metadata")
}

func TestExtractBadPropertyDropsOnlyItself(t *testing.T) {
	source := `
class Channel(Subsystem):
    probe = value_property(':PROBe', type="float")
    broken = select_property(':BAD', make_choices())
    display = switch_property(':DISPlay')

class Scope(Instrument):
    def __init__(self, resource):
        self.channel = Channel.build(self, ':CHANnel', indices=2)
`
	ex, err := ExtractSource(source)
	require.NoError(t, err)
	require.Len(t, ex.Drivers, 1)

	ch := ex.Drivers[0].Subsystem("Channel")
	require.NotNil(t, ch)
	require.Len(t, ch.Properties, 2, "bad property dropped, siblings kept")
	assert.Equal(t, "probe", ch.Properties[0].Name)
	assert.Equal(t, "display", ch.Properties[1].Name)

	require.Len(t, ex.Warnings, 1)
	assert.Equal(t, "broken", ex.Warnings[0].Property)
	assert.Equal(t, "Channel", ex.Warnings[0].Subsystem)
}

func TestExtractMissingSubsystemClass(t *testing.T) {
	source := `
class Scope(Instrument):
    def __init__(self, resource):
        self.phantom = Phantom.build(self, ':PHANtom')
`
	ex, err := ExtractSource(source)
	require.NoError(t, err)
	require.Len(t, ex.Drivers, 1)

	sub := ex.Drivers[0].Subsystem("Phantom")
	require.NotNil(t, sub, "binding survives with no properties")
	assert.Empty(t, sub.Properties)
	require.Len(t, ex.Warnings, 1)
	assert.Contains(t, ex.Warnings[0].Message, "not found")
}

func TestExtractDuplicateBuildKeepsFirst(t *testing.T) {
	source := `
class Channel(Subsystem):
    probe = value_property(':PROBe')

class Scope(Instrument):
    def __init__(self, resource):
        self.channel = Channel.build(self, ':CHANnel', indices=4)
        self.chan = Channel.build(self, ':CHAN', indices=2)
`
	ex, err := ExtractSource(source)
	require.NoError(t, err)

	d := ex.Drivers[0]
	require.Len(t, d.Subsystems, 1)
	assert.Equal(t, "channel", d.Subsystems[0].Attr)
	assert.Equal(t, 4, d.Subsystems[0].InstanceCount)
	require.Len(t, ex.Warnings, 1)
	assert.Contains(t, ex.Warnings[0].Message, "duplicate")
}

func TestExtractModuleLevelSources(t *testing.T) {
	source := `
class Scope(Instrument):
    def __init__(self, resource):
        pass

class Sources:
    names = ['CH1', 'CH2']
`
	ex, err := ExtractSource(source)
	require.NoError(t, err)
	assert.Equal(t, []string{"CH1", "CH2"}, ex.Drivers[0].Sources)
}

func TestExtractSourcesCallAssignment(t *testing.T) {
	source := `
class Scope(Instrument):
    def __init__(self, resource):
        self.sources = Sources(['CHAN1', 'CHAN2'])
`
	ex, err := ExtractSource(source)
	require.NoError(t, err)
	assert.Equal(t, []string{"CHAN1", "CHAN2"}, ex.Drivers[0].Sources)
}

func TestExtractCamelCaseFactories(t *testing.T) {
	source := `
class Output(Subsystem):
    enabled = SwitchProperty(':STATe')
    voltage = ValueProperty(':VOLTage', type="float")
    waveform = DataBlockProperty(':DATA')

class Supply(Instrument):
    def __init__(self, resource):
        self.output = Output.build(self, ':OUTPut')
`
	ex, err := ExtractSource(source)
	require.NoError(t, err)

	out := ex.Drivers[0].Subsystem("Output")
	require.NotNil(t, out)
	require.Len(t, out.Properties, 3)
	assert.Equal(t, KindSwitch, out.Properties[0].Kind)
	assert.Equal(t, KindValue, out.Properties[1].Kind)
	assert.Equal(t, KindData, out.Properties[2].Kind)
}

func TestExtractUnfoldableIndices(t *testing.T) {
	source := `
class Channel(Subsystem):
    probe = value_property(':PROBe')

class Scope(Instrument):
    def __init__(self, resource):
        self.channel = Channel.build(self, ':CHANnel', indices=count_channels())
`
	ex, err := ExtractSource(source)
	require.NoError(t, err)

	ch := ex.Drivers[0].Subsystem("Channel")
	require.NotNil(t, ch)
	assert.False(t, ch.NeedsIndexing, "unfoldable indices degrade to unindexed")
	require.Len(t, ex.Warnings, 1)
	assert.Contains(t, ex.Warnings[0].Message, "indices")
}

func TestExtractParseErrorIsFatal(t *testing.T) {
	_, err := ExtractSource("class Channel(\n")
	require.Error(t, err)
}

func TestExtractOnlyMinValue(t *testing.T) {
	source := `
class Trigger(Subsystem):
    holdoff = value_property(':HOLDoff', min_value=60e-9)

class Scope(Instrument):
    def __init__(self, resource):
        self.trigger = Trigger.build(self, ':TRIGger')
`
	ex, err := ExtractSource(source)
	require.NoError(t, err)

	prop := ex.Drivers[0].Subsystem("Trigger").Properties[0]
	require.NotNil(t, prop.Range)
	assert.Equal(t, 60e-9, prop.Range.Min)
	assert.True(t, math.IsInf(prop.Range.Max, 1))
}
