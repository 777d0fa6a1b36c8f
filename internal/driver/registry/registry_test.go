package registry

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalDriver = `
class Channel(Subsystem):
    probe = value_property(':PROBe', type="float")

class Oscilloscope(Instrument):
    def __init__(self, resource):
        self.channel = Channel.build(self, ':CHANnel', indices=4)
`

func writeDriver(t *testing.T, dir, name, source string) string {
	t.Helper()
	file := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(file, []byte(source), 0o644))
	return file
}

func TestLoadFile(t *testing.T) {
	r := New(nil)
	file := writeDriver(t, t.TempDir(), "scope.py", minimalDriver)

	require.NoError(t, r.LoadFile(file))
	assert.Equal(t, 1, r.Len())

	d := r.Driver("Oscilloscope")
	require.NotNil(t, d)
	assert.Equal(t, 4, d.Subsystem("Channel").InstanceCount)
}

func TestLoadDirSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeDriver(t, dir, "good.py", minimalDriver)
	writeDriver(t, dir, "broken.py", "class Oops(\n")
	writeDriver(t, dir, "ignored.txt", "not python")

	r := New(nil)
	require.NoError(t, r.LoadDir(dir))

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"Oscilloscope"}, r.Names())
	require.Len(t, r.Entries(), 1)
}

func TestReloadUnchangedFileKeepsEntry(t *testing.T) {
	r := New(nil)
	file := writeDriver(t, t.TempDir(), "scope.py", minimalDriver)

	require.NoError(t, r.LoadFile(file))
	before := r.Driver("Oscilloscope")

	require.NoError(t, r.LoadFile(file))
	assert.Same(t, before, r.Driver("Oscilloscope"), "unchanged source reuses cached metadata")
}

func TestReloadChangedFile(t *testing.T) {
	r := New(nil)
	dir := t.TempDir()
	file := writeDriver(t, dir, "scope.py", minimalDriver)
	require.NoError(t, r.LoadFile(file))

	updated := `
class Channel(Subsystem):
    probe = value_property(':PROBe', type="float")

class Oscilloscope(Instrument):
    def __init__(self, resource):
        self.channel = Channel.build(self, ':CHANnel', indices=2)
`
	writeDriver(t, dir, "scope.py", updated)
	require.NoError(t, r.LoadFile(file))

	assert.Equal(t, 2, r.Driver("Oscilloscope").Subsystem("Channel").InstanceCount)
}

func TestRemove(t *testing.T) {
	r := New(nil)
	file := writeDriver(t, t.TempDir(), "scope.py", minimalDriver)
	require.NoError(t, r.LoadFile(file))

	r.Remove(file)
	assert.Zero(t, r.Len())
	assert.Nil(t, r.Driver("Oscilloscope"))
	assert.Empty(t, r.Entries())
}

func TestDriverLookupCaseInsensitive(t *testing.T) {
	r := New(nil)
	file := writeDriver(t, t.TempDir(), "scope.py", minimalDriver)
	require.NoError(t, r.LoadFile(file))

	assert.NotNil(t, r.Driver("oscilloscope"))
	assert.Nil(t, r.Driver("spectrum"))
}

func TestNoInstrumentClasses(t *testing.T) {
	r := New(nil)
	file := writeDriver(t, t.TempDir(), "empty.py", "x = 1\n")

	err := r.LoadFile(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no instrument classes")
}

func TestConcurrentAccess(t *testing.T) {
	r := New(nil)
	file := writeDriver(t, t.TempDir(), "scope.py", minimalDriver)
	require.NoError(t, r.LoadFile(file))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Driver("Oscilloscope")
				_ = r.Names()
				_ = r.LoadFile(file)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, r.Len())
}
