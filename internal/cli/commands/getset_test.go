package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gometr/gometr/internal/scpi"
)

// scriptedTransport records writes and serves reads from a canned buffer
type scriptedTransport struct {
	wrote     bytes.Buffer
	responses bytes.Buffer
	closed    bool
}

func (s *scriptedTransport) Write(p []byte) (int, error) { return s.wrote.Write(p) }
func (s *scriptedTransport) Read(p []byte) (int, error)  { return s.responses.Read(p) }
func (s *scriptedTransport) Close() error                { s.closed = true; return nil }

func (s *scriptedTransport) sentCommands() []string {
	raw := strings.TrimRight(s.wrote.String(), "\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

// stubSession routes openSession at the named transport for one test
func stubSession(t *testing.T) *scriptedTransport {
	t.Helper()
	transport := &scriptedTransport{}
	orig := openSession
	openSession = func(resource string) (*scpi.Session, error) {
		return scpi.NewSession(transport), nil
	}
	t.Cleanup(func() { openSession = orig })
	return transport
}

func TestGetCommand(t *testing.T) {
	dir := writeDriverDir(t)
	transport := stubSession(t)
	transport.responses.WriteString("10.0\n")

	out, err := execute(t, "get", "MiniScope", "TCPIP0::10.0.0.5::5025::SOCKET",
		"channel[1].probe", "--driver-dir", dir)
	require.NoError(t, err)

	assert.Equal(t, "10\n", out)
	assert.Equal(t, []string{":CHANnel1:PROBe?"}, transport.sentCommands())
	assert.True(t, transport.closed)
}

func TestGetCommandBadPath(t *testing.T) {
	dir := writeDriverDir(t)
	transport := stubSession(t)

	_, err := execute(t, "get", "MiniScope", "TCPIP0::10.0.0.5::5025::SOCKET",
		"channel[9].probe", "--driver-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of bounds")
	assert.Empty(t, transport.sentCommands())
}

func TestSetCommand(t *testing.T) {
	dir := writeDriverDir(t)
	transport := stubSession(t)

	out, err := execute(t, "set", "MiniScope", "TCPIP0::10.0.0.5::5025::SOCKET",
		"channel[2].coupling", "DC", "--driver-dir", dir)
	require.NoError(t, err)

	assert.Contains(t, out, "channel[2].coupling = DC")
	assert.Equal(t, []string{":CHANnel2:COUPling DC"}, transport.sentCommands())
}

func TestSetCommandSwitchCoercion(t *testing.T) {
	dir := writeDriverDir(t)
	transport := stubSession(t)

	_, err := execute(t, "set", "MiniScope", "TCPIP0::10.0.0.5::5025::SOCKET",
		"channel[1].display", "true", "--driver-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{":CHANnel1:DISPlay ON"}, transport.sentCommands())
}

func TestSetCommandRejectsBadChoice(t *testing.T) {
	dir := writeDriverDir(t)
	transport := stubSession(t)

	_, err := execute(t, "set", "MiniScope", "TCPIP0::10.0.0.5::5025::SOCKET",
		"channel[1].coupling", "GND", "--driver-dir", dir)
	require.Error(t, err)
	assert.Empty(t, transport.sentCommands())
}

func TestGetCommandUnknownDriver(t *testing.T) {
	dir := writeDriverDir(t)
	stubSession(t)

	out, err := execute(t, "get", "MaxiScope", "TCPIP0::10.0.0.5::5025::SOCKET",
		"channel[1].probe", "--driver-dir", dir, "--no-color")
	require.Error(t, err)
	assert.Contains(t, out, "DRIVER NOT FOUND")
}
