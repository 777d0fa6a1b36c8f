package scpi

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport scripts an instrument: writes are recorded, reads are
// served from a pre-loaded response buffer.
type fakeTransport struct {
	wrote     bytes.Buffer
	responses bytes.Buffer
	closed    bool
}

func (f *fakeTransport) Write(p []byte) (int, error) { return f.wrote.Write(p) }
func (f *fakeTransport) Read(p []byte) (int, error)  { return f.responses.Read(p) }
func (f *fakeTransport) Close() error                { f.closed = true; return nil }

func (f *fakeTransport) respond(lines ...string) {
	for _, line := range lines {
		f.responses.WriteString(line)
		f.responses.WriteByte('\n')
	}
}

func (f *fakeTransport) sentCommands() []string {
	raw := strings.TrimRight(f.wrote.String(), "\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

func TestSessionCommand(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)

	require.NoError(t, s.Command(":CHANnel1:DISPlay %s", "ON"))
	assert.Equal(t, []string{":CHANnel1:DISPlay ON"}, ft.sentCommands())
}

func TestSessionQuery(t *testing.T) {
	ft := &fakeTransport{}
	ft.respond("  10.0  ")
	s := NewSession(ft)

	value, err := s.Query(":CHANnel1:PROBe?")
	require.NoError(t, err)
	assert.Equal(t, "10.0", value, "response is whitespace-trimmed")
	assert.Equal(t, []string{":CHANnel1:PROBe?"}, ft.sentCommands())
}

func TestSessionIdentify(t *testing.T) {
	ft := &fakeTransport{}
	ft.respond("KEYSIGHT TECHNOLOGIES,DSOX1204G,CN12345678,02.12.2021")
	s := NewSession(ft)

	idn, err := s.Identify()
	require.NoError(t, err)
	assert.Contains(t, idn, "DSOX1204G")
	assert.Equal(t, []string{"*IDN?"}, ft.sentCommands())
}

func TestSessionOperationComplete(t *testing.T) {
	ft := &fakeTransport{}
	ft.respond("1")
	s := NewSession(ft)
	require.NoError(t, s.OperationComplete())

	ft2 := &fakeTransport{}
	ft2.respond("0")
	s2 := NewSession(ft2)
	assert.Error(t, s2.OperationComplete())
}

func TestSessionCustomTerminator(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft, WithTerminator("\r\n"))

	require.NoError(t, s.Command("*RST"))
	assert.Equal(t, "*RST\r\n", ft.wrote.String())
}

func TestSessionClose(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)
	require.NoError(t, s.Close())
	assert.True(t, ft.closed)
}

// keyedTransport answers each query from a command-keyed script, so
// interleaved callers can detect a response crossing between queries.
type keyedTransport struct {
	mu      sync.Mutex
	pending bytes.Buffer
	answers map[string]string
}

func (k *keyedTransport) Write(p []byte) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if answer, ok := k.answers[strings.TrimSpace(string(p))]; ok {
		k.pending.WriteString(answer)
		k.pending.WriteByte('\n')
	}
	return len(p), nil
}

func (k *keyedTransport) Read(p []byte) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pending.Read(p)
}

func TestSessionSerializesConcurrentQueries(t *testing.T) {
	kt := &keyedTransport{answers: map[string]string{
		":CHANnel1:PROBe?":    "10",
		":CHANnel2:COUPling?": "DC",
	}}
	s := NewSession(kt)

	var wg sync.WaitGroup
	var crossed atomic.Int32
	run := func(q, want string) {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			got, err := s.Query(q)
			if err != nil || got != want {
				crossed.Add(1)
				return
			}
		}
	}
	wg.Add(2)
	go run(":CHANnel1:PROBe?", "10")
	go run(":CHANnel2:COUPling?", "DC")
	wg.Wait()

	assert.Zero(t, crossed.Load(), "every query must receive its own response")
}

// deadlineTransport records read deadlines the way a net.Conn would accept
// them.
type deadlineTransport struct {
	fakeTransport
	deadline time.Time
}

func (d *deadlineTransport) SetReadDeadline(t time.Time) error {
	d.deadline = t
	return nil
}

func TestSessionQueryArmsReadDeadline(t *testing.T) {
	dt := &deadlineTransport{}
	dt.respond("10.0")
	s := NewSession(dt, WithTimeout(250*time.Millisecond))

	before := time.Now()
	_, err := s.Query(":CHANnel1:PROBe?")
	require.NoError(t, err)
	assert.True(t, dt.deadline.After(before), "a stalled instrument must not block the read forever")
}

func TestSessionQueryBlockDefiniteLength(t *testing.T) {
	ft := &fakeTransport{}
	ft.responses.WriteString("#3012Hello, world\n")
	s := NewSession(ft)

	payload, err := s.QueryBlock(":WAVeform:DATA?")
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello, world"), payload)
}

func TestSessionQueryBlockASCIIFallback(t *testing.T) {
	ft := &fakeTransport{}
	ft.respond("1.0,2.0,3.0")
	s := NewSession(ft)

	payload, err := s.QueryBlock(":WAVeform:DATA?")
	require.NoError(t, err)
	assert.Equal(t, []byte("1.0,2.0,3.0"), payload)
}
