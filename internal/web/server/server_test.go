package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/driver/registry"
	"github.com/gometr/gometr/internal/scpi"
	"github.com/gometr/gometr/internal/web/auth"
	"github.com/gometr/gometr/internal/web/cache"
)

const miniScopeSource = `
class Channel(Subsystem):
    display = switch_property(':DISPlay')
    coupling = select_property(':COUPling', ['AC', 'DC'])
    probe = value_property(':PROBe', type="float")


class Waveform(Subsystem):
    source = select_property(':SOURce', ['CHAN1', 'CHAN2'])
    data = data_property(':DATA')
    x_origin = value_property(':XORigin', type="float", access="read")
    x_increment = value_property(':XINCrement', type="float", access="read")


class MiniScope(Instrument):
    class Sources:
        names = ['CHAN1', 'CHAN2']

    def __init__(self, resource):
        super().__init__(resource)
        self.channel = Channel.build(self, ':CHANnel', indices=2)
        self.waveform = Waveform.build(self, ':WAVeform')
`

// scriptedTransport stands in for an instrument on the wire: writes are
// recorded, reads come from a pre-loaded response buffer.
type scriptedTransport struct {
	wrote     bytes.Buffer
	responses bytes.Buffer
	closed    bool
}

func (s *scriptedTransport) Write(p []byte) (int, error) { return s.wrote.Write(p) }
func (s *scriptedTransport) Read(p []byte) (int, error)  { return s.responses.Read(p) }
func (s *scriptedTransport) Close() error                { s.closed = true; return nil }

func (s *scriptedTransport) respond(lines ...string) {
	for _, line := range lines {
		s.responses.WriteString(line)
		s.responses.WriteByte('\n')
	}
}

func (s *scriptedTransport) sentCommands() []string {
	raw := strings.TrimRight(s.wrote.String(), "\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

type fixture struct {
	server    *Server
	transport *scriptedTransport
}

func newFixture(t *testing.T, authSvc *auth.Service) *fixture {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "miniscope.py"), []byte(miniScopeSource), 0o644))

	reg := registry.New(zap.NewNop())
	require.NoError(t, reg.LoadDir(dir))

	f := &fixture{transport: &scriptedTransport{}}
	f.server = New(Config{
		Registry: reg,
		Auth:     authSvc,
		Opener: func(resource string) (*scpi.Session, error) {
			return scpi.NewSession(f.transport), nil
		},
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/instruments", connectRequest{
		Driver:   "MiniScope",
		Resource: "TCPIP0::10.0.0.5::5025::SOCKET",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["drivers"])
}

func TestListDrivers(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/drivers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"MiniScope"}, decodeBody(t, rec)["drivers"])
}

func TestGetDriver(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/drivers/MiniScope", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "MiniScope", body["name"])

	rec = f.do(t, http.MethodGet, "/api/drivers/Nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTree(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/drivers/MiniScope/tree", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := rec.Body.String()

	// Second fetch is served from cache and must be identical.
	rec = f.do(t, http.MethodGet, "/api/drivers/MiniScope/tree", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, first, rec.Body.String())
}

func TestConnectUnknownDriver(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/instruments", connectRequest{
		Driver:   "Nonexistent",
		Resource: "TCPIP0::10.0.0.5::5025::SOCKET",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnectDuplicateName(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	rec := f.do(t, http.MethodPost, "/api/instruments", connectRequest{
		Driver:   "MiniScope",
		Resource: "TCPIP0::10.0.0.5::5025::SOCKET",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListInstruments(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	rec := f.do(t, http.MethodGet, "/api/instruments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	instruments, ok := body["instruments"].([]any)
	require.True(t, ok)
	require.Len(t, instruments, 1)
	info := instruments[0].(map[string]any)
	assert.Equal(t, "MiniScope", info["name"])
	assert.Equal(t, false, info["running"])
}

func TestGetProperty(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)
	f.transport.respond("10.0")

	rec := f.do(t, http.MethodGet, "/api/instruments/MiniScope/properties/channel[1].probe", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, 10.0, body["value"])
	assert.Equal(t, []string{":CHANnel1:PROBe?"}, f.transport.sentCommands())
}

func TestGetPropertyServedFromCache(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)
	f.transport.respond("10.0")

	rec := f.do(t, http.MethodGet, "/api/instruments/MiniScope/properties/channel[1].probe", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Second read hits the cache: no new instrument traffic.
	rec = f.do(t, http.MethodGet, "/api/instruments/MiniScope/properties/channel[1].probe", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 10.0, body["value"])
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, []string{":CHANnel1:PROBe?"}, f.transport.sentCommands())

	// fresh=1 forces a live query.
	f.transport.respond("11.0")
	rec = f.do(t, http.MethodGet, "/api/instruments/MiniScope/properties/channel[1].probe?fresh=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 11.0, decodeBody(t, rec)["value"])
	assert.Equal(t, []string{":CHANnel1:PROBe?", ":CHANnel1:PROBe?"}, f.transport.sentCommands())
}

func TestGetPropertyPathErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	cases := []struct {
		name   string
		path   string
		status int
	}{
		{"bad syntax", "channel[].probe", http.StatusBadRequest},
		{"missing attribute", "nonexistent.probe", http.StatusNotFound},
		{"index out of range", "channel[9].probe", http.StatusNotFound},
		{"not indexable", "waveform[1].data", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/instruments/MiniScope/properties/"+tc.path, nil)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	assert.Empty(t, f.transport.sentCommands(), "failed resolutions must not touch the instrument")
}

func TestGetPropertyNotConnected(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/instruments/MiniScope/properties/channel[1].probe", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetProperty(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	rec := f.do(t, http.MethodPut, "/api/instruments/MiniScope/properties/channel[2].coupling",
		setPropertyRequest{Value: "DC"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{":CHANnel2:COUPling DC"}, f.transport.sentCommands())
}

func TestSetPropertyInvalidChoice(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	rec := f.do(t, http.MethodPut, "/api/instruments/MiniScope/properties/channel[1].coupling",
		setPropertyRequest{Value: "GND"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Empty(t, f.transport.sentCommands())
}

func TestSources(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	rec := f.do(t, http.MethodGet, "/api/instruments/MiniScope/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{"CHAN1", "CHAN2"}, body["available"])
	assert.Empty(t, body["active"])

	rec = f.do(t, http.MethodPut, "/api/instruments/MiniScope/sources",
		setSourcesRequest{Active: []string{"chan2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"CHAN2"}, decodeBody(t, rec)["active"])

	rec = f.do(t, http.MethodPut, "/api/instruments/MiniScope/sources",
		setSourcesRequest{Active: []string{"CHAN9"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSingleAcquisition(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)
	f.transport.respond(
		"1.0,2.0,3.0", // :WAVeform:DATA?
		"0",           // :WAVeform:XORigin?
		"0.001",       // :WAVeform:XINCrement?
	)

	rec := f.do(t, http.MethodPost, "/api/instruments/MiniScope/acquisition/single",
		acquisitionRequest{Sources: []string{"CHAN1"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, []string{
		":WAVeform:SOURce CHAN1",
		":WAVeform:DATA?",
		":WAVeform:XORigin?",
		":WAVeform:XINCrement?",
	}, f.transport.sentCommands())

	body := decodeBody(t, rec)
	traces, ok := body["traces"].([]any)
	require.True(t, ok)
	require.Len(t, traces, 1)
	captured := traces[0].(map[string]any)
	assert.Equal(t, "CHAN1", captured["source"])
	assert.Equal(t, []any{1.0, 2.0, 3.0}, captured["y"])
}

func TestSingleNoSources(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	rec := f.do(t, http.MethodPost, "/api/instruments/MiniScope/acquisition/single", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartAndStop(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	rec := f.do(t, http.MethodPost, "/api/instruments/MiniScope/acquisition/start",
		acquisitionRequest{Sources: []string{"CHAN1"}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	// A second start while running is rejected.
	rec = f.do(t, http.MethodPost, "/api/instruments/MiniScope/acquisition/start",
		acquisitionRequest{Sources: []string{"CHAN1"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/instruments/MiniScope/acquisition/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	rec := f.do(t, http.MethodDelete, "/api/instruments/MiniScope", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, f.transport.closed)

	rec = f.do(t, http.MethodGet, "/api/instruments/MiniScope/properties/channel[1].probe", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/instruments/MiniScope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTracesDisabledWithoutStore(t *testing.T) {
	f := newFixture(t, nil)
	for _, target := range []string{"/api/traces", "/api/traces/some-id"} {
		rec := f.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}

func TestAuthGuardsMutations(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)
	f := newFixture(t, svc)

	// Reads stay open.
	rec := f.do(t, http.MethodGet, "/api/drivers", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Mutations without a token are rejected.
	rec = f.do(t, http.MethodPost, "/api/instruments", connectRequest{
		Driver:   "MiniScope",
		Resource: "TCPIP0::10.0.0.5::5025::SOCKET",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := svc.GenerateToken("operator")
	require.NoError(t, err)

	payload, err := json.Marshal(connectRequest{
		Driver:   "MiniScope",
		Resource: "TCPIP0::10.0.0.5::5025::SOCKET",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/instruments", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// closableCache records whether the server released the cache backend
type closableCache struct {
	cache.Cache
	closed bool
}

func (c *closableCache) Close() error { c.closed = true; return nil }

func TestCloseReleasesCache(t *testing.T) {
	c := &closableCache{Cache: cache.NewMemoryCache()}
	srv := New(Config{Cache: c})

	require.NoError(t, srv.Close())
	assert.True(t, c.closed, "the cache janitor must not outlive the server")
}
