package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/acquire"
	"github.com/gometr/gometr/internal/path"
	"github.com/gometr/gometr/internal/ptree"
	"github.com/gometr/gometr/internal/scpi"
	"github.com/gometr/gometr/internal/store"
	"github.com/gometr/gometr/internal/trace"
	"github.com/gometr/gometr/internal/web/cache"
	"github.com/gometr/gometr/internal/web/websocket"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"drivers":     s.registry.Len(),
		"instruments": len(s.connectionNames()),
	})
}

// Driver catalog

func (s *Server) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"drivers": s.registry.Names()})
}

func (s *Server) handleGetDriver(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d := s.registry.Driver(name)
	if d == nil {
		writeError(w, http.StatusNotFound, "driver %q not found", name)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d := s.registry.Driver(name)
	if d == nil {
		writeError(w, http.StatusNotFound, "driver %q not found", name)
		return
	}

	key := cache.TreeKey(d.Name)
	if cached, err := s.cache.Get(r.Context(), key); err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}

	tree := ptree.Build(d)
	payload, err := json.Marshal(tree)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode tree: %v", err)
		return
	}
	if err := s.cache.Set(r.Context(), key, payload, 0); err != nil {
		s.logger.Warn("tree cache write failed", zap.String("driver", d.Name), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// Instrument lifecycle

type connectRequest struct {
	Driver   string `json:"driver"`
	Resource string `json:"resource"`
	// Name optionally overrides the connection name; defaults to the
	// driver class name.
	Name string `json:"name,omitempty"`
}

type instrumentInfo struct {
	Name     string `json:"name"`
	Driver   string `json:"driver"`
	Resource string `json:"resource"`
	Running  bool   `json:"running"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	d := s.registry.Driver(req.Driver)
	if d == nil {
		writeError(w, http.StatusNotFound, "driver %q not found", req.Driver)
		return
	}
	name := req.Name
	if name == "" {
		name = d.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.connections[name]; exists {
		writeError(w, http.StatusConflict, "instrument %q is already connected", name)
		return
	}

	session, err := s.opener(req.Resource)
	if err != nil {
		writeError(w, http.StatusBadGateway, "open %s: %v", req.Resource, err)
		return
	}

	instrument := scpi.Build(d, session)
	fetcher := &acquire.WaveformFetcher{Instrument: instrument}
	opts := []acquire.Option{
		acquire.WithInterval(s.interval),
		acquire.WithLogger(s.logger),
	}
	if s.store != nil {
		opts = append(opts, acquire.WithSaver(s.store))
	}
	engine := acquire.New(fetcher, opts...)

	traces, unsubscribe := engine.Subscribe()
	conn := &connection{
		name:        name,
		resource:    req.Resource,
		instrument:  instrument,
		session:     session,
		engine:      engine,
		unsubscribe: unsubscribe,
	}
	s.connections[name] = conn
	go s.forwardTraces(traces)

	s.logger.Info("instrument connected",
		zap.String("name", name),
		zap.String("driver", d.Name),
		zap.String("resource", req.Resource))
	writeJSON(w, http.StatusCreated, s.infoLocked(conn))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	conn, ok := s.connections[name]
	if ok {
		delete(s.connections, name)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "instrument %q is not connected", name)
		return
	}

	conn.engine.Stop()
	conn.unsubscribe()
	if err := conn.session.Close(); err != nil {
		s.logger.Warn("session close failed", zap.String("name", name), zap.Error(err))
	}
	s.logger.Info("instrument disconnected", zap.String("name", name))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]instrumentInfo, 0, len(s.connections))
	for _, name := range s.connectionNamesLocked() {
		infos = append(infos, s.infoLocked(s.connections[name]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"instruments": infos})
}

// Property access

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	propertyPath := chi.URLParam(r, "path")

	// Recent reads are served from the cache; ?fresh=1 forces a live query.
	key := cache.ValueKey(conn.name, propertyPath)
	if r.URL.Query().Get("fresh") == "" {
		if payload, err := s.cache.Get(r.Context(), key); err == nil {
			var value any
			if json.Unmarshal(payload, &value) == nil {
				writeJSON(w, http.StatusOK, map[string]any{
					"path": propertyPath, "value": value, "cached": true,
				})
				return
			}
		}
	}

	value, err := path.Resolve(conn.instrument, propertyPath)
	if err != nil {
		writePathError(w, err)
		return
	}

	if payload, err := json.Marshal(value); err == nil {
		s.cacheValue(r, conn.name, propertyPath, payload)
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": propertyPath, "value": value})
}

type setPropertyRequest struct {
	Value any `json:"value"`
}

func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	propertyPath := chi.URLParam(r, "path")

	var req setPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	if err := path.Assign(conn.instrument, propertyPath, req.Value); err != nil {
		writePathError(w, err)
		return
	}

	// Keep cached reads coherent with the write.
	if payload, err := json.Marshal(req.Value); err == nil {
		s.cacheValue(r, conn.name, propertyPath, payload)
	}

	s.hub.Broadcast(websocket.TypeProperty, websocket.PropertyEvent{
		Instrument: conn.name,
		Path:       propertyPath,
		Value:      req.Value,
	})
	writeJSON(w, http.StatusOK, map[string]any{"path": propertyPath, "value": req.Value})
}

// Sources

func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	src := conn.instrument.Sources()
	writeJSON(w, http.StatusOK, map[string]any{
		"available": src.Names(),
		"active":    src.Active(),
	})
}

type setSourcesRequest struct {
	Active []string `json:"active"`
}

func (s *Server) handleSetSources(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}

	var req setSourcesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if err := conn.instrument.Sources().SetActive(req.Active); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": conn.instrument.Sources().Active()})
}

// Acquisition

type acquisitionRequest struct {
	Sources []string `json:"sources,omitempty"`
}

func (s *Server) handleSingle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	sources, ok := s.requestedSources(w, r, conn)
	if !ok {
		return
	}

	// Captures also reach websocket subscribers through the engine's
	// publish path; this response carries them for synchronous callers.
	traces, err := conn.engine.Single(r.Context(), sources)
	if err != nil {
		writeError(w, http.StatusBadGateway, "acquisition failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"traces": traces})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	sources, ok := s.requestedSources(w, r, conn)
	if !ok {
		return
	}

	// The run outlives the request; it stops via the stop endpoint or
	// server shutdown.
	if err := conn.engine.Start(context.Background(), sources); err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	s.hub.Broadcast(websocket.TypeRunState, websocket.RunStateEvent{
		Instrument: conn.name,
		Running:    true,
		Sources:    sources,
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"running": true, "sources": sources})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connectionFor(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	conn.engine.Stop()
	s.hub.Broadcast(websocket.TypeRunState, websocket.RunStateEvent{
		Instrument: conn.name,
		Running:    false,
	})
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

// Trace history

func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "trace store is disabled")
		return
	}

	q := store.Query{
		Instrument: r.URL.Query().Get("instrument"),
		Source:     r.URL.Query().Get("source"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit %q", limit)
			return
		}
		q.Limit = n
	}
	if since := r.URL.Query().Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since %q", since)
			return
		}
		q.Since = ts
	}

	traces, err := s.store.List(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"traces": traces})
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "trace store is disabled")
		return
	}
	t, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTrace(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "trace store is disabled")
		return
	}
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// helpers

// forwardTraces relays engine captures onto the websocket stream until the
// subscription is torn down.
func (s *Server) forwardTraces(ch <-chan *trace.Trace) {
	for t := range ch {
		s.hub.BroadcastTrace(t)
	}
}

func (s *Server) requestedSources(w http.ResponseWriter, r *http.Request, conn *connection) ([]string, bool) {
	var req acquisitionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return nil, false
		}
	}
	sources := req.Sources
	if len(sources) == 0 {
		sources = conn.instrument.Sources().Active()
	}
	if len(sources) == 0 {
		writeError(w, http.StatusBadRequest, "no sources requested and none active")
		return nil, false
	}
	return sources, true
}

func (s *Server) cacheValue(r *http.Request, instrument, propertyPath string, payload []byte) {
	key := cache.ValueKey(instrument, propertyPath)
	if err := s.cache.Set(r.Context(), key, payload, time.Minute); err != nil {
		s.logger.Debug("value cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Server) infoLocked(conn *connection) instrumentInfo {
	return instrumentInfo{
		Name:     conn.name,
		Driver:   conn.instrument.Metadata().Name,
		Resource: conn.resource,
		Running:  conn.engine.Running(),
	}
}

func (s *Server) connectionNamesLocked() []string {
	names := make([]string, 0, len(s.connections))
	for name := range s.connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// writePathError maps resolver errors onto HTTP statuses: bad path syntax
// is the client's fault, unknown attributes and out-of-range indices are
// 404s against the instrument's object graph, and anything else is an
// instrument I/O failure.
func writePathError(w http.ResponseWriter, err error) {
	var (
		syntaxErr     *path.SyntaxError
		missingErr    *path.AttributeMissingError
		notIndexable  *path.NotIndexableError
		outOfRange    *path.IndexOutOfRangeError
		notAssignable *path.NotAssignableError
		validationErr *scpi.ValidationError
	)
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &notIndexable):
		writeError(w, http.StatusBadRequest, "%v", err)
	case errors.As(err, &missingErr), errors.As(err, &outOfRange):
		writeError(w, http.StatusNotFound, "%v", err)
	case errors.As(err, &notAssignable), errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, "%v", err)
	default:
		writeError(w, http.StatusBadGateway, "%v", err)
	}
}
