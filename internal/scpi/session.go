package scpi

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Session is a line-oriented SCPI connection to one instrument. A mutex
// serializes each command/response exchange, so one session can be shared
// between the acquisition loop and concurrent property access.
type Session struct {
	rw         io.ReadWriter
	reader     *bufio.Reader
	terminator string
	timeout    time.Duration
	logger     *zap.Logger

	// mu keeps a query's write and read adjacent on the wire; without it
	// interleaved queries would cross responses between callers.
	mu sync.Mutex
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithTerminator overrides the command terminator appended to every write.
// The default is "\n".
func WithTerminator(term string) SessionOption {
	return func(s *Session) { s.terminator = term }
}

// WithTimeout sets the dial and read timeout used by Open
func WithTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// WithLogger attaches a logger for command tracing
func WithLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// NewSession wraps an existing transport in a Session. Used directly by
// tests; production code goes through Open.
func NewSession(rw io.ReadWriter, opts ...SessionOption) *Session {
	s := &Session{
		rw:         rw,
		terminator: "\n",
		timeout:    5 * time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reader = bufio.NewReader(rw)
	return s
}

// Open parses the resource string, dials the transport, and returns a live
// session.
func Open(resource string, opts ...SessionOption) (*Session, error) {
	res, err := ParseResource(resource)
	if err != nil {
		return nil, err
	}

	// Apply options to a throwaway session first so the timeout is known
	// before dialing.
	probe := NewSession(nil, opts...)

	rw, err := res.dial(probe.timeout)
	if err != nil {
		return nil, err
	}

	s := NewSession(rw, opts...)
	s.logger.Info("session opened",
		zap.String("resource", resource),
		zap.String("address", res.Address()))
	return s, nil
}

// Command sends a command with no response expected
func (s *Session) Command(format string, a ...any) error {
	cmd := format
	if len(a) > 0 {
		cmd = fmt.Sprintf(format, a...)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(cmd)
}

// send writes one terminated command line; callers hold s.mu.
func (s *Session) send(cmd string) error {
	s.logger.Debug("scpi command", zap.String("cmd", cmd))
	if _, err := fmt.Fprintf(s.rw, "%s%s", cmd, s.terminator); err != nil {
		return fmt.Errorf("writing command %q: %w", cmd, err)
	}
	return nil
}

// armReadDeadline bounds the pending read on transports that support
// deadlines (TCP). Serial reads are bounded by the port's read timeout set
// at dial time.
func (s *Session) armReadDeadline() {
	type deadliner interface{ SetReadDeadline(time.Time) error }
	if d, ok := s.rw.(deadliner); ok && s.timeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			s.logger.Debug("setting read deadline failed", zap.Error(err))
		}
	}
}

// Query sends a query and reads one response line, with surrounding
// whitespace and the terminator trimmed. Satisfies query.Querier.
func (s *Session) Query(q string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.send(q); err != nil {
		return "", err
	}
	s.armReadDeadline()
	line, err := s.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading response to %q: %w", q, err)
	}
	value := strings.TrimSpace(line)
	s.logger.Debug("scpi query", zap.String("query", q), zap.String("value", value))
	return value, nil
}

// QueryBlock sends a query whose response is an IEEE 488.2 definite-length
// block and returns the raw block payload.
func (s *Session) QueryBlock(q string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.send(q); err != nil {
		return nil, err
	}
	s.armReadDeadline()
	payload, err := readBlock(s.reader)
	if err != nil {
		return nil, fmt.Errorf("reading block response to %q: %w", q, err)
	}
	s.logger.Debug("scpi block query", zap.String("query", q), zap.Int("bytes", len(payload)))
	return payload, nil
}

// Identify issues *IDN? and returns the identification string
func (s *Session) Identify() (string, error) {
	return s.Query("*IDN?")
}

// Reset issues *RST
func (s *Session) Reset() error {
	return s.Command("*RST")
}

// OperationComplete issues *OPC? and blocks until the instrument reports
// that pending operations have finished.
func (s *Session) OperationComplete() error {
	resp, err := s.Query("*OPC?")
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp) != "1" {
		return fmt.Errorf("unexpected *OPC? response %q", resp)
	}
	return nil
}

// SystemError drains one entry from the instrument error queue
func (s *Session) SystemError() (string, error) {
	return s.Query(":SYSTem:ERRor?")
}

// Close closes the underlying transport if it is closable
func (s *Session) Close() error {
	var err error
	if closer, ok := s.rw.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	if err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	s.logger.Info("session closed")
	return nil
}
