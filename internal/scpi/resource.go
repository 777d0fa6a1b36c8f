// Package scpi provides the live instrument runtime: VISA-style resource
// addressing, a session speaking SCPI over TCP or serial transports, and an
// instrument object graph built from driver metadata that the path resolver
// traverses.
package scpi

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// ResourceKind identifies the transport a resource string addresses
type ResourceKind int

const (
	// ResourceTCP is a raw socket resource (TCPIP...::SOCKET)
	ResourceTCP ResourceKind = iota
	// ResourceSerial is a serial port resource (ASRL...)
	ResourceSerial
)

// defaultSCPIPort is the conventional raw-socket SCPI port
const defaultSCPIPort = 5025

// Resource is a parsed VISA-style resource string. Only raw socket and
// serial resources are supported; HiSLIP, USBTMC and GPIB require a VISA
// layer this project deliberately does not bind.
type Resource struct {
	Raw  string
	Kind ResourceKind

	// TCP fields
	Host string
	Port int

	// Serial fields
	Device string
	Baud   int
}

// ParseResource parses a VISA-style resource string.
//
// Supported forms:
//
//	TCPIP[board]::<host>[::<port>]::SOCKET
//	ASRL::<device>[::<baud>]::INSTR
func ParseResource(raw string) (*Resource, error) {
	parts := strings.Split(strings.TrimSpace(raw), "::")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid resource string %q", raw)
	}

	head := strings.ToUpper(parts[0])
	tail := strings.ToUpper(parts[len(parts)-1])

	switch {
	case strings.HasPrefix(head, "TCPIP"):
		if tail != "SOCKET" {
			return nil, fmt.Errorf(
				"resource %q: only raw socket TCPIP resources are supported (use ...::SOCKET)", raw)
		}
		r := &Resource{Raw: raw, Kind: ResourceTCP, Port: defaultSCPIPort}
		if len(parts) < 3 {
			return nil, fmt.Errorf("resource %q: missing host", raw)
		}
		r.Host = parts[1]
		if len(parts) == 4 {
			port, err := strconv.Atoi(parts[2])
			if err != nil {
				return nil, fmt.Errorf("resource %q: invalid port %q", raw, parts[2])
			}
			r.Port = port
		}
		return r, nil

	case strings.HasPrefix(head, "ASRL"):
		r := &Resource{Raw: raw, Kind: ResourceSerial, Baud: 9600}
		body := parts[1 : len(parts)-1]
		if tail != "INSTR" {
			// ASRL::/dev/ttyUSB0::9600 without the trailing INSTR
			body = parts[1:]
		}
		if len(body) == 0 {
			// ASRL1::INSTR numeric shorthand is VISA-specific
			return nil, fmt.Errorf("resource %q: missing serial device path", raw)
		}
		r.Device = body[0]
		if len(body) > 1 {
			baud, err := strconv.Atoi(body[1])
			if err != nil {
				return nil, fmt.Errorf("resource %q: invalid baud rate %q", raw, body[1])
			}
			r.Baud = baud
		}
		return r, nil
	}

	return nil, fmt.Errorf("unsupported resource type in %q", raw)
}

// Address renders the dial target for logs
func (r *Resource) Address() string {
	if r.Kind == ResourceTCP {
		return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
	}
	return fmt.Sprintf("%s@%d", r.Device, r.Baud)
}

// dial opens the transport for the resource
func (r *Resource) dial(timeout time.Duration) (io.ReadWriteCloser, error) {
	switch r.Kind {
	case ResourceTCP:
		conn, err := net.DialTimeout("tcp", r.Address(), timeout)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", r.Address(), err)
		}
		return conn, nil
	case ResourceSerial:
		port, err := serial.Open(r.Device, &serial.Mode{BaudRate: r.Baud})
		if err != nil {
			return nil, fmt.Errorf("open serial port %s: %w", r.Device, err)
		}
		if err := port.SetReadTimeout(timeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", r.Device, err)
		}
		return port, nil
	}
	return nil, fmt.Errorf("unsupported resource kind %d", r.Kind)
}

// ListSerialPorts enumerates serial devices present on the host, for
// instrument discovery.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
