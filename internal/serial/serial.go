// Package serial implements SerialLink: parallel probing of candidate
// serial ports for the Adalight handshake cookie, and framed writes to the
// winning port.
//
// Grounded on seedhammer-seedhammer's driver/mjolnir/device.go, which opens
// a stepper-motor serial device at 115200 baud across a short list of
// candidate OS device names with github.com/tarm/serial, and on
// fkcurrie-fluidnc-led-golang's internal/discovery.Scanner, whose
// goroutine-per-candidate plus shared result-channel pattern is the
// concurrency shape for probing many ports without blocking on each one in
// turn.
package serial

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/tarm/serial"
)

// cookie is the ASCII handshake an Adalight device emits within
// timeoutMS of a candidate port being opened.
var cookie = []byte{'A', 'd', 'a', '\n'}

const (
	baudRate = 115200
	// minPort/maxPort is the inclusive probe range. The reference
	// implementation probes 1..255 in one revision and 1..=255 (inclusive of
	// 255) in another; spec.md §9 specifies inclusive, used here.
	minPort = 1
	maxPort = 255
)

// State is SerialLink's lifecycle state.
type State int

const (
	Unopened State = iota
	Probing
	Connected
	Failed
	Closed
)

// opener abstracts the OS-specific serial device open call so tests can
// substitute a fake without a real port.
type opener interface {
	Open(name string, readTimeout time.Duration) (io.ReadWriteCloser, error)
}

type tarmOpener struct{}

func (tarmOpener) Open(name string, readTimeout time.Duration) (io.ReadWriteCloser, error) {
	cfg := &serial.Config{Name: name, Baud: baudRate, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}

// Link is SerialLink.
type Link struct {
	opener       opener
	timeoutMS    uint32
	delayMS      uint32
	namer        func(i int) string
	state        State
	portName     string
	knownPort    bool
	writeHandle  io.ReadWriteCloser
}

// New builds a Link using the real tarm/serial-backed opener and the
// platform-default candidate naming scheme.
func New(timeoutMS, delayMS uint32) *Link {
	return &Link{
		opener:    tarmOpener{},
		timeoutMS: timeoutMS,
		delayMS:   delayMS,
		namer:     defaultPortName,
	}
}

func defaultPortName(i int) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("COM%d", i)
	}
	return fmt.Sprintf("/dev/ttyUSB%d", i-1)
}

// State reports the link's current lifecycle state.
func (l *Link) State() State { return l.state }

// Open probes for the Adalight device if none is yet known, or reopens the
// previously learned port directly. Returns true iff a write handle is now
// held.
func (l *Link) Open() bool {
	if l.knownPort {
		return l.openWrite(l.portName)
	}

	l.state = Probing
	name, found := l.probe()
	if !found {
		l.state = Failed
		return false
	}
	l.portName = name
	l.knownPort = true
	return l.openWrite(name)
}

type probeResult struct {
	name string
	conn io.ReadWriteCloser
	ok   bool
}

// probe starts a probe of every candidate port, issuing a 4-byte read on
// each, and returns the port whose matching Adalight cookie is received
// first. Every candidate is probed concurrently, so which of several
// matching ports wins depends on completion order, not port number; probe
// only blocks once, waiting for the slowest outstanding read or error.
func (l *Link) probe() (string, bool) {
	readTimeout := time.Duration(l.timeoutMS) * time.Millisecond
	results := make(chan probeResult, maxPort-minPort+1)

	for i := minPort; i <= maxPort; i++ {
		name := l.namer(i)
		go func(name string) {
			conn, err := l.opener.Open(name, readTimeout)
			if err != nil {
				results <- probeResult{name: name, ok: false}
				return
			}
			buf := make([]byte, len(cookie))
			_, err = io.ReadFull(conn, buf)
			if err == nil && bytes.Equal(buf, cookie) {
				results <- probeResult{name: name, conn: conn, ok: true}
				return
			}
			conn.Close()
			results <- probeResult{name: name, ok: false}
		}(name)
	}

	var winner *probeResult
	for i := minPort; i <= maxPort; i++ {
		r := <-results
		if r.ok && winner == nil {
			cp := r
			winner = &cp
			continue
		}
		if r.ok && r.conn != nil {
			r.conn.Close()
		}
	}
	if winner == nil {
		return "", false
	}
	winner.conn.Close()
	return winner.name, true
}

// openWrite reopens name in blocking write mode and stores the handle.
func (l *Link) openWrite(name string) bool {
	conn, err := l.opener.Open(name, time.Duration(l.delayMS)*time.Millisecond)
	if err != nil {
		l.state = Failed
		return false
	}
	l.writeHandle = conn
	l.state = Connected
	return true
}

// Send writes buf in one call. A short write or error closes the link and
// returns false; Close keeps the learned port, so the next Open reopens it
// directly without re-probing (ForgetPort forces a re-probe).
func (l *Link) Send(buf []byte) bool {
	if l.writeHandle == nil {
		return false
	}
	n, err := l.writeHandle.Write(buf)
	if err != nil || n != len(buf) {
		l.Close()
		return false
	}
	return true
}

// Close closes the write handle. The learned port name is kept so the next
// Open is fast.
func (l *Link) Close() {
	if l.writeHandle != nil {
		_ = l.writeHandle.Close()
		l.writeHandle = nil
	}
	if l.state != Failed {
		l.state = Closed
	}
}

// ForgetPort discards the learned port, forcing the next Open to re-probe
// from scratch. Not part of the normal Worker path; exists for tests and
// for an operator-triggered rescan.
func (l *Link) ForgetPort() {
	l.knownPort = false
	l.portName = ""
}
