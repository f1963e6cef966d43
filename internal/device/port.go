package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// Defaults applied by Open when Mode leaves a field unset.
const (
	// DefaultBaudRate matches the MCU firmware's Serial.begin(9600).
	DefaultBaudRate = 9600

	// DefaultReadBufferSize is the largest chunk handed to the writer per read.
	DefaultReadBufferSize = 256

	// DefaultCommandPrefix marks a line as an operator command for the MCU.
	DefaultCommandPrefix = "c"
)

// Overridable in tests.
var openPort = func(path string, mode *serial.Mode) (handle, error) {
	return serial.Open(path, mode)
}

// handle is the subset of serial.Port the bridge uses.
type handle interface {
	io.ReadWriteCloser
}

// Mode configures an opened port.
type Mode struct {
	BaudRate       int
	ReadBufferSize int
	CommandPrefix  string
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Stats holds port counters.
type Stats struct {
	BytesRx         uint64    `json:"bytes_rx"`
	BytesTx         uint64    `json:"bytes_tx"`
	CommandsTx      uint64    `json:"commands_tx"`
	CommandsDropped uint64    `json:"commands_dropped"`
	LastActivity    time.Time `json:"last_activity"`
	Open            bool      `json:"open"`
}

// Port is an open serial link to the MCU.
type Port struct {
	path   string
	mode   Mode
	handle handle

	open      atomic.Bool
	closeOnce sync.Once
	writeMu   sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex

	bytesRx         atomic.Uint64
	bytesTx         atomic.Uint64
	commandsTx      atomic.Uint64
	commandsDropped atomic.Uint64
	lastActivity    atomic.Int64
}

// Open opens the serial port at path with 8N1 framing.
func Open(path string, mode Mode) (*Port, error) {
	if mode.BaudRate <= 0 {
		mode.BaudRate = DefaultBaudRate
	}
	if mode.ReadBufferSize <= 0 {
		mode.ReadBufferSize = DefaultReadBufferSize
	}
	if mode.CommandPrefix == "" {
		mode.CommandPrefix = DefaultCommandPrefix
	}

	h, err := openPort(path, &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, path, err)
	}

	p := &Port{
		path:   path,
		mode:   mode,
		handle: h,
	}
	p.open.Store(true)
	p.lastActivity.Store(time.Now().Unix())
	return p, nil
}

// Path returns the OS path the port was opened with.
func (p *Port) Path() string {
	return p.path
}

// IsOpen reports whether the port is usable.
func (p *Port) IsOpen() bool {
	return p.open.Load()
}

// Send writes an operator command to the MCU as prefix + command + "\n".
//
// The command text is passed through untouched. Returns ErrWriteWhileClosed
// if the port has been closed.
func (p *Port) Send(command string) error {
	if !p.IsOpen() {
		p.commandsDropped.Add(1)
		return ErrWriteWhileClosed
	}

	line := p.mode.CommandPrefix + command + "\n"

	p.writeMu.Lock()
	n, err := p.handle.Write([]byte(line))
	p.writeMu.Unlock()

	p.bytesTx.Add(uint64(n))
	if err != nil {
		p.commandsDropped.Add(1)
		if !p.IsOpen() {
			return ErrWriteWhileClosed
		}
		return fmt.Errorf("device: write %s: %w", p.path, err)
	}

	p.commandsTx.Add(1)
	p.lastActivity.Store(time.Now().Unix())
	p.logDebug("command sent", "path", p.path, "bytes", n)
	return nil
}

// Pump copies bytes from the MCU into w until ctx is cancelled, the port is
// closed or the device goes away.
//
// Returns nil on local shutdown and an error wrapping ErrDeviceLost when the
// device stopped delivering data. The port is closed when Pump returns.
func (p *Port) Pump(ctx context.Context, w io.Writer) error {
	stop := context.AfterFunc(ctx, func() {
		//nolint:errcheck // Close during shutdown is best-effort
		p.Close()
	})
	defer stop()

	buf := make([]byte, p.mode.ReadBufferSize)
	for {
		n, err := p.handle.Read(buf)
		if n > 0 {
			p.bytesRx.Add(uint64(n))
			p.lastActivity.Store(time.Now().Unix())
			if _, werr := w.Write(buf[:n]); werr != nil {
				//nolint:errcheck // Already failing
				p.Close()
				return fmt.Errorf("device: delivering %d bytes: %w", n, werr)
			}
		}

		// Without a read timeout, a zero-byte read means the stream ended.
		if err == nil && n == 0 {
			err = io.EOF
		}
		if err == nil {
			continue
		}

		if !p.IsOpen() || ctx.Err() != nil {
			return nil
		}

		p.logError("serial read failed", err, "path", p.path, "disconnect", isDisconnect(err))
		//nolint:errcheck // The handle is already unusable
		p.Close()
		return fmt.Errorf("%w: %s: %w", ErrDeviceLost, p.path, err)
	}
}

// Close closes the port. Safe to call multiple times.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.open.Store(false)
		err = p.handle.Close()
		p.logInfo("serial port closed", "path", p.path)
	})
	return err
}

// Stats returns current port counters.
func (p *Port) Stats() Stats {
	return Stats{
		BytesRx:         p.bytesRx.Load(),
		BytesTx:         p.bytesTx.Load(),
		CommandsTx:      p.commandsTx.Load(),
		CommandsDropped: p.commandsDropped.Load(),
		LastActivity:    time.Unix(p.lastActivity.Load(), 0),
		Open:            p.IsOpen(),
	}
}

// SetLogger sets the logger for this port.
func (p *Port) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// isDisconnect reports whether err means the device was unplugged or closed
// underneath us rather than misconfigured.
func isDisconnect(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		}
	}
	return false
}

func (p *Port) getLogger() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

func (p *Port) logDebug(msg string, keysAndValues ...any) {
	if l := p.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (p *Port) logInfo(msg string, keysAndValues ...any) {
	if l := p.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (p *Port) logError(msg string, err error, keysAndValues ...any) {
	if l := p.getLogger(); l != nil {
		l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
