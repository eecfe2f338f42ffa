package reader

import "errors"

// Sentinel errors for the reader link.
var (
	ErrLinkClosed  = errors.New("reader: link is closed")
	ErrLinkOpened  = errors.New("reader: link is already open")
	ErrNoHandler   = errors.New("reader: no handler registered")
	ErrDeviceEmpty = errors.New("reader: device path is empty")
	ErrInvalidBaud = errors.New("reader: baud rate must be positive")
)

// Handler receives link events. All callbacks are invoked from the link's
// single read goroutine, strictly in delivery order; implementations must
// not block for long.
type Handler interface {
	// HandleOpened is called once after the link has been opened.
	HandleOpened()
	// HandleLine is called for each non-empty line received from the reader.
	HandleLine(line string)
	// HandleClosed is called exactly once per session when the link closes,
	// whether by explicit Close or by a transport error. err is nil for a
	// clean close. Any closed link is "hardware not connected" to callers,
	// regardless of cause.
	HandleClosed(err error)
}

// Link is the byte/line-level connection to the attached token reader.
//
// A Link never self-heals: after HandleClosed fires, it stays closed until
// Open is called again by its owner.
type Link interface {
	// SetHandler registers the event handler. It is not thread-safe and
	// must be called before Open.
	SetHandler(h Handler)
	// Open establishes the connection and starts delivering events to the
	// registered handler. Open failures are returned, never fatal.
	Open() error
	// Close shuts the connection down. Closing an already-closed link is a
	// no-op.
	Close() error
	// SendCommand writes one newline-terminated command through the link's
	// single write path.
	SendCommand(cmd string) error
	// IsOpen reports whether the link currently holds an open connection.
	IsOpen() bool
}
