package reader

import "strings"

// Wire vocabulary, reader → host. One message per newline-terminated line.
const (
	lineBootOK     = "BOOT_OK"
	lineKeyOK      = "RFID_OK"
	lineKeyLost    = "RFID_LOST"
	lineKeyInvalid = "RFID_INVALID"
	lineInvalidUID = "INVALID_UID:"
	lineHeartbeat  = "HEARTBEAT"
	lineVersion    = "RFID_VERSION:"
	lineError      = "ERROR:"
)

// CmdStatus requests a fresh status report from the reader. It is the only
// host → reader command; the reader answers with its current presence state.
const CmdStatus = "STATUS"

// Kind identifies the type of a parsed reader message.
type Kind int

const (
	// KindUnknown is any line outside the reader vocabulary. Unknown lines
	// are never guessed at; callers log and ignore them.
	KindUnknown Kind = iota
	// KindBootOK indicates the reader firmware finished booting.
	KindBootOK
	// KindKeyConfirmed indicates a registered token is present.
	KindKeyConfirmed
	// KindKeyLost indicates the previously present token was removed.
	KindKeyLost
	// KindKeyRejected indicates a token was read but is not registered.
	KindKeyRejected
	// KindMalformedKey indicates a token read produced an unusable UID.
	KindMalformedKey
	// KindHeartbeat is the periodic liveness signal.
	KindHeartbeat
	// KindFirmware carries the reader firmware version.
	KindFirmware
	// KindError carries a reader-side error detail.
	KindError
)

// String returns the string representation of the message kind.
func (k Kind) String() string {
	switch k {
	case KindBootOK:
		return "boot-ok"
	case KindKeyConfirmed:
		return "key-confirmed"
	case KindKeyLost:
		return "key-lost"
	case KindKeyRejected:
		return "key-rejected"
	case KindMalformedKey:
		return "malformed-key"
	case KindHeartbeat:
		return "heartbeat"
	case KindFirmware:
		return "firmware-version"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Message is one parsed line from the reader. It is ephemeral: consumed by
// the gate and discarded.
type Message struct {
	Kind    Kind
	TokenID string // set for KindMalformedKey
	Version string // set for KindFirmware
	Detail  string // set for KindError
	Raw     string // original line, always set
}

// Parse parses one line into a Message. It never fails; lines outside the
// vocabulary yield KindUnknown with the raw text retained.
func Parse(line string) Message {
	line = strings.TrimSpace(line)
	msg := Message{Raw: line}

	switch {
	case line == lineBootOK:
		msg.Kind = KindBootOK
	case line == lineKeyOK:
		msg.Kind = KindKeyConfirmed
	case line == lineKeyLost:
		msg.Kind = KindKeyLost
	case line == lineKeyInvalid:
		msg.Kind = KindKeyRejected
	case strings.HasPrefix(line, lineInvalidUID):
		msg.Kind = KindMalformedKey
		msg.TokenID = strings.TrimPrefix(line, lineInvalidUID)
	case line == lineHeartbeat:
		msg.Kind = KindHeartbeat
	case strings.HasPrefix(line, lineVersion):
		msg.Kind = KindFirmware
		msg.Version = strings.TrimPrefix(line, lineVersion)
	case strings.HasPrefix(line, lineError):
		msg.Kind = KindError
		msg.Detail = strings.TrimPrefix(line, lineError)
	default:
		msg.Kind = KindUnknown
	}

	return msg
}
