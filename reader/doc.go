// Package reader implements the serial link to the attached token reader
// and the line-oriented message vocabulary it speaks.
//
// The reader pushes one UTF-8 line per message (RFID_OK, RFID_LOST,
// HEARTBEAT, ...). The link surfaces three signals to its handler: opened,
// line-received and closed/errored. It never reconnects on its own; retry
// policy belongs to the gate so all security transitions live in one place.
package reader
