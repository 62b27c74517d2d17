// Package wire implements the BEARS-TP frame codec: the pipe-delimited
// wire format described in spec.md §6 and originally authored as
// BasicSender.make_packet / split_packet in original_source/BasicSender.py.
//
// Wire frame: <msg_type>|<seqno>|<data>|<checksum>
//
// Per the reference implementation's docstring, a full frame is budgeted as
// 5 bytes msg_type + 4 bytes seqno + 1458 bytes data + 2 bytes checksum +
// 3 pipe delimiters, which adds up to exactly the 1472-byte MTU this
// protocol targets. The frames Encode produces carry a 4-character checksum
// and a decimal seqno of up to 10 digits, so they do not always fit that
// budget (see MaxFrame).
package wire

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/ComedyRotten/bears-tp/pkg/checksum"
)

// MsgType is the tagged enumeration of frame kinds. Unknown wire tokens
// decode to TypeUnknown rather than failing decode outright, so the event
// loop can drop them per spec.md §7 ("Unknown msg_type: Drop silently").
type MsgType string

const (
	TypeStart   MsgType = "start"
	TypeData    MsgType = "data"
	TypeEnd     MsgType = "end"
	TypeAck     MsgType = "ack"
	TypeUnknown MsgType = ""
)

// Delim is the field separator. Embedded delimiters inside Data never
// confuse the codec: decode only looks at the first two and the last field.
const Delim = byte('|')

// MaxPayload is the largest Data a single frame may carry (CHUNK in
// spec.md §4.3). A data frame carrying MaxPayload bytes encodes to 1469
// bytes plus the number of digits in its seqno.
const MaxPayload = 1458

// MaxFrame is the 1472-byte MTU budget the frame format is sized against.
// Encode does not enforce it: a data frame carrying MaxPayload bytes
// exceeds it once its seqno has four or more digits.
const MaxFrame = 1472

var (
	// ErrMalformed covers frames with too few pipe-delimited fields.
	ErrMalformed = errors.New("wire: malformed frame")
	// ErrBadSeqno covers a seqno field that isn't an unsigned decimal integer.
	ErrBadSeqno = errors.New("wire: seqno is not a valid decimal integer")
)

// Packet is the in-memory form of one wire frame (spec.md §3).
type Packet struct {
	Type       MsgType
	Seqno      uint32
	Data       []byte
	ChecksumOK bool
}

// Encode serializes a packet: fields are joined with pipes, a trailing pipe
// precedes the checksum, and the checksum is computed over everything up to
// and including that trailing pipe — a strict reading of this is mandatory
// to stay wire-compatible with the reference (spec.md §9).
func Encode(msgType MsgType, seqno uint32, data []byte) []byte {
	var body bytes.Buffer
	body.WriteString(string(msgType))
	body.WriteByte(Delim)
	body.WriteString(strconv.FormatUint(uint64(seqno), 10))
	body.WriteByte(Delim)
	body.Write(data)
	body.WriteByte(Delim)

	ck := checksum.Generate(body.Bytes())

	frame := make([]byte, 0, body.Len()+len(ck))
	frame = append(frame, body.Bytes()...)
	frame = append(frame, ck...)
	return frame
}

// Decode parses a raw datagram into a Packet. It validates the checksum
// first; on failure it still returns a best-effort decode with
// ChecksumOK=false so callers can log it, but spec.md requires such frames
// be dropped regardless of what else decoded successfully.
//
// Because Data may itself contain pipe bytes, the split rule is: the first
// field is always msg_type, the second is always seqno, the last is always
// the checksum, and everything in between (rejoined with pipes) is Data.
func Decode(frame []byte) (Packet, error) {
	ok := checksum.Validate(frame)

	fields := bytes.Split(frame, []byte{Delim})
	if len(fields) < 3 {
		return Packet{}, ErrMalformed
	}

	seqno, err := strconv.ParseUint(string(fields[1]), 10, 32)
	if err != nil {
		return Packet{}, ErrBadSeqno
	}

	data := bytes.Join(fields[2:len(fields)-1], []byte{Delim})

	return Packet{
		Type:       toMsgType(fields[0]),
		Seqno:      uint32(seqno),
		Data:       data,
		ChecksumOK: ok,
	}, nil
}

func toMsgType(b []byte) MsgType {
	switch MsgType(b) {
	case TypeStart, TypeData, TypeEnd, TypeAck:
		return MsgType(b)
	default:
		return TypeUnknown
	}
}
