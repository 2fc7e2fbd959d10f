package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Codec errors. Deserialization is strict: every byte of the input must be
// consumed and every discriminant must be a known variant.
var (
	ErrShortBuffer   = errors.New("wire: buffer too short")
	ErrTrailingBytes = errors.New("wire: trailing bytes after message")
	ErrUnknownTag    = errors.New("wire: unknown discriminant")
)

// Wire layout, little-endian throughout:
//
//	u32/u64/i64   fixed width
//	string        u64 byte length, then UTF-8 bytes
//	Option<T>     u8 0, or u8 1 then T
//	[32]byte      raw bytes
//	bool          u8 0 or 1
//	Vec<T>        u64 count, then count elements
//	enum          u32 variant tag, then the variant's fields in order

const (
	tagLogin      uint32 = 0
	tagSendToRoom uint32 = 1
	tagMove       uint32 = 2
	tagGetTime    uint32 = 3
)

const (
	tagEmpty        uint32 = 0
	tagLoginSuccess uint32 = 1
	tagChatRecv     uint32 = 2
	tagRoomData     uint32 = 3
)

// MarshalClient serializes a ClientMsg for the wire.
func MarshalClient(m ClientMsg) ([]byte, error) {
	var e encoder
	e.option(m.Token)
	e.i64(int64(m.Timestamp))

	switch b := m.Body.(type) {
	case Login:
		e.u32(tagLogin)
		e.str(b.Name)
		e.key(b.ClientPublicKey)
	case SendToRoom:
		e.u32(tagSendToRoom)
		e.str(b.Contents)
	case Move:
		e.u32(tagMove)
		e.str(b.Target)
	case GetTime:
		e.u32(tagGetTime)
	case nil:
		return nil, errors.New("wire: marshal client: nil body")
	default:
		return nil, fmt.Errorf("wire: marshal client: unsupported body %T", m.Body)
	}
	return e.bytes(), nil
}

// UnmarshalClient parses a ClientMsg, rejecting truncated input, unknown
// discriminants, and trailing bytes.
func UnmarshalClient(data []byte) (ClientMsg, error) {
	d := decoder{buf: data}

	token, err := d.option()
	if err != nil {
		return ClientMsg{}, err
	}
	ts, err := d.i64()
	if err != nil {
		return ClientMsg{}, err
	}
	tag, err := d.u32()
	if err != nil {
		return ClientMsg{}, err
	}

	msg := ClientMsg{Token: token, Timestamp: Timestamp(ts)}
	switch tag {
	case tagLogin:
		var b Login
		if b.Name, err = d.str(); err != nil {
			return ClientMsg{}, err
		}
		if b.ClientPublicKey, err = d.key(); err != nil {
			return ClientMsg{}, err
		}
		msg.Body = b
	case tagSendToRoom:
		var b SendToRoom
		if b.Contents, err = d.str(); err != nil {
			return ClientMsg{}, err
		}
		msg.Body = b
	case tagMove:
		var b Move
		if b.Target, err = d.str(); err != nil {
			return ClientMsg{}, err
		}
		msg.Body = b
	case tagGetTime:
		msg.Body = GetTime{}
	default:
		return ClientMsg{}, fmt.Errorf("%w: client body tag %d", ErrUnknownTag, tag)
	}

	if err := d.finish(); err != nil {
		return ClientMsg{}, err
	}
	return msg, nil
}

// MarshalServer serializes a ServerMsg for the wire.
func MarshalServer(m ServerMsg) ([]byte, error) {
	var e encoder

	switch m.Status.Code {
	case StatusCodeYes, StatusCodeJustNo:
		e.u32(uint32(m.Status.Code))
	case StatusCodeNo:
		e.u32(uint32(m.Status.Code))
		e.str(m.Status.Reason)
	default:
		return nil, fmt.Errorf("wire: marshal server: unsupported status code %d", m.Status.Code)
	}

	e.i64(int64(m.Timestamp))

	switch b := m.Body.(type) {
	case Empty:
		e.u32(tagEmpty)
	case LoginSuccess:
		e.u32(tagLoginSuccess)
		e.str(b.Token)
		e.key(b.PublicKey)
	case ChatRecv:
		e.u32(tagChatRecv)
		e.boolean(b.Direct)
		e.chatMsg(b.ChatMsg)
	case RoomData:
		e.u32(tagRoomData)
		e.i64(int64(b.QueryTS))
		e.u64(uint64(len(b.Logs)))
		for _, cm := range b.Logs {
			e.chatMsg(cm)
		}
		e.u64(uint64(len(b.Occupants)))
		for _, name := range b.Occupants {
			e.str(name)
		}
	case nil:
		return nil, errors.New("wire: marshal server: nil body")
	default:
		return nil, fmt.Errorf("wire: marshal server: unsupported body %T", m.Body)
	}
	return e.bytes(), nil
}

// UnmarshalServer parses a ServerMsg with the same strictness as
// UnmarshalClient.
func UnmarshalServer(data []byte) (ServerMsg, error) {
	d := decoder{buf: data}

	code, err := d.u32()
	if err != nil {
		return ServerMsg{}, err
	}
	status := Status{Code: StatusCode(code)}
	switch status.Code {
	case StatusCodeYes, StatusCodeJustNo:
	case StatusCodeNo:
		if status.Reason, err = d.str(); err != nil {
			return ServerMsg{}, err
		}
	default:
		return ServerMsg{}, fmt.Errorf("%w: status code %d", ErrUnknownTag, code)
	}

	ts, err := d.i64()
	if err != nil {
		return ServerMsg{}, err
	}
	tag, err := d.u32()
	if err != nil {
		return ServerMsg{}, err
	}

	msg := ServerMsg{Status: status, Timestamp: Timestamp(ts)}
	switch tag {
	case tagEmpty:
		msg.Body = Empty{}
	case tagLoginSuccess:
		var b LoginSuccess
		if b.Token, err = d.str(); err != nil {
			return ServerMsg{}, err
		}
		if b.PublicKey, err = d.key(); err != nil {
			return ServerMsg{}, err
		}
		msg.Body = b
	case tagChatRecv:
		var b ChatRecv
		if b.Direct, err = d.boolean(); err != nil {
			return ServerMsg{}, err
		}
		if b.ChatMsg, err = d.chatMsg(); err != nil {
			return ServerMsg{}, err
		}
		msg.Body = b
	case tagRoomData:
		var b RoomData
		qts, err := d.i64()
		if err != nil {
			return ServerMsg{}, err
		}
		b.QueryTS = Timestamp(qts)

		n, err := d.count()
		if err != nil {
			return ServerMsg{}, err
		}
		if n > 0 {
			b.Logs = make([]ChatMsg, 0, n)
			for i := uint64(0); i < n; i++ {
				cm, err := d.chatMsg()
				if err != nil {
					return ServerMsg{}, err
				}
				b.Logs = append(b.Logs, cm)
			}
		}

		n, err = d.count()
		if err != nil {
			return ServerMsg{}, err
		}
		if n > 0 {
			b.Occupants = make([]string, 0, n)
			for i := uint64(0); i < n; i++ {
				name, err := d.str()
				if err != nil {
					return ServerMsg{}, err
				}
				b.Occupants = append(b.Occupants, name)
			}
		}
		msg.Body = b
	default:
		return ServerMsg{}, fmt.Errorf("%w: server body tag %d", ErrUnknownTag, tag)
	}

	if err := d.finish(); err != nil {
		return ServerMsg{}, err
	}
	return msg, nil
}

// --- Encoder ---

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

func (e *encoder) u8(v byte) { e.buf.WriteByte(v) }

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) i64(v int64) { e.u64(uint64(v)) }

func (e *encoder) str(s string) {
	e.u64(uint64(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) key(k [32]byte) { e.buf.Write(k[:]) }

func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) option(s *string) {
	if s == nil {
		e.u8(0)
		return
	}
	e.u8(1)
	e.str(*s)
}

func (e *encoder) chatMsg(cm ChatMsg) {
	e.str(cm.Sender)
	e.i64(int64(cm.Timestamp))
	e.str(cm.Content)
}

// --- Decoder ---

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) take(n int) ([]byte, error) {
	if d.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, d.remaining())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) finish() error {
	if n := d.remaining(); n != 0 {
		return fmt.Errorf("%w: %d bytes", ErrTrailingBytes, n)
	}
	return nil
}

func (d *decoder) u8() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) i64() (int64, error) {
	v, err := d.u64()
	return int64(v), err
}

// count reads a Vec length and bounds it by the bytes actually present so a
// hostile prefix cannot force a large allocation.
func (d *decoder) count() (uint64, error) {
	n, err := d.u64()
	if err != nil {
		return 0, err
	}
	if n > uint64(d.remaining()) {
		return 0, fmt.Errorf("%w: count %d exceeds remaining %d bytes", ErrShortBuffer, n, d.remaining())
	}
	return n, nil
}

func (d *decoder) str() (string, error) {
	n, err := d.count()
	if err != nil {
		return "", err
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) key() ([32]byte, error) {
	var k [32]byte
	b, err := d.take(32)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

func (d *decoder) boolean() (bool, error) {
	b, err := d.u8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: bool byte %#x", ErrUnknownTag, b)
	}
}

func (d *decoder) option() (*string, error) {
	flag, err := d.u8()
	if err != nil {
		return nil, err
	}
	switch flag {
	case 0:
		return nil, nil
	case 1:
		s, err := d.str()
		if err != nil {
			return nil, err
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("%w: option flag %#x", ErrUnknownTag, flag)
	}
}

func (d *decoder) chatMsg() (ChatMsg, error) {
	var cm ChatMsg
	var err error
	if cm.Sender, err = d.str(); err != nil {
		return ChatMsg{}, err
	}
	ts, err := d.i64()
	if err != nil {
		return ChatMsg{}, err
	}
	cm.Timestamp = Timestamp(ts)
	if cm.Content, err = d.str(); err != nil {
		return ChatMsg{}, err
	}
	return cm, nil
}
