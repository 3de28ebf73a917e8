// Package lob implements the Length-Object-Binary encoding (Packet Format).
//
// A packet is a 2 byte big-endian header length, followed by the header and
// an opaque binary body. Headers of 7 bytes or more are JSON objects; shorter
// headers are treated as raw bytes.
package lob

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
)

var (
	// ErrInvalidPacket is returned by Decode and Encode
	ErrInvalidPacket = errors.New("lob: invalid packet")

	// ErrInvalidHeader is returned by Decode when the packet is well framed
	// but c, type or end hold a value of the wrong type.
	ErrInvalidHeader = errors.New("lob: invalid header field")
)

const (
	minJSONHeaderLen = 7
	maxHeaderLen     = 0xffff
)

// Packet represents a packet.
type Packet struct {
	json Header
	Head []byte
	Body []byte
}

// New makes a packet with a JSON header and body.
func New(body []byte) *Packet {
	return &Packet{Body: body}
}

// Decode a packet. The returned packet does not retain p.
func Decode(p []byte) (*Packet, error) {
	var (
		length int
		head   []byte
		dict   Header
		body   []byte
	)

	if len(p) < 2 {
		return nil, ErrInvalidPacket
	}

	length = int(binary.BigEndian.Uint16(p))
	if length+2 > len(p) {
		return nil, ErrInvalidPacket
	}

	head = p[2 : 2+length]
	if len(head) == 0 {
		head = nil
	}

	if len(p) > 2+length {
		body = append([]byte(nil), p[2+length:]...)
	}

	if len(head) >= minJSONHeaderLen {
		err := dict.parse(head)
		if err == ErrInvalidHeader {
			return nil, err
		}
		if err != nil {
			return nil, ErrInvalidPacket
		}
		head = nil
	} else if head != nil {
		head = append([]byte(nil), head...)
	}

	return &Packet{Head: head, json: dict, Body: body}, nil
}

// Encode a packet
func Encode(pkt *Packet) ([]byte, error) {
	if pkt == nil {
		return []byte{0, 0}, nil
	}

	var (
		buf    bytes.Buffer
		hdrLen int
	)

	buf.WriteByte(0)
	buf.WriteByte(0)

	if !pkt.json.IsZero() {
		err := pkt.json.writeTo(&buf)
		if err != nil {
			return nil, err
		}
		hdrLen = buf.Len() - 2
		if hdrLen < minJSONHeaderLen || hdrLen > maxHeaderLen {
			return nil, ErrInvalidPacket
		}
	} else if len(pkt.Head) > 0 {
		hdrLen = len(pkt.Head)
		if hdrLen >= minJSONHeaderLen {
			return nil, ErrInvalidPacket
		}
		buf.Write(pkt.Head)
	}

	buf.Write(pkt.Body)

	p := buf.Bytes()
	binary.BigEndian.PutUint16(p, uint16(hdrLen))

	return p, nil
}

// Header returns the packet JSON header. It returns nil when the packet
// carries a binary header.
func (p *Packet) Header() *Header {
	if p.Head != nil {
		return nil
	}
	return &p.json
}

// Header represents a packet header. The channel headers c, type and end have
// dedicated fields; everything else lives in Extra.
type Header struct {
	C       uint32
	Type    string
	End     bool
	HasC    bool
	HasType bool
	HasEnd  bool

	Extra map[string]interface{}
}

func (h *Header) parse(p []byte) error {
	var raw map[string]json.RawMessage

	err := json.Unmarshal(p, &raw)
	if err != nil {
		return err
	}
	if raw == nil {
		return ErrInvalidPacket
	}

	for k, v := range raw {
		switch k {

		case "c":
			err = typed(json.Unmarshal(v, &h.C))
			h.HasC = true

		case "type":
			err = typed(json.Unmarshal(v, &h.Type))
			h.HasType = true

		case "end":
			err = typed(json.Unmarshal(v, &h.End))
			h.HasEnd = true

		default:
			var x interface{}
			err = json.Unmarshal(v, &x)
			h.Set(k, x)

		}
		if err != nil {
			return err
		}
	}

	return nil
}

// typed maps a failure to decode a known field into ErrInvalidHeader.
func typed(err error) error {
	if err != nil {
		return ErrInvalidHeader
	}
	return nil
}

func (h *Header) writeTo(buf *bytes.Buffer) error {
	var first = true

	sep := func(key string) {
		if !first {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(key))
		buf.WriteByte(':')
		first = false
	}

	buf.WriteByte('{')

	if h.HasC {
		sep("c")
		buf.WriteString(strconv.FormatUint(uint64(h.C), 10))
	}

	if h.HasType {
		sep("type")
		buf.WriteString(strconv.Quote(h.Type))
	}

	if h.HasEnd {
		sep("end")
		buf.WriteString(strconv.FormatBool(h.End))
	}

	if len(h.Extra) > 0 {
		keys := make([]string, 0, len(h.Extra))
		for k := range h.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			data, err := json.Marshal(h.Extra[k])
			if err != nil {
				return err
			}
			sep(k)
			buf.Write(data)
		}
	}

	buf.WriteByte('}')
	return nil
}

// IsZero returns true when the header is the zero value or equivalent.
func (h *Header) IsZero() bool {
	return !h.HasC && !h.HasEnd && !h.HasType && len(h.Extra) == 0
}

// Get the value for key k. found is false if k is not present.
func (h *Header) Get(k string) (v interface{}, found bool) {
	if h == nil || h.Extra == nil {
		return nil, false
	}
	v, found = h.Extra[k]
	return v, found
}

// Set a the header k to v.
func (h *Header) Set(k string, v interface{}) {
	if h == nil {
		return
	}
	if h.Extra == nil {
		h.Extra = make(map[string]interface{})
	}
	h.Extra[k] = v
}

// GetString returns the string value for key k. found is false if k is not present.
func (h *Header) GetString(k string) (v string, found bool) {
	y, ok := h.Get(k)
	if !ok {
		return "", false
	}
	x, ok := y.(string)
	if !ok {
		return "", false
	}
	return x, true
}

// SetString a the header k to v.
func (h *Header) SetString(k string, v string) {
	h.Set(k, v)
}

// GetBool returns the bool value for key k. found is false if k is not present.
func (h *Header) GetBool(k string) (v bool, found bool) {
	y, ok := h.Get(k)
	if !ok {
		return false, false
	}
	x, ok := y.(bool)
	if !ok {
		return false, false
	}
	return x, true
}

// SetBool a the header k to v.
func (h *Header) SetBool(k string, v bool) {
	h.Set(k, v)
}

// GetInt64 returns the int64 value for key k. found is false if k is not present.
func (h *Header) GetInt64(k string) (v int64, found bool) {
	y, ok := h.Get(k)
	if !ok {
		return 0, false
	}
	switch x := y.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint32:
		return int64(x), true
	case float64:
		if x != float64(int64(x)) {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}

// SetInt64 a the header k to v.
func (h *Header) SetInt64(k string, v int64) {
	h.Set(k, v)
}

// GetInt returns the int value for key k. found is false if k is not present.
func (h *Header) GetInt(k string) (v int, found bool) {
	x, ok := h.GetInt64(k)
	return int(x), ok
}

// SetInt a the header k to v.
func (h *Header) SetInt(k string, v int) {
	h.Set(k, v)
}
