package telehash

import (
	"github.com/telehash/gotelehash/cipherset"
	"github.com/telehash/gotelehash/lob"
)

// ChannelID identifies a channel within its line.
type ChannelID uint32

// ChannelPacket is one application message on a channel.
type ChannelPacket struct {
	ChannelID ChannelID

	// Type is only carried by the first packet of a channel.
	Type string

	// End marks the last packet of a channel.
	End bool

	// Header holds any other header fields.
	Header map[string]interface{}

	Body []byte
}

// HasType reports whether the packet declares a channel type.
func (p *ChannelPacket) HasType() bool {
	return p.Type != ""
}

func (p *ChannelPacket) String() string {
	if p.HasType() {
		return "ChannelPacket[" + p.Type + "]"
	}
	return "ChannelPacket"
}

func (p *ChannelPacket) toLob() *lob.Packet {
	pkt := lob.New(p.Body)
	hdr := pkt.Header()

	hdr.C, hdr.HasC = uint32(p.ChannelID), true
	if p.Type != "" {
		hdr.Type, hdr.HasType = p.Type, true
	}
	if p.End {
		hdr.End, hdr.HasEnd = true, true
	}
	for k, v := range p.Header {
		switch k {
		case "c", "type", "end":
			continue
		}
		hdr.Set(k, v)
	}

	return pkt
}

// EncodeChannelPacket returns the plaintext form of p that is sealed into a
// line packet.
func EncodeChannelPacket(p *ChannelPacket) ([]byte, error) {
	if p == nil || p.ChannelID == 0 {
		return nil, ErrInvalidChannelPacket
	}
	return lob.Encode(p.toLob())
}

// DecodeChannelPacket parses the plaintext of a line packet. The packet must
// have a non zero channel id.
func DecodeChannelPacket(inner []byte) (*ChannelPacket, error) {
	pkt, err := lob.Decode(inner)
	if err == lob.ErrInvalidHeader {
		return nil, ErrInvalidChannelPacket
	}
	if err != nil {
		return nil, err
	}

	hdr := pkt.Header()
	if hdr == nil || !hdr.HasC || hdr.C == 0 {
		return nil, ErrInvalidChannelPacket
	}

	p := &ChannelPacket{
		ChannelID: ChannelID(hdr.C),
		Body:      pkt.Body,
	}
	if hdr.HasType {
		p.Type = hdr.Type
	}
	if hdr.HasEnd {
		p.End = hdr.End
	}
	if len(hdr.Extra) > 0 {
		p.Header = make(map[string]interface{}, len(hdr.Extra))
		for k, v := range hdr.Extra {
			p.Header[k] = v
		}
	}

	return p, nil
}

// LinePacket is a decrypted line packet as delivered to Line.HandleIncoming.
type LinePacket struct {
	// LineID is the incoming line id the packet was addressed to.
	LineID cipherset.LineID

	Channel *ChannelPacket
}
