package lob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoding(t *testing.T) {
	assert := assert.New(t)

	var tab = []*Packet{
		{Head: []byte("hello!")},
		{Head: []byte("hello!"), Body: []byte("world")},
		{json: Header{Extra: map[string]interface{}{"hello": 5.0}}},
		{json: Header{Extra: map[string]interface{}{"hello": 5.0}}, Body: []byte("world")},
		{json: Header{C: 7, HasC: true, Type: "ping", HasType: true}, Body: []byte("world")},
		{json: Header{C: 7, HasC: true, End: true, HasEnd: true}},
	}

	for _, e := range tab {
		data, err := Encode(e)
		assert.NoError(err)
		assert.NotEmpty(data)

		o, err := Decode(data)
		assert.NoError(err)
		assert.Equal(e, o)
	}
}

func TestEncodeHeaderOrder(t *testing.T) {
	assert := assert.New(t)

	pkt := New([]byte("x"))
	hdr := pkt.Header()
	hdr.SetString("z", "last")
	hdr.SetInt("a", 1)
	hdr.C, hdr.HasC = 3, true
	hdr.Type, hdr.HasType = "seek", true

	data, err := Encode(pkt)
	assert.NoError(err)

	expected := `{"c":3,"type":"seek","a":1,"z":"last"}`
	assert.Equal(byte(0), data[0])
	assert.Equal(byte(len(expected)), data[1])
	assert.Equal(expected, string(data[2:2+len(expected)]))
	assert.Equal("x", string(data[2+len(expected):]))
}

func TestDecodeInvalid(t *testing.T) {
	assert := assert.New(t)

	var tab = [][]byte{
		nil,
		{0},
		{0, 5, '{'},
		append([]byte{0, 9}, []byte(`[1,2,3,4]`)...),
		append([]byte{0, 8}, []byte(`{"c":1,}`)...),
	}

	for _, p := range tab {
		pkt, err := Decode(p)
		assert.Equal(ErrInvalidPacket, err, "input=%q", p)
		assert.Nil(pkt)
	}
}

func TestDecodeInvalidHeaderField(t *testing.T) {
	assert := assert.New(t)

	var tab = []string{
		`{"c":-1}`,
		`{"c":"1"}`,
		`{"end":12}`,
		`{"type":5}`,
	}

	for _, h := range tab {
		p := append([]byte{0, byte(len(h))}, h...)
		pkt, err := Decode(p)
		assert.Equal(ErrInvalidHeader, err, "input=%q", h)
		assert.Nil(pkt)
	}
}

func TestHeaderAccessors(t *testing.T) {
	assert := assert.New(t)

	data := append([]byte{0, 32}, []byte(`{"at":1400000000000,"line":"ab"}`)...)
	pkt, err := Decode(data)
	if assert.NoError(err) {
		at, ok := pkt.Header().GetInt64("at")
		assert.True(ok)
		assert.Equal(int64(1400000000000), at)

		line, ok := pkt.Header().GetString("line")
		assert.True(ok)
		assert.Equal("ab", line)

		_, ok = pkt.Header().GetBool("line")
		assert.False(ok)

		_, ok = pkt.Header().GetString("missing")
		assert.False(ok)
	}
}
