package transports

import (
	"encoding/json"
	"sync"
)

// AddrDecoder decodes the JSON form of an address.
type AddrDecoder func(data []byte) (Addr, error)

var (
	decodersMtx sync.RWMutex
	decoders    = map[string]AddrDecoder{}
)

// RegisterAddrDecoder registers the decoder for addresses of network typ.
// Addr types that are expected to be communicated through telehash must be
// registered here.
func RegisterAddrDecoder(typ string, decoder AddrDecoder) {
	if typ == "" || decoder == nil {
		panic("transports: invalid address decoder")
	}

	decodersMtx.Lock()
	defer decodersMtx.Unlock()

	if decoders[typ] != nil {
		panic("transports: address type is already registered: " + typ)
	}
	decoders[typ] = decoder
}

// DecodeAddr will decode an address from JSON.
// ErrInvalidAddr is returned when the address could not be decoded.
func DecodeAddr(data []byte) (Addr, error) {
	var desc struct {
		Type string `json:"type"`
	}

	err := json.Unmarshal(data, &desc)
	if err != nil {
		return nil, ErrInvalidAddr
	}

	decodersMtx.RLock()
	decoder := decoders[desc.Type]
	decodersMtx.RUnlock()

	if decoder == nil {
		return nil, ErrInvalidAddr
	}

	addr, err := decoder(data)
	if err != nil {
		return nil, ErrInvalidAddr
	}
	return addr, nil
}
