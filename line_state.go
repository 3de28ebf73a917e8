package telehash

// LineState is the handshake state of a line. States only advance:
// PENDING to ESTABLISHED to CLOSED, or PENDING to CLOSED.
type LineState uint8

const (
	LinePending LineState = iota
	LineEstablished
	LineClosed
)

func (s LineState) String() string {
	switch s {
	case LinePending:
		return "PENDING"
	case LineEstablished:
		return "ESTABLISHED"
	case LineClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
