package wire

// TCP field offsets (RFC 9293) relative to the start of the TCP header.
// GSO's per-segment rewrite only ever touches sequence number, the
// flags byte, and the checksum; nothing else in the header is
// interpreted, so this stays a handful of offsets rather than a full
// parsed struct.
const (
	TCPSeqOffset      = 4
	TCPFlagsOffset    = 13
	TCPChecksumOffset = 16
	TCPHeaderMinLen   = 20
)

// TCP flag bits, as laid out in the single flags byte at TCPFlagsOffset.
const (
	TCPFlagFIN = 0x01
	TCPFlagSYN = 0x02
	TCPFlagRST = 0x04
	TCPFlagPSH = 0x08
	TCPFlagACK = 0x10
	TCPFlagURG = 0x20
)
