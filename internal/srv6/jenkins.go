package srv6

import "encoding/binary"

// JenkinsHash64 is Bob Jenkins' one-at-a-time hash extended to a 64-bit
// accumulator. GTP6.E uses it over the inner payload to derive a UDP
// source port with enough entropy for downstream ECMP hashing.
func JenkinsHash64(data []byte) uint64 {
	var hash uint64
	for _, b := range data {
		hash += uint64(b)
		hash += hash << 10
		hash ^= hash >> 6
	}
	hash += hash << 3
	hash ^= hash >> 11
	hash += hash << 15
	return hash
}

// FoldHashToPort XOR-folds a 64-bit hash into a 16-bit UDP source port.
//
// The reference implementation aliases the hash as an array of u16 words
// and XORs indices [0,1,3,4]; on a 64-bit word that array only has four
// elements (indices 0-3), so index 4 reads one word past the end. §9
// open question 2 directs implementers to treat this as "XOR-fold the
// first two 16-bit halves" rather than reproduce the out-of-bounds read,
// so this folds only w[0] and w[1].
func FoldHashToPort(hash uint64) uint16 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], hash)
	w0 := binary.BigEndian.Uint16(buf[0:2])
	w1 := binary.BigEndian.Uint16(buf[2:4])
	return w0 ^ w1
}
