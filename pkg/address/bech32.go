package address

import (
	"fmt"
	"strings"
)

// Encoding selects the checksum constant (BIP-173 bech32 or BIP-350 bech32m).
type Encoding uint32

const (
	Bech32  Encoding = 1
	Bech32m Encoding = 0x2bc830a3
)

// maxBech32Len is the BIP-173 length limit for a full address string.
const maxBech32Len = 90

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// bech32CharsetRev maps bech32 characters to their 5-bit values. -1 = invalid.
var bech32CharsetRev [128]int8

func init() {
	for i := range bech32CharsetRev {
		bech32CharsetRev[i] = -1
	}
	for i, c := range bech32Charset {
		bech32CharsetRev[c] = int8(i)
	}
}

// bech32Encode encodes an HRP and 5-bit groups with the given checksum variant.
func bech32Encode(hrp string, data5 []byte, enc Encoding) (string, error) {
	if len(hrp) == 0 {
		return "", fmt.Errorf("bech32: empty HRP")
	}
	for _, c := range hrp {
		if c < 33 || c > 126 {
			return "", fmt.Errorf("bech32: invalid HRP character %q", c)
		}
	}
	hrp = strings.ToLower(hrp)

	chk := bech32CreateChecksum(hrp, data5, enc)

	var sb strings.Builder
	sb.Grow(len(hrp) + 1 + len(data5) + 6)
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, b := range data5 {
		if int(b) >= len(bech32Charset) {
			return "", fmt.Errorf("bech32: invalid 5-bit value %d", b)
		}
		sb.WriteByte(bech32Charset[b])
	}
	for _, b := range chk {
		sb.WriteByte(bech32Charset[b])
	}
	return sb.String(), nil
}

// bech32Decode splits s into HRP and 5-bit data (checksum stripped) and reports
// which checksum variant matched.
func bech32Decode(s string) (string, []byte, Encoding, error) {
	if len(s) == 0 {
		return "", nil, 0, fmt.Errorf("bech32: empty string")
	}
	if len(s) > maxBech32Len {
		return "", nil, 0, fmt.Errorf("bech32: too long (%d chars)", len(s))
	}

	hasUpper, hasLower := false, false
	for _, c := range s {
		if c < 33 || c > 126 {
			return "", nil, 0, fmt.Errorf("bech32: invalid character %q", c)
		}
		if c >= 'A' && c <= 'Z' {
			hasUpper = true
		}
		if c >= 'a' && c <= 'z' {
			hasLower = true
		}
	}
	if hasUpper && hasLower {
		return "", nil, 0, fmt.Errorf("bech32: mixed case")
	}
	s = strings.ToLower(s)

	sepIdx := strings.LastIndex(s, "1")
	if sepIdx < 1 {
		return "", nil, 0, fmt.Errorf("bech32: missing separator")
	}
	if sepIdx+7 > len(s) {
		return "", nil, 0, fmt.Errorf("bech32: too short")
	}

	hrp := s[:sepIdx]
	dataStr := s[sepIdx+1:]

	data5 := make([]byte, len(dataStr))
	for i, c := range dataStr {
		val := bech32CharsetRev[c]
		if val < 0 {
			return "", nil, 0, fmt.Errorf("bech32: invalid character %q", c)
		}
		data5[i] = byte(val)
	}

	var enc Encoding
	switch bech32Polymod(append(bech32HRPExpand(hrp), data5...)) {
	case uint32(Bech32):
		enc = Bech32
	case uint32(Bech32m):
		enc = Bech32m
	default:
		return "", nil, 0, fmt.Errorf("bech32: invalid checksum")
	}

	return hrp, data5[:len(data5)-6], enc, nil
}

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HRPExpand(hrp string) []byte {
	ret := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		ret = append(ret, byte(c>>5))
	}
	ret = append(ret, 0)
	for _, c := range hrp {
		ret = append(ret, byte(c&31))
	}
	return ret
}

func bech32CreateChecksum(hrp string, data []byte, enc Encoding) []byte {
	values := append(bech32HRPExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	polymod := bech32Polymod(values) ^ uint32(enc)
	ret := make([]byte, 6)
	for i := 0; i < 6; i++ {
		ret[i] = byte((polymod >> uint(5*(5-i))) & 31)
	}
	return ret
}

// convertBits regroups data between bit widths (e.g. 8 -> 5).
// pad controls whether incomplete groups are zero-padded.
func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	acc := uint32(0)
	bits := uint(0)
	maxv := uint32((1 << toBits) - 1)
	var ret []byte

	for _, b := range data {
		if uint32(b)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data byte: %d", b)
		}
		acc = acc<<fromBits | uint32(b)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			ret = append(ret, byte((acc>>bits)&maxv))
		}
	}

	if pad {
		if bits > 0 {
			ret = append(ret, byte((acc<<(toBits-bits))&maxv))
		}
	} else {
		if bits >= fromBits {
			return nil, fmt.Errorf("non-zero padding")
		}
		if (acc<<(toBits-bits))&maxv != 0 {
			return nil, fmt.Errorf("non-zero padding")
		}
	}

	return ret, nil
}
