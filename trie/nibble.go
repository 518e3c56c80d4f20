package trie

// Hex-prefix (HP) encoding as specified in the Ethereum Yellow Paper,
// Appendix C. Nibble sequences are encoded with a prefix that packs both
// the parity of the sequence length and a leaf/extension flag.
//
// A nibble is a value in [0, 15]. A path is a sequence of nibbles. This
// engine carries no terminator nibble: leafNode and extensionNode are
// distinct node variants, so the HP flag bit alone distinguishes them and a
// leaf's path is free to be empty.

// bytesToNibbles expands a byte key into its nibble form: high nibble then
// low nibble of each byte, in order. The result has length 2*len(key).
func bytesToNibbles(key []byte) []byte {
	nibbles := make([]byte, len(key)*2)
	for i, b := range key {
		nibbles[i*2] = b >> 4
		nibbles[i*2+1] = b & 0x0f
	}
	return nibbles
}

// nibblesToBytes packs an even-length nibble sequence back into bytes.
// Panics if the length is odd.
func nibblesToBytes(nibbles []byte) []byte {
	if len(nibbles)%2 != 0 {
		panic("trie: nibblesToBytes: odd-length nibble sequence")
	}
	out := make([]byte, len(nibbles)/2)
	packNibblePairs(nibbles, out)
	return out
}

// packNibblePairs packs pairs of nibbles into bytes.
func packNibblePairs(nibbles, out []byte) {
	for bi, ni := 0, 0; ni < len(nibbles); bi, ni = bi+1, ni+2 {
		out[bi] = nibbles[ni]<<4 | nibbles[ni+1]
	}
}

// hexPrefixEncode implements 4.1's hex_prefix_encode(path, is_leaf): the
// first byte packs (flag<<5)|(odd<<4)|(odd ? first_nibble : 0); remaining
// bytes pack pairs of nibbles.
func hexPrefixEncode(path []byte, isLeaf bool) []byte {
	flag := byte(0)
	if isLeaf {
		flag = 1
	}
	buf := make([]byte, len(path)/2+1)
	buf[0] = flag << 5
	if len(path)&1 == 1 {
		buf[0] |= 1<<4 | path[0]
		path = path[1:]
	}
	packNibblePairs(path, buf[1:])
	return buf
}

// hexPrefixDecode implements 4.1's hex_prefix_decode(bs): the inverse of
// hexPrefixEncode. Returns ErrMalformedPath if the reserved high bits of the
// flag byte are set.
func hexPrefixDecode(enc []byte) (path []byte, isLeaf bool, err error) {
	if len(enc) == 0 {
		return nil, false, &MalformedPathError{Reason: "empty hex-prefix encoding"}
	}
	flags := enc[0]
	if flags&0xc0 != 0 {
		return nil, false, &MalformedPathError{Reason: "reserved flag bits set"}
	}
	isLeaf = flags&0x20 != 0
	odd := flags&0x10 != 0

	rest := enc[1:]
	path = make([]byte, 0, len(rest)*2+1)
	if odd {
		path = append(path, flags&0x0f)
	}
	for _, b := range rest {
		path = append(path, b>>4, b&0x0f)
	}
	return path, isLeaf, nil
}

// prefixLen returns the length of the common prefix of a and b.
func prefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// MalformedPathError reports a hex-prefix path that could not be decoded.
type MalformedPathError struct {
	Reason string
}

func (e *MalformedPathError) Error() string { return "trie: malformed path: " + e.Reason }

func (e *MalformedPathError) Unwrap() error { return ErrMalformedPath }
