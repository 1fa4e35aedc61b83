package hexconv

// Halfbyte maps an ASCII hex digit onto its value. Any other character is mapped
// onto 0xFF, so two looked up halves can be validated at once by checking x|y.
var Halfbyte = func() (table [256]byte) {
	for i := range table {
		table[i] = 0xFF
	}

	for c := '0'; c <= '9'; c++ {
		table[c] = byte(c - '0')
	}

	for c := 'a'; c <= 'f'; c++ {
		table[c] = byte(c-'a') + 10
		table[c-'a'+'A'] = byte(c-'a') + 10
	}

	return table
}()

// Decode returns the byte encoded by two hex digits and whether they were valid.
func Decode(hi, lo byte) (byte, bool) {
	x, y := Halfbyte[hi], Halfbyte[lo]
	if x|y == 0xFF {
		return 0, false
	}

	return x<<4 | y, true
}
