package wire

import (
	"bytes"
	"unsafe"
)

var (
	crlf         = []byte("\r\n")
	sep          = func(b byte) bool { return b == ' ' || b == '\t' || b == '\r' || b == '\n' }
	noReplyToken = []byte("noreply")
)

// MaxKeyLen is the memcached key length ceiling (spec.md §3).
const MaxKeyLen = 250

// FindLine locates the first CRLF-terminated command line at the start
// of buf.
//
//   - ok == false means the buffer does not yet contain a full line
//     (VerdictPartial upstream).
//   - malformed == true means a '\n' was found but it either is the
//     first byte or is not preceded by '\r'; line is still the bytes up
//     to and including that '\n' so the caller can consume them.
//   - otherwise line is buf[:idx+1], the full CRLF-terminated command
//     line, ready for Tokenize.
func FindLine(buf []byte) (line []byte, malformed bool, ok bool) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return nil, false, false
	}

	if idx == 0 || buf[idx-1] != '\r' {
		return buf[:idx+1], true, true
	}

	return buf[:idx+1], false, true
}

// Tokenize splits a CRLF-terminated command line on any run of
// space/tab/CR/LF, treating the terminator bytes as end-of-line so the
// final token is the last real argument.
func Tokenize(line []byte) [][]byte {
	tokens := make([][]byte, 0, 6)

	start := -1
	for i, b := range line {
		if sep(b) {
			if start >= 0 {
				tokens = append(tokens, line[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, line[start:])
	}

	return tokens
}

// parseUint parses an ASCII-decimal byte slice into a uint64. It
// rejects empty input and any non-digit byte, unlike strconv which
// would accept a leading sign.
func parseUint(b []byte) (uint64, bool) {
	if len(b) == 0 {
		return 0, false
	}

	var v uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}

	return v, true
}

func equalToken(tok []byte, s string) bool {
	return unsafeBytesToString(tok) == s
}

func unsafeBytesToString(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}
