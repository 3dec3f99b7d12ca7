package wire

import "bytes"

var badChunkReply = []byte("CLIENT_ERROR bad data chunk\r\n")

// ErrBadDataChunk stages the bad-data-chunk reply (spec.md §4.3, §7.2).
var ErrBadDataChunk = newProtoErr(badChunkReply, "bad data chunk")

// ReadDataPhase implements spec.md §4.3: given declared length n, it
// checks whether buf holds n+2 bytes yet and, if so, validates that
// those last two bytes are CRLF.
//
//   - ok == false: not enough bytes yet (VerdictPartial upstream).
//   - err != nil: the trailing two bytes were not CRLF; the caller must
//     still consume n+2 bytes as directed by spec.md §4.3.
//   - otherwise payload is buf[:n], the data block without its trailing
//     CRLF.
func ReadDataPhase(buf []byte, n int) (payload []byte, ok bool, err *ProtocolError) {
	if len(buf) < n+2 {
		return nil, false, nil
	}

	if !bytes.Equal(buf[n:n+2], crlf) {
		return nil, true, ErrBadDataChunk
	}

	return buf[:n], true, nil
}
