package wire

// Kind tags the variant of a parsed Command, mirroring the tagged union
// in spec.md §3.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSet
	KindAdd
	KindReplace
	KindAppend
	KindPrepend
	KindCas
	KindIncr
	KindDecr
	KindGet
	KindGets
	KindDelete
	KindQuit
	KindShutdown
	KindStats
	KindVersion
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindAdd:
		return "add"
	case KindReplace:
		return "replace"
	case KindAppend:
		return "append"
	case KindPrepend:
		return "prepend"
	case KindCas:
		return "cas"
	case KindIncr:
		return "incr"
	case KindDecr:
		return "decr"
	case KindGet:
		return "get"
	case KindGets:
		return "gets"
	case KindDelete:
		return "delete"
	case KindQuit:
		return "quit"
	case KindShutdown:
		return "shutdown"
	case KindStats:
		return "stats"
	case KindVersion:
		return "version"
	default:
		return "unknown"
	}
}

// IsStorage reports whether this command kind carries a data block that
// must be gated by the data-phase reader.
func (k Kind) IsStorage() bool {
	switch k {
	case KindSet, KindAdd, KindReplace, KindAppend, KindPrepend, KindCas:
		return true
	default:
		return false
	}
}

// Command is the parsed, typed representation of one memcached request
// line (plus, for storage commands, its still-pending data block).
//
// Only the fields relevant to Kind are meaningful; this mirrors the
// tagged-variant Command described in spec.md §3 without requiring a
// Go sum type.
type Command struct {
	Kind Kind

	Key  []byte   // single-key commands
	Keys [][]byte // get/gets: one or more keys, in wire order

	Flags     uint32
	Exptime   int64
	Bytes     int
	CasUnique uint64
	HasCas    bool

	Delta uint64

	HoldTime uint32

	NoReply bool
}

// ProtocolError carries the exact reply line to stage for a Malformed
// or Unimplemented verdict (spec.md §7).
type ProtocolError struct {
	Reply []byte
	msg   string
}

func (e *ProtocolError) Error() string { return e.msg }

func newProtoErr(reply []byte, msg string) *ProtocolError {
	return &ProtocolError{Reply: reply, msg: msg}
}

var (
	errLineReply          = []byte("ERROR\r\n")
	errTooManyKeysReply   = []byte("SERVER_ERROR too many keys\r\n")
	errUnimplementedReply = []byte("SERVER_ERROR functionality not supported\r\n")

	// ErrLine is returned for any syntactically malformed command line:
	// unknown command, wrong token count, non-numeric where a number is
	// required, or extra tokens on a parameterless command.
	ErrLine = newProtoErr(errLineReply, "malformed command line")

	// ErrUnimplemented is returned for a recognized command whose
	// functionality is deliberately not wired (spec.md §4.2: an
	// unparsable delete <time> is the source's Unimplemented case, not
	// a generic malformed line).
	ErrUnimplemented = newProtoErr(errUnimplementedReply, "functionality not supported")
)

// ErrTooManyKeys is returned by ParseCommand when a get/gets names more
// keys than maxOps allows (spec.md §9 open question, resolved in
// SPEC_FULL.md §4 as option (a): reject, don't silently truncate).
func ErrTooManyKeys() *ProtocolError {
	return newProtoErr(errTooManyKeysReply, "too many keys in one request")
}

// ParseCommand parses a single CRLF-terminated command line (as located
// by FindLine) into a Command, per the dispatch table in spec.md §4.2.
//
// maxOps bounds the number of keys accepted by get/gets in one command.
func ParseCommand(line []byte, maxOps int) (*Command, *ProtocolError) {
	body := line[:len(line)-2] // strip the CRLF the caller already verified
	toks := Tokenize(body)
	if len(toks) == 0 {
		return nil, ErrLine
	}

	switch {
	case equalToken(toks[0], "quit"):
		return parseNoArgControl(toks, KindQuit)
	case equalToken(toks[0], "shutdown"):
		return parseNoArgControl(toks, KindShutdown)
	case equalToken(toks[0], "stats"):
		return parseNoArgControl(toks, KindStats)
	case equalToken(toks[0], "version"):
		return parseNoArgControl(toks, KindVersion)
	case equalToken(toks[0], "set"):
		return parseStorage(toks, KindSet)
	case equalToken(toks[0], "add"):
		return parseStorage(toks, KindAdd)
	case equalToken(toks[0], "replace"):
		return parseStorage(toks, KindReplace)
	case equalToken(toks[0], "append"):
		return parseStorage(toks, KindAppend)
	case equalToken(toks[0], "prepend"):
		return parseStorage(toks, KindPrepend)
	case equalToken(toks[0], "cas"):
		return parseStorage(toks, KindCas)
	case equalToken(toks[0], "incr"):
		return parseArithmetic(toks, KindIncr)
	case equalToken(toks[0], "decr"):
		return parseArithmetic(toks, KindDecr)
	case equalToken(toks[0], "get"):
		return parseGet(toks, KindGet, maxOps)
	case equalToken(toks[0], "gets"):
		return parseGet(toks, KindGets, maxOps)
	case equalToken(toks[0], "delete"):
		return parseDelete(toks)
	default:
		return nil, ErrLine
	}
}

func parseNoArgControl(toks [][]byte, kind Kind) (*Command, *ProtocolError) {
	if len(toks) != 1 {
		return nil, ErrLine
	}
	return &Command{Kind: kind}, nil
}

// parseStorage handles set/add/replace/append/prepend/cas:
// <cmd> <key> <flags> <exptime> <bytes> [<cas_unique>] [noreply]
func parseStorage(toks [][]byte, kind Kind) (*Command, *ProtocolError) {
	want := 5
	if kind == KindCas {
		want = 6
	}

	noReply := false
	n := len(toks)
	if n == want+1 && equalToken(toks[n-1], "noreply") {
		noReply = true
		n--
	}
	if n != want {
		return nil, ErrLine
	}
	if len(toks[1]) == 0 || len(toks[1]) > MaxKeyLen {
		return nil, ErrLine
	}

	flags, ok := parseUint(toks[2])
	if !ok || flags > 1<<32-1 {
		return nil, ErrLine
	}
	exptime, ok := parseUint(toks[3])
	if !ok {
		return nil, ErrLine
	}
	bytesLen, ok := parseUint(toks[4])
	if !ok {
		return nil, ErrLine
	}

	cmd := &Command{
		Kind:    kind,
		Key:     toks[1],
		Flags:   uint32(flags),
		Exptime: int64(exptime),
		Bytes:   int(bytesLen),
		NoReply: noReply,
	}

	if kind == KindCas {
		casUnique, ok := parseUint(toks[5])
		if !ok {
			return nil, ErrLine
		}
		cmd.CasUnique = casUnique
		cmd.HasCas = true
	}

	return cmd, nil
}

// parseArithmetic handles incr/decr: <cmd> <key> <delta> [noreply].
//
// spec.md §4.2 notes noreply is "not supported here by the source and
// may be rejected"; this implementation accepts it for symmetry with
// every other command, since accepting a strict superset of the wire
// grammar the source handles cannot break a conforming client.
func parseArithmetic(toks [][]byte, kind Kind) (*Command, *ProtocolError) {
	noReply := false
	n := len(toks)
	if n == 4 && equalToken(toks[3], "noreply") {
		noReply = true
		n--
	}
	if n != 3 {
		return nil, ErrLine
	}
	if len(toks[1]) == 0 || len(toks[1]) > MaxKeyLen {
		return nil, ErrLine
	}

	delta, ok := parseUint(toks[2])
	if !ok {
		return nil, ErrLine
	}

	return &Command{Kind: kind, Key: toks[1], Delta: delta, NoReply: noReply}, nil
}

// parseGet handles get/gets: <cmd> <key>+.
func parseGet(toks [][]byte, kind Kind, maxOps int) (*Command, *ProtocolError) {
	if len(toks) < 2 {
		return nil, ErrLine
	}

	keys := toks[1:]
	for _, k := range keys {
		if len(k) == 0 || len(k) > MaxKeyLen {
			return nil, ErrLine
		}
	}

	if maxOps > 0 && len(keys) > maxOps {
		return nil, ErrTooManyKeys()
	}

	return &Command{Kind: kind, Keys: keys}, nil
}

// parseDelete handles delete: <key> [<time>] [noreply].
//
// If the second token is literally "noreply", it sets NoReply directly.
// Otherwise it is parsed as the legacy hold-time argument, and an
// optional trailing "noreply" may follow.
func parseDelete(toks [][]byte) (*Command, *ProtocolError) {
	if len(toks) < 2 || len(toks) > 4 {
		return nil, ErrLine
	}
	if len(toks[1]) == 0 || len(toks[1]) > MaxKeyLen {
		return nil, ErrLine
	}

	cmd := &Command{Kind: KindDelete, Key: toks[1]}

	rest := toks[2:]
	if len(rest) == 0 {
		return cmd, nil
	}

	if equalToken(rest[0], "noreply") {
		if len(rest) != 1 {
			return nil, ErrLine
		}
		cmd.NoReply = true
		return cmd, nil
	}

	holdTime, ok := parseUint(rest[0])
	if !ok {
		return nil, ErrUnimplemented
	}
	cmd.HoldTime = uint32(holdTime)

	if len(rest) == 2 {
		if !equalToken(rest[1], "noreply") {
			return nil, ErrLine
		}
		cmd.NoReply = true
	} else if len(rest) > 2 {
		return nil, ErrLine
	}

	return cmd, nil
}
