package handler

import (
	"bytes"
	"strconv"

	"github.com/shardcached/shardcached/internal/store"
	"github.com/shardcached/shardcached/internal/wire"
)

var (
	replyStored     = []byte("STORED\r\n")
	replyNotStored  = []byte("NOT_STORED\r\n")
	replyExists     = []byte("EXISTS\r\n")
	replyNotFound   = []byte("NOT_FOUND\r\n")
	replyDeleted    = []byte("DELETED\r\n")
	replyEnd        = []byte("END\r\n")
	replyValue      = []byte("VALUE ")
	replyTooBig     = []byte("SERVER_ERROR response too large\r\n")
	replyNonNumeric = []byte("CLIENT_ERROR cannot increment or decrement non-numeric value\r\n")
	crlfBytes       = []byte("\r\n")
	spaceBytes      = []byte(" ")
)

// DefaultMaxResponseBytes bounds a single rendered response, the
// growable-buffer-plus-ceiling resolution SPEC_FULL.md §4 gives to the
// source's fixed-size sbuf-overflow question.
const DefaultMaxResponseBytes = 4 << 20

// buildResponse renders the reply for a completed, non-noreply Request
// (spec.md §4.5). It is called exactly once per Request, after
// NCompleted reaches NStarted.
func buildResponse(p *pending, maxBytes int) []byte {
	switch p.cmd.Kind {
	case wire.KindGet, wire.KindGets:
		return buildGetResponse(p, maxBytes)
	case wire.KindDelete:
		item := p.req.Items[0]
		if item.Found {
			return replyDeleted
		}
		return replyNotFound
	case wire.KindIncr, wire.KindDecr:
		return buildArithResponse(p.req.Items[0])
	default: // storage family: set/add/replace/append/prepend/cas
		return buildStorageResponse(p.req.Items[0])
	}
}

func buildStorageResponse(item *store.WorkItem) []byte {
	if item.SetOp == store.SetCas {
		switch {
		case item.StoredOK:
			return replyStored
		case item.CASExists:
			return replyExists
		default:
			return replyNotFound
		}
	}
	if item.StoredOK {
		return replyStored
	}
	return replyNotStored
}

func buildArithResponse(item *store.WorkItem) []byte {
	if !item.Found {
		return replyNotFound
	}
	if item.NonNumeric {
		return replyNonNumeric
	}
	out := make([]byte, 0, len(item.NewValue)+2)
	out = append(out, item.NewValue...)
	out = append(out, crlfBytes...)
	return out
}

// buildGetResponse renders VALUE lines for every hit, in the wire order
// the keys were requested, followed by a single END (spec.md §4.5's
// get-family rule).
func buildGetResponse(p *pending, maxBytes int) []byte {
	var buf bytes.Buffer
	withCas := p.cmd.Kind == wire.KindGets

	for _, item := range p.req.Items {
		if !item.Found {
			continue
		}

		buf.Write(replyValue)
		buf.Write(item.Key)
		buf.Write(spaceBytes)
		buf.WriteString(strconv.FormatUint(uint64(item.Result.Flags), 10))
		buf.Write(spaceBytes)
		buf.WriteString(strconv.Itoa(len(item.Result.Value)))
		if withCas {
			buf.Write(spaceBytes)
			buf.WriteString(strconv.FormatUint(item.Result.CAS, 10))
		}
		buf.Write(crlfBytes)
		buf.Write(item.Result.Value)
		buf.Write(crlfBytes)

		if maxBytes > 0 && buf.Len() > maxBytes {
			return replyTooBig
		}
	}

	buf.Write(replyEnd)
	if maxBytes > 0 && buf.Len() > maxBytes {
		return replyTooBig
	}
	return buf.Bytes()
}
