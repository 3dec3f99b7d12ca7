package store

import "time"

// thirtyDays is the memcached cutover: an exptime token at or below
// this many seconds is relative to now; above it, it is read as an
// absolute Unix timestamp.
const thirtyDays = 60 * 60 * 24 * 30

// Item is the concrete value a shard stores for a key: the payload the
// client wrote, its flags, an absolute expiry, and a CAS token stamped
// on every successful mutation. spec.md §3 describes "Value: opaque
// byte string with associated 32-bit flags and expiry" and treats the
// storage engine as an external collaborator; Item is this repo's
// concrete realization of that value.
type Item struct {
	Value  []byte
	Flags  uint32
	Expiry time.Time // zero means "never expires"
	CAS    uint64
}

func (it *Item) expired(now time.Time) bool {
	return it != nil && !it.Expiry.IsZero() && !it.Expiry.After(now)
}

// NormalizeExptime converts a raw exptime token, as parsed off the
// wire, into an absolute expiry instant. A token of 0 means "never".
func NormalizeExptime(raw int64, now time.Time) time.Time {
	if raw == 0 {
		return time.Time{}
	}
	if raw < 0 {
		// Already-expired sentinel: memcached treats negative exptime
		// as "expire immediately".
		return now.Add(-time.Second)
	}
	if raw <= thirtyDays {
		return now.Add(time.Duration(raw) * time.Second)
	}

	return time.Unix(raw, 0)
}
