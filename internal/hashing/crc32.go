package hashing

import "hash/crc32"

// CRC32 hashes a key with the IEEE polynomial. It is the default shard
// hash: cheap, well distributed for short ASCII keys, and branch-free.
type CRC32 struct{}

func (CRC32) Hash(key []byte) uint64 {
	return uint64(crc32.ChecksumIEEE(key))
}
