package photesthesis

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// All engine hashing (plan hashes, trajectories) runs through xxhash:
// a fast 64-bit non-cryptographic hash that is stable across processes
// for a given build.

func newHasher() *xxhash.Digest {
	return xxhash.NewWithSeed(0)
}

func addStringToHash(h *xxhash.Digest, s string) {
	_, _ = h.WriteString(s)
}

func addSymbolToHash(h *xxhash.Digest, s Symbol) {
	addStringToHash(h, s.String())
}

func addValueToHash(h *xxhash.Digest, v Value) {
	addStringToHash(h, v.String())
}

// addKeyValueToHash mixes a `name "=" value` pair into h; the shape
// used for both plan-parameter hashing and user trajectories.
func addKeyValueToHash(h *xxhash.Digest, k Symbol, v Value) {
	addSymbolToHash(h, k)
	addStringToHash(h, "=")
	addValueToHash(h, v)
}

func addUint64ToHash(h *xxhash.Digest, u uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], u)
	_, _ = h.Write(buf[:])
}
