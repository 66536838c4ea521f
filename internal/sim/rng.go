package sim

import (
	"hash/fnv"
	"math/rand"
	"time"
)

// tickRNG derives a *rand.Rand for tick t from the master seed, so that the
// per-tick shuffle is a pure function of (seed, tick): replaying the same
// seed over the same sequence of ticks reproduces the same shuffles
// regardless of how many entities were active or what earlier handlers did,
// as long as the active-entity slice fed into it is itself reproduced.
// A nil master seed falls back to OS/time-seeded entropy and runs are not
// reproducible.
func tickRNG(masterSeed *int64, tick int) *rand.Rand {
	if masterSeed == nil {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	h := fnv.New64a()
	var buf [16]byte
	putInt64(buf[0:8], *masterSeed)
	putInt64(buf[8:16], int64(tick))
	_, _ = h.Write(buf[:])
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

// shuffle returns a copy of ids shuffled deterministically by rng, using
// the Fisher-Yates algorithm via rand.Shuffle.
func shuffle[T any](rng *rand.Rand, ids []T) []T {
	out := make([]T, len(ids))
	copy(out, ids)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
