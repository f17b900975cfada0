package store

import (
	"crypto/rand"
	"sync"
	"time"
)

// pushAlphabet sorts in ASCII order so generated keys sort by creation
// time lexicographically.
const pushAlphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// PushIDGenerator produces 20-character keys: 8 characters of millisecond
// timestamp followed by 12 random characters. Keys generated within the
// same millisecond increment the random suffix to stay monotonic.
type PushIDGenerator struct {
	mu         sync.Mutex
	lastMillis int64
	lastRand   [12]int
}

func NewPushIDGenerator() *PushIDGenerator {
	return &PushIDGenerator{lastMillis: -1}
}

// Next returns a fresh push key.
func (g *PushIDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now == g.lastMillis {
		// Same millisecond: bump the previous suffix.
		for i := 11; i >= 0; i-- {
			if g.lastRand[i] != len(pushAlphabet)-1 {
				g.lastRand[i]++
				break
			}
			g.lastRand[i] = 0
		}
	} else {
		g.lastMillis = now
		var buf [12]byte
		if _, err := rand.Read(buf[:]); err != nil {
			// crypto/rand never fails on supported platforms; fall back
			// to a time-derived suffix if it somehow does.
			for i := range buf {
				buf[i] = byte(now >> uint(i))
			}
		}
		for i := range g.lastRand {
			g.lastRand[i] = int(buf[i]) % len(pushAlphabet)
		}
	}

	var key [20]byte
	ts := now
	for i := 7; i >= 0; i-- {
		key[i] = pushAlphabet[ts%int64(len(pushAlphabet))]
		ts /= int64(len(pushAlphabet))
	}
	for i, v := range g.lastRand {
		key[8+i] = pushAlphabet[v]
	}
	return string(key[:])
}
