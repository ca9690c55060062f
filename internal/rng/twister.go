// Package rng implements the MT19937 Mersenne Twister used to drive board
// evolution.
//
// The output stream is bit-identical to the reference mt19937ar generator
// (init_genrand seeding). Saved boards carry the full generator state, so a
// restored board continues with exactly the words the original would have
// drawn next.
package rng

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/bits"
)

const (
	n         = 624
	m         = 397
	upperMask = 0x80000000
	lowerMask = 0x7fffffff
	matrixA   = 0x9908b0df

	// DefaultSeed is the seed used when none is supplied, and the seed an
	// unseeded generator falls back to on its first draw.
	DefaultSeed uint32 = 5489

	// unseeded marks a generator whose state was never initialised.
	unseeded = n + 1

	// EncodedWords is the number of little-endian words in the serialized
	// form: the cursor followed by the state array.
	EncodedWords = n + 1
)

// State is a complete copy of the generator state. It is a plain value; copying
// it is the snapshot.
type State struct {
	MT  [n]uint32
	MTI uint32
}

// Twister is an MT19937 generator. It is not safe for concurrent use; callers
// serialize access per board.
type Twister struct {
	s State
}

// New returns a generator seeded with seed.
func New(seed uint32) *Twister {
	t := &Twister{}
	t.Seed(seed)
	return t
}

// Seed reinitialises the state from a 32-bit seed. Zero is a valid seed.
func (t *Twister) Seed(seed uint32) {
	t.s.MT[0] = seed
	for i := 1; i < n; i++ {
		prev := t.s.MT[i-1]
		t.s.MT[i] = 1812433253*(prev^(prev>>30)) + uint32(i)
	}
	t.s.MTI = n
}

// Uint32 returns the next tempered word.
func (t *Twister) Uint32() uint32 {
	s := &t.s
	if s.MTI >= n {
		if s.MTI == unseeded {
			t.Seed(DefaultSeed)
		}
		t.generate()
	}

	y := s.MT[s.MTI]
	s.MTI++

	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

func (t *Twister) generate() {
	mt := &t.s.MT
	mag := func(y uint32) uint32 { return (y & 1) * matrixA }

	kk := 0
	for ; kk < n-m; kk++ {
		y := (mt[kk] & upperMask) | (mt[kk+1] & lowerMask)
		mt[kk] = mt[kk+m] ^ (y >> 1) ^ mag(y)
	}
	for ; kk < n-1; kk++ {
		y := (mt[kk] & upperMask) | (mt[kk+1] & lowerMask)
		mt[kk] = mt[kk+m-n] ^ (y >> 1) ^ mag(y)
	}
	y := (mt[n-1] & upperMask) | (mt[0] & lowerMask)
	mt[n-1] = mt[m-1] ^ (y >> 1) ^ mag(y)
	t.s.MTI = 0
}

// Snapshot returns a copy of the current state.
func (t *Twister) Snapshot() State {
	return t.s
}

// Restore rewinds the generator to a previously captured state.
func (t *Twister) Restore(s State) {
	t.s = s
}

// String encodes the state as base64 of little-endian words, cursor first.
func (t *Twister) String() string {
	buf := make([]byte, 4*EncodedWords)
	binary.LittleEndian.PutUint32(buf, t.s.MTI)
	for i, w := range t.s.MT {
		binary.LittleEndian.PutUint32(buf[4*(i+1):], w)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// Parse decodes a state produced by String.
func Parse(encoded string) (*Twister, error) {
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("rng: decode state: %w", err)
	}
	if len(buf) != 4*EncodedWords {
		return nil, fmt.Errorf("rng: state has %d bytes, want %d", len(buf), 4*EncodedWords)
	}
	t := &Twister{}
	t.s.MTI = binary.LittleEndian.Uint32(buf)
	if t.s.MTI > unseeded {
		return nil, fmt.Errorf("rng: cursor %d out of range", t.s.MTI)
	}
	for i := range t.s.MT {
		t.s.MT[i] = binary.LittleEndian.Uint32(buf[4*(i+1):])
	}
	return t, nil
}

// Intn returns a uniform integer in [0,bound) from a single draw, computed as
// (bound*r)>>32.
func (t *Twister) Intn(bound uint32) uint32 {
	return uint32((uint64(bound) * uint64(t.Uint32())) >> 32)
}

// Below returns a uniform integer in [0,bound). It consumes one draw when
// bound fits in 32 bits and two draws otherwise. The scaled product is taken
// in 128-bit arithmetic, so no draw is rejected.
func (t *Twister) Below(bound uint64) uint64 {
	if bound>>32 == 0 {
		return (bound * uint64(t.Uint32())) >> 32
	}
	r := uint64(t.Uint32())<<32 | uint64(t.Uint32())
	hi, _ := bits.Mul64(bound, r)
	return hi
}

// Shuffle permutes n elements with the Knuth shuffle, consuming exactly n-1
// draws.
func (t *Twister) Shuffle(count int, swap func(i, j int)) {
	for k := 0; k < count-1; k++ {
		i := k + int(t.Intn(uint32(count-k)))
		swap(i, k)
	}
}
