package service

import "math/rand/v2"

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomSource is the subset of *rand.Rand used by the gift core.  Tests
// pass a seeded *rand.Rand; production uses the package-level generator,
// which is safe for concurrent use.
type RandomSource interface {
	Int64N(n int64) int64
}

type globalSource struct{}

func (globalSource) Int64N(n int64) int64 { return rand.Int64N(n) }

// TokenGenerator issues candidate gift tokens.  It does not guarantee
// uniqueness; the caller checks candidates against the store.
type TokenGenerator interface {
	Create() string
}

// RandomTokenGenerator draws Size characters uniformly from [a-z0-9].
type RandomTokenGenerator struct {
	Size int
	src  RandomSource
}

// NewTokenGenerator returns a generator of size-character tokens.  A nil
// src selects the shared package-level source.
func NewTokenGenerator(size int, src RandomSource) *RandomTokenGenerator {
	if src == nil {
		src = globalSource{}
	}
	return &RandomTokenGenerator{Size: size, src: src}
}

func (g *RandomTokenGenerator) Create() string {
	b := make([]byte, g.Size)
	for i := range b {
		b[i] = tokenAlphabet[g.src.Int64N(int64(len(tokenAlphabet)))]
	}
	return string(b)
}
