// Package rng provides the seeded generators for the scenario-building
// stages.
//
// Each stage owns one stream, created with New(seed, stage) where stage
// is the stage name ("render", "perturb"). Within a stage the Generator
// is passed by pointer and consumed in a fixed order, so the position
// after any draw is reproducible from the seed alone. Streams do not
// share state: re-running a single stage yields the same output as a
// full run, and a change in how many values one stage draws never shifts
// another stage's values.
package rng

import (
	"hash/fnv"
	"math/rand/v2"
)

// Generator is a deterministic pseudo-random stream. It is not safe for
// concurrent use.
type Generator struct {
	r     *rand.Rand
	draws uint64
}

// New returns a generator for the named stream under seed. Distinct stream
// names give independent sequences for the same seed.
func New(seed uint64, stream string) *Generator {
	h := fnv.New64a()
	_, _ = h.Write([]byte(stream))
	return &Generator{r: rand.New(rand.NewPCG(seed, h.Sum64()))}
}

// IntN returns a value in [0, n). It panics if n <= 0.
func (g *Generator) IntN(n int) int {
	g.draws++
	return g.r.IntN(n)
}

// Float64 returns a value in [0, 1).
func (g *Generator) Float64() float64 {
	g.draws++
	return g.r.Float64()
}

// Draws returns how many values have been taken from the stream.
func (g *Generator) Draws() uint64 {
	return g.draws
}

// Pick returns an element of items chosen with one draw.
func Pick[T any](g *Generator, items []T) T {
	return items[g.IntN(len(items))]
}
