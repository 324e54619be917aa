package testutils

import "github.com/argus-labs/lockstep/pkg/assert"

// Gen walks every combination of the choices a test makes. Each pass of
//
//	for !g.Done() { ... }
//
// records the value and bound of every choice. Done advances to the next sequence by incrementing
// the rightmost value still below its bound and zeroing everything after it, so the passes cover
// every sequence exactly once.
//
// See: <https://matklad.github.io/2021/11/07/generate-all-the-things.html>
type Gen struct {
	started bool
	v       [32]struct{ value, bound uint32 }
	p       int
	pMax    int
}

// NewGen creates an exhaustive generator.
func NewGen() *Gen {
	return &Gen{}
}

// Done returns true when every combination has been produced.
func (g *Gen) Done() bool {
	if !g.started {
		g.started = true
		return false
	}
	for i := g.pMax - 1; i >= 0; i-- {
		if g.v[i].value < g.v[i].bound {
			g.v[i].value++
			g.pMax = i + 1
			g.p = 0
			return false
		}
	}
	return true
}

func (g *Gen) gen(bound uint32) uint32 {
	assert.That(g.p < len(g.v), "exhaustigen: exceeded maximum depth of 32")
	if g.p == g.pMax {
		g.v[g.p].value = 0
		g.pMax++
	}
	g.v[g.p].bound = bound
	g.p++
	return g.v[g.p-1].value
}

// Intn returns an int in [0, bound].
func (g *Gen) Intn(bound int) int {
	return int(g.gen(uint32(bound))) //nolint:gosec // bound is expected to be small in tests
}

// Range returns an int in [minVal, maxVal].
func (g *Gen) Range(minVal, maxVal int) int {
	assert.That(minVal <= maxVal, "exhaustigen: min > max")
	return minVal + g.Intn(maxVal-minVal)
}

// Shuffle permutes slice in place. Across all passes every permutation is produced.
func Shuffle[T any](g *Gen, slice []T) {
	for i := 0; i < len(slice)-1; i++ {
		j := g.Range(i, len(slice)-1)
		slice[i], slice[j] = slice[j], slice[i]
	}
}
