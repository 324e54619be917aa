package ecs

import (
	"math/bits"
	"strconv"
	"strings"

	"github.com/argus-labs/lockstep/pkg/assert"
)

// MaxComponentTypes is the number of component types an archetype can represent.
const MaxComponentTypes = 256

const archetypeWords = MaxComponentTypes / 64

// ComponentTypeIndex is the dense index of a registered component type.
type ComponentTypeIndex uint8

// Archetype is the set of component types an entity has, stored as a 256-bit set. Archetypes are
// values and never change after construction: equal bits mean the same archetype. New archetypes are
// obtained through an ArchetypeGraph, which memoizes every transition.
type Archetype struct {
	words [archetypeWords]uint64
}

// EmptyArchetype is the archetype without any component types.
var EmptyArchetype = Archetype{} //nolint:gochecknoglobals // immutable value

// Contains returns true if the archetype includes the component type.
func (a Archetype) Contains(idx ComponentTypeIndex) bool {
	return a.words[idx>>6]&(1<<(idx&63)) != 0
}

// Overlaps returns true if the two archetypes share at least one component type.
func (a Archetype) Overlaps(other Archetype) bool {
	for i := range a.words {
		if a.words[i]&other.words[i] != 0 {
			return true
		}
	}
	return false
}

// IsEmpty returns true if the archetype has no component types.
func (a Archetype) IsEmpty() bool {
	return a == EmptyArchetype
}

// Count returns the number of component types in the archetype.
func (a Archetype) Count() int {
	n := 0
	for _, w := range a.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// String lists the component type indices, e.g. "{0,1,5}".
func (a Archetype) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, idx := range a.decompose(nil) {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(idx)))
	}
	sb.WriteByte('}')
	return sb.String()
}

// IsSubsetOf returns true if every component type of a is also in b.
func IsSubsetOf(a, b Archetype) bool {
	for i := range a.words {
		if a.words[i]&^b.words[i] != 0 {
			return false
		}
	}
	return true
}

// -------------------------------------------------------------------------------------------------
// Construction helpers used by the graph. They return new values and never modify the receiver.
// -------------------------------------------------------------------------------------------------

func singleArchetype(idx int) Archetype {
	assert.That(idx >= 0 && idx < MaxComponentTypes, "component index %d out of range", idx)
	var a Archetype
	a.words[idx>>6] = 1 << (idx & 63)
	return a
}

func (a Archetype) union(other Archetype) Archetype {
	for i := range a.words {
		a.words[i] |= other.words[i]
	}
	return a
}

func (a Archetype) difference(other Archetype) Archetype {
	for i := range a.words {
		a.words[i] &^= other.words[i]
	}
	return a
}

// decompose appends the component type indices in ascending order.
func (a Archetype) decompose(dst []ComponentTypeIndex) []ComponentTypeIndex {
	for i, w := range a.words {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			dst = append(dst, ComponentTypeIndex(i*64+bit))
			w &= w - 1
		}
	}
	return dst
}
