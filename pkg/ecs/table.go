package ecs

import (
	"github.com/argus-labs/lockstep/pkg/assert"
	"github.com/rotisserie/eris"
)

// tableHandle indexes a table in the repo. Tables are never deleted, so handles stay valid.
type tableHandle int32

// table holds the records of every entity of one exact archetype.
type table struct {
	arch     Archetype
	entities []EntityID
	records  []recordHandle // Parallel to entities
	rows     map[EntityID]int
}

func newTable(arch Archetype) *table {
	return &table{
		arch:     arch,
		entities: make([]EntityID, 0, 8),
		records:  make([]recordHandle, 0, 8),
		rows:     make(map[EntityID]int, 8),
	}
}

// add appends the record to the table. The record's archetype must be the table's archetype.
func (t *table) add(arena *recordArena, h recordHandle) error {
	r := arena.get(h)
	if r.arch != t.arch {
		return eris.Wrapf(ErrTableArchetypeMismatch, "record %s, table %s", r.arch, t.arch)
	}
	assert.That(!t.has(r.id), "entity is already in table")

	t.entities = append(t.entities, r.id)
	t.records = append(t.records, h)
	t.rows[r.id] = len(t.entities) - 1
	return nil
}

// remove swaps the last entity into the removed entity's row.
func (t *table) remove(id EntityID) {
	row, exists := t.rows[id]
	assert.That(exists, "entity is not in table")

	last := len(t.entities) - 1
	t.entities[row] = t.entities[last]
	t.records[row] = t.records[last]
	t.entities = t.entities[:last]
	t.records = t.records[:last]
	delete(t.rows, id)

	if row == last {
		return
	}
	t.rows[t.entities[row]] = row
}

func (t *table) has(id EntityID) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *table) len() int {
	return len(t.entities)
}

// extractAll appends every entity id of the table to dst.
func (t *table) extractAll(dst []EntityID) []EntityID {
	return append(dst, t.entities...)
}
