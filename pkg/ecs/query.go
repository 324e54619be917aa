package ecs

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rotisserie/eris"
)

// QueryFlags selects the filters a query applies.
type QueryFlags uint8

const (
	// QueryContains keeps entities whose archetype contains the query archetype.
	QueryContains QueryFlags = 1 << iota
	// QueryMatchKey keeps entities whose key component's key field equals the query key.
	QueryMatchKey
	// QueryWhere keeps entities for which the where expression is true.
	QueryWhere
)

// QueryRunner executes queries against stored entities.
type QueryRunner interface {
	RunQuery(q *Query) error
}

// Query is a reusable entity filter. Results are always ordered by entity id.
//
// The where clause uses expr lang, see https://expr-lang.org/docs/getting-started. Its environment
// holds each component of the entity under the component name, plus the entity id under "_id".
type Query struct {
	flags    QueryFlags
	contains Archetype
	keyIdx   ComponentTypeIndex
	key      int64
	where    string
	program  *vm.Program

	results []EntityID
}

// NewQuery creates a query without filters, which matches every entity.
func NewQuery() *Query {
	return &Query{results: make([]EntityID, 0, 16)}
}

// Contains restricts the query to entities holding every component type of a.
func (q *Query) Contains(a Archetype) *Query {
	q.flags |= QueryContains
	q.contains = a
	return q
}

// ContainsAlias restricts the query to entities holding every component type of an alias.
func (q *Query) ContainsAlias(g *ArchetypeGraph, id AliasID) (*Query, error) {
	a, err := g.AliasArchetype(id)
	if err != nil {
		return q, eris.Wrapf(err, "failed to resolve alias %d for query", id)
	}
	return q.Contains(a), nil
}

// MatchKey restricts the query to entities whose component idx has the given key.
func (q *Query) MatchKey(idx ComponentTypeIndex, key int64) *Query {
	q.flags |= QueryMatchKey
	q.keyIdx = idx
	q.key = key
	return q
}

// Where restricts the query to entities matching a boolean expr expression.
func (q *Query) Where(src string) (*Query, error) {
	program, err := expr.Compile(src, expr.AsBool())
	if err != nil {
		return q, eris.Wrap(err, "failed to parse where clause")
	}
	q.flags |= QueryWhere
	q.where = src
	q.program = program
	return q, nil
}

// Flags returns the filters the query applies.
func (q *Query) Flags() QueryFlags {
	return q.flags
}

// Resolve runs the query. Results are replaced.
func (q *Query) Resolve(r QueryRunner) error {
	return r.RunQuery(q)
}

// Results returns the entities matched by the last Resolve. The slice is reused by the next
// Resolve.
func (q *Query) Results() []EntityID {
	return q.results
}

// evalWhere runs the where program against an entity environment.
func (q *Query) evalWhere(env map[string]any) (bool, error) {
	output, err := expr.Run(q.program, env)
	if err != nil {
		return false, eris.Wrap(err, "failed to run filter expression")
	}
	// The program is compiled without an environment, so field access types are only known here.
	match, ok := output.(bool)
	if !ok {
		return false, eris.Errorf("where clause %q did not return a bool", q.where)
	}
	return match, nil
}
