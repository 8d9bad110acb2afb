package testutil

import (
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/stamp"
	"github.com/roach88/stampview/internal/store"
	"github.com/roach88/stampview/internal/term"
)

var fixtureNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("stampview/fixture/v1"))

// Builder writes concepts, patterns and semantics into a store for tests.
// Every helper fails the test on error.
//
// All identities are name-based so the same fixture produces the same
// UUIDs on every run.
type Builder struct {
	t       testing.TB
	Store   store.Store
	Factory *stamp.Factory

	// Author, Module and Path default every stamp the builder makes.
	Author int32
	Module int32
	Path   int32

	mu  sync.Mutex
	seq int
}

// NewBuilder registers every well-known term in s and returns a builder
// stamping as the user author on the development module and path.
func NewBuilder(t testing.TB, s store.Store) *Builder {
	t.Helper()
	b := &Builder{t: t, Store: s, Factory: stamp.NewFactory(s)}
	for _, tm := range term.All {
		b.Nid(tm)
	}
	b.Author = b.Nid(term.UserAuthor)
	b.Module = b.Nid(term.DevelopmentModule)
	b.Path = b.Nid(term.DevelopmentPath)
	return b
}

// Nid returns the nid of a well-known term.
func (b *Builder) Nid(tm term.Term) int32 {
	b.t.Helper()
	nid, err := b.Store.NidForUUID(tm.UUID)
	require.NoError(b.t, err)
	return nid
}

// UUIDFor returns the fixture identity of name.
func (b *Builder) UUIDFor(name string) uuid.UUID {
	return uuid.NewSHA1(fixtureNamespace, []byte(name))
}

// NidFor returns the nid of the fixture identity of name.
func (b *Builder) NidFor(name string) int32 {
	b.t.Helper()
	nid, err := b.Store.NidForUUID(b.UUIDFor(name))
	require.NoError(b.t, err)
	return nid
}

// Stamp makes a stamp with the builder's author, module and path.
func (b *Builder) Stamp(state entity.State, time int64) int32 {
	b.t.Helper()
	return b.StampWith(state, time, b.Module, b.Path)
}

// StampWith makes a stamp on the given module and path.
func (b *Builder) StampWith(state entity.State, time int64, module, path int32) int32 {
	b.t.Helper()
	s, err := b.Factory.MakeStamp(state, time, b.Author, module, path)
	require.NoError(b.t, err)
	return s.Nid
}

// Bootstrap returns an active stamp older than any real time on the
// builder's path.
func (b *Builder) Bootstrap() int32 {
	b.t.Helper()
	return b.Stamp(entity.StateActive, entity.TimePremundane)
}

// Concept adds a version of the named concept under stampNid.
func (b *Builder) Concept(name string, stampNid int32) int32 {
	b.t.Helper()
	id := b.UUIDFor(name)
	nid := b.NidFor(name)
	b.put(entity.NewConcept(nid, id).WithVersion(entity.Version{StampNid: stampNid}))
	return nid
}

// TermConcept adds a version of a well-known term as a concept.
func (b *Builder) TermConcept(tm term.Term, stampNid int32) int32 {
	b.t.Helper()
	nid := b.Nid(tm)
	b.put(entity.NewConcept(nid, tm.UUID).WithVersion(entity.Version{StampNid: stampNid}))
	return nid
}

// Pattern adds a definition version of a well-known pattern.
func (b *Builder) Pattern(tm term.Term, meaning, purpose, stampNid int32, defs ...entity.FieldDefinition) int32 {
	b.t.Helper()
	nid := b.Nid(tm)
	b.put(entity.NewPattern(nid, tm.UUID).WithVersion(entity.Version{
		StampNid:         stampNid,
		MeaningNid:       meaning,
		PurposeNid:       purpose,
		FieldDefinitions: defs,
	}))
	return nid
}

// NavigationPattern defines tm as a navigation pattern whose edges mean
// meaning: field 0 holds children, field 1 parents.
func (b *Builder) NavigationPattern(tm term.Term, meaning, stampNid int32) int32 {
	b.t.Helper()
	return b.Pattern(tm, meaning, b.Nid(term.ChildrenField), stampNid,
		entity.FieldDefinition{MeaningNid: b.Nid(term.ChildrenField), PurposeNid: b.Nid(term.ChildrenField), DataType: entity.FieldTypeIDSet},
		entity.FieldDefinition{MeaningNid: b.Nid(term.ParentsField), PurposeNid: b.Nid(term.ParentsField), DataType: entity.FieldTypeIDSet},
	)
}

// Semantic adds a new semantic of patternNid on referencedNid.
func (b *Builder) Semantic(patternNid, referencedNid, stampNid int32, fields ...entity.Field) int32 {
	b.t.Helper()
	b.mu.Lock()
	b.seq++
	id := b.UUIDFor(fmt.Sprintf("semantic/%d/%d/%d", patternNid, referencedNid, b.seq))
	b.mu.Unlock()

	nid, err := b.Store.NidForUUID(id)
	require.NoError(b.t, err)
	b.put(entity.NewSemantic(nid, patternNid, referencedNid, id).
		WithVersion(entity.Version{StampNid: stampNid, Fields: fields}))
	return nid
}

// SemanticVersion appends a version to an existing semantic.
func (b *Builder) SemanticVersion(semanticNid, stampNid int32, fields ...entity.Field) {
	b.t.Helper()
	c, ok, err := b.Store.Chronology(semanticNid)
	require.NoError(b.t, err)
	require.True(b.t, ok, "semantic %d does not exist", semanticNid)
	b.put(c.WithVersion(entity.Version{StampNid: stampNid, Fields: fields}))
}

// Hierarchy writes one navigation semantic per concept of patternNid from
// a child -> parents map. Children sets are derived from it. It returns the
// semantic nid of every concept.
func (b *Builder) Hierarchy(patternNid, stampNid int32, parentsOf map[int32][]int32) map[int32]int32 {
	b.t.Helper()
	childrenOf := map[int32][]int32{}
	nodes := map[int32]bool{}
	for child, parents := range parentsOf {
		nodes[child] = true
		for _, p := range parents {
			nodes[p] = true
			childrenOf[p] = append(childrenOf[p], child)
		}
	}
	ordered := make([]int32, 0, len(nodes))
	for nid := range nodes {
		ordered = append(ordered, nid)
	}
	slices.Sort(ordered)
	out := make(map[int32]int32, len(nodes))
	for _, nid := range ordered {
		out[nid] = b.Semantic(patternNid, nid, stampNid,
			entity.NewFieldIDSet(childrenOf[nid]...),
			entity.NewFieldIDSet(parentsOf[nid]...))
	}
	return out
}

// Description attaches a description to conceptNid.
func (b *Builder) Description(conceptNid, stampNid, languageNid int32, text string, typeNid int32) int32 {
	b.t.Helper()
	return b.Semantic(b.Nid(term.DescriptionPattern), conceptNid, stampNid,
		entity.FieldNid(languageNid),
		entity.FieldString(text),
		entity.FieldNid(b.Nid(term.NotCaseSensitive)),
		entity.FieldNid(typeNid))
}

// Acceptability marks a description in a dialect.
func (b *Builder) Acceptability(descriptionNid, dialectPatternNid, acceptabilityNid, stampNid int32) int32 {
	b.t.Helper()
	return b.Semantic(dialectPatternNid, descriptionNid, stampNid, entity.FieldNid(acceptabilityNid))
}

// PathOrigin records that pathNid branches from originPathNid at
// originTime.
func (b *Builder) PathOrigin(pathNid, originPathNid int32, originTime int64, stampNid int32) int32 {
	b.t.Helper()
	return b.Semantic(b.Nid(term.PathOriginsPattern), pathNid, stampNid,
		entity.FieldNid(originPathNid), entity.FieldInt(originTime))
}

// SortOrder gives conceptNid a custom child ordering under a sort pattern.
func (b *Builder) SortOrder(sortPatternNid, conceptNid, stampNid int32, order ...int32) int32 {
	b.t.Helper()
	return b.Semantic(sortPatternNid, conceptNid, stampNid, entity.NewFieldIDList(order...))
}

func (b *Builder) put(c entity.Chronology) {
	b.t.Helper()
	require.NoError(b.t, b.Store.PutEntity(c))
}
