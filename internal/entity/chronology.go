package entity

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Kind distinguishes the entity types that carry versions.
type Kind uint8

const (
	KindConcept Kind = iota + 1
	KindSemantic
	KindPattern
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindConcept:
		return "concept"
	case KindSemantic:
		return "semantic"
	case KindPattern:
		return "pattern"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// FieldDefinition describes one field of a pattern.
type FieldDefinition struct {
	MeaningNid int32     `json:"meaning_nid"`
	PurposeNid int32     `json:"purpose_nid"`
	DataType   FieldType `json:"data_type"`
}

// Version is one immutable version of an entity. Which fields are
// meaningful depends on the owning chronology's Kind:
//   - concept: StampNid only
//   - semantic: Fields, shaped by the pattern's field definitions
//   - pattern: MeaningNid, PurposeNid and FieldDefinitions
type Version struct {
	StampNid int32 `json:"stamp_nid"`

	Fields Fields `json:"fields,omitempty"`

	MeaningNid       int32             `json:"meaning_nid,omitempty"`
	PurposeNid       int32             `json:"purpose_nid,omitempty"`
	FieldDefinitions []FieldDefinition `json:"field_definitions,omitempty"`
}

// Field returns field i, or nil when the version has fewer fields.
func (v Version) Field(i int) Field {
	if i < 0 || i >= len(v.Fields) {
		return nil
	}
	return v.Fields[i]
}

// Chronology is the append-only sequence of versions for one identity.
// There is no "current" version: which version is latest depends on the
// coordinate used to read it.
type Chronology struct {
	Nid   int32       `json:"nid"`
	UUIDs []uuid.UUID `json:"uuids"`
	Kind  Kind        `json:"kind"`

	// Semantic chronologies only.
	PatternNid             int32 `json:"pattern_nid,omitempty"`
	ReferencedComponentNid int32 `json:"referenced_component_nid,omitempty"`

	Versions []Version `json:"versions"`
}

// NewConcept starts an empty concept chronology.
func NewConcept(nid int32, ids ...uuid.UUID) Chronology {
	return Chronology{Nid: nid, UUIDs: slices.Clone(ids), Kind: KindConcept}
}

// NewPattern starts an empty pattern chronology.
func NewPattern(nid int32, ids ...uuid.UUID) Chronology {
	return Chronology{Nid: nid, UUIDs: slices.Clone(ids), Kind: KindPattern}
}

// NewSemantic starts an empty semantic chronology of patternNid attached
// to referencedNid.
func NewSemantic(nid, patternNid, referencedNid int32, ids ...uuid.UUID) Chronology {
	return Chronology{
		Nid:                    nid,
		UUIDs:                  slices.Clone(ids),
		Kind:                   KindSemantic,
		PatternNid:             patternNid,
		ReferencedComponentNid: referencedNid,
	}
}

// PublicID returns the primary UUID of the chronology.
func (c Chronology) PublicID() uuid.UUID {
	if len(c.UUIDs) == 0 {
		return uuid.Nil
	}
	return c.UUIDs[0]
}

// Validate checks the identifiers a chronology must carry.
func (c Chronology) Validate() error {
	if err := ValidateNid(c.Nid); err != nil {
		return err
	}
	if c.Kind == KindSemantic {
		if err := ValidateNids(c.PatternNid, c.ReferencedComponentNid); err != nil {
			return err
		}
	}
	for _, v := range c.Versions {
		if err := ValidateNid(v.StampNid); err != nil {
			return err
		}
	}
	return nil
}

// WithVersion returns a copy of c with v appended. Versions are never
// edited or removed; the receiver is not modified.
func (c Chronology) WithVersion(v Version) Chronology {
	out := c
	out.UUIDs = slices.Clone(c.UUIDs)
	out.Versions = make([]Version, 0, len(c.Versions)+1)
	out.Versions = append(out.Versions, c.Versions...)
	out.Versions = append(out.Versions, v)
	return out
}

// StampNids returns the stamp of every version, in version order.
func (c Chronology) StampNids() []int32 {
	out := make([]int32, len(c.Versions))
	for i, v := range c.Versions {
		out[i] = v.StampNid
	}
	return out
}

// VersionsForStamp returns the versions written under stampNid.
func (c Chronology) VersionsForStamp(stampNid int32) []Version {
	var out []Version
	for _, v := range c.Versions {
		if v.StampNid == stampNid {
			out = append(out, v)
		}
	}
	return out
}
