package entity

import (
	"slices"

	"github.com/google/uuid"
)

// StampVersion is one analogue of a stamp: the status, time, author,
// module and path that versions referencing the stamp carry.
type StampVersion struct {
	State     State `json:"state"`
	Time      int64 `json:"time"`
	AuthorNid int32 `json:"author_nid"`
	ModuleNid int32 `json:"module_nid"`
	PathNid   int32 `json:"path_nid"`
}

// IsUncommitted reports whether the analogue is pending commit.
func (v StampVersion) IsUncommitted() bool {
	return v.Time == TimeUncommitted
}

// IsCanceled reports whether the analogue is a cancellation tombstone.
func (v StampVersion) IsCanceled() bool {
	return v.State == StateCanceled || v.Time == TimeCanceled
}

// Stamp is the append-only chronology of one stamp identity. Committing or
// canceling appends an analogue; earlier analogues stay inspectable.
type Stamp struct {
	Nid      int32          `json:"nid"`
	UUID     uuid.UUID      `json:"uuid"`
	Versions []StampVersion `json:"versions"`
}

// Last returns the effective analogue. A stamp always has at least one.
func (s Stamp) Last() StampVersion {
	return s.Versions[len(s.Versions)-1]
}

// State, Time, AuthorNid, ModuleNid and PathNid read the last analogue.
func (s Stamp) State() State { return s.Last().State }
func (s Stamp) Time() int64 { return s.Last().Time }
func (s Stamp) AuthorNid() int32 { return s.Last().AuthorNid }
func (s Stamp) ModuleNid() int32 { return s.Last().ModuleNid }
func (s Stamp) PathNid() int32 { return s.Last().PathNid }

// WithVersion returns a copy of s with v appended. The receiver is not
// modified.
func (s Stamp) WithVersion(v StampVersion) Stamp {
	versions := make([]StampVersion, 0, len(s.Versions)+1)
	versions = append(versions, s.Versions...)
	versions = append(versions, v)
	return Stamp{Nid: s.Nid, UUID: s.UUID, Versions: versions}
}

// Analogue returns a copy of s with a new analogue that keeps author,
// module and path but takes the given state and time.
func (s Stamp) Analogue(state State, time int64) Stamp {
	last := s.Last()
	last.State = state
	last.Time = time
	return s.WithVersion(last)
}

// Clone returns a deep copy of s.
func (s Stamp) Clone() Stamp {
	return Stamp{Nid: s.Nid, UUID: s.UUID, Versions: slices.Clone(s.Versions)}
}
