package entity

import (
	"math"

	"github.com/roach88/stampview/internal/errors"
)

// Reserved nid sentinels. None of them may reference an entity.
const (
	NidUnset       int32 = 0
	NidUncommitted int32 = math.MaxInt32
	NidInvalid     int32 = math.MinInt32
)

// IsValidNid reports whether nid may reference an entity.
func IsValidNid(nid int32) bool {
	return nid != NidUnset && nid != NidUncommitted && nid != NidInvalid
}

// ValidateNid returns ErrInvalidNid for the three reserved sentinels.
func ValidateNid(nid int32) error {
	if IsValidNid(nid) {
		return nil
	}
	return errors.Wrapf(errors.ErrInvalidNid, "nid %d is a reserved sentinel", nid)
}

// ValidateNids validates every nid, reporting the first failure.
func ValidateNids(nids ...int32) error {
	for _, nid := range nids {
		if err := ValidateNid(nid); err != nil {
			return err
		}
	}
	return nil
}
