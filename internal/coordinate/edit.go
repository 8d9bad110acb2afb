package coordinate

import (
	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
)

// EditCoordinate is the author, module and path stamped on new content.
type EditCoordinate struct {
	AuthorNid            int32
	DefaultModuleNid     int32
	DestinationModuleNid int32
	DefaultPathNid       int32
	PromotionPathNid     int32
}

// Validate checks that the stamped identifiers are usable.
func (c EditCoordinate) Validate() error {
	if err := entity.ValidateNids(c.AuthorNid, c.DefaultModuleNid, c.DefaultPathNid); err != nil {
		return errors.Wrap(err, "edit coordinate")
	}
	return nil
}

// Key returns the value hash of the coordinate.
func (c EditCoordinate) Key() string {
	return key("edit", map[string]any{
		"author":            c.AuthorNid,
		"defaultModule":     c.DefaultModuleNid,
		"destinationModule": c.DestinationModuleNid,
		"defaultPath":       c.DefaultPathNid,
		"promotionPath":     c.PromotionPathNid,
	})
}
