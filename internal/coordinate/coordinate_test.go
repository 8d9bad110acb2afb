package coordinate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
)

func TestStateSet(t *testing.T) {
	s := StatesOf(entity.StateActive, entity.StateInactive)
	assert.True(t, s.Contains(entity.StateActive))
	assert.False(t, s.Contains(entity.StateWithdrawn))
	assert.Equal(t, ActiveAndInactive, s)
	assert.Equal(t, "{active, inactive}", s.String())

	parsed, err := ParseStates("inactive", "active")
	assert.NoError(t, err)
	assert.Equal(t, s, parsed)

	_, err = ParseStates("bogus")
	assert.Error(t, err)
}

func TestStampCoordinate_KeyIsValueEqual(t *testing.T) {
	a := NewStampCoordinate(ActiveOnly, LatestOn(5)).WithModules(3, 1, 2)
	b := NewStampCoordinate(ActiveOnly, LatestOn(5)).WithModules(1, 2, 3)
	assert.Equal(t, a.Key(), b.Key(), "module inclusion is a set")
	assert.True(t, a.Equal(b))

	assert.NotEqual(t, a.Key(), a.WithTime(10).Key())
	assert.NotEqual(t, a.Key(), a.WithPath(6).Key())
	assert.NotEqual(t, a.Key(), a.WithAllowedStates(ActiveAndInactive).Key())
	assert.NotEqual(t, a.Key(), a.WithExcludedModules(9).Key())

	p1 := a.WithModulePriority(1, 2)
	p2 := a.WithModulePriority(2, 1)
	assert.NotEqual(t, p1.Key(), p2.Key(), "module priority is ordered")
}

func TestStampCoordinate_ZeroValueCollectionsMatchEmpty(t *testing.T) {
	zero := StampCoordinate{AllowedStates: ActiveOnly, Position: LatestOn(5)}
	built := NewStampCoordinate(ActiveOnly, LatestOn(5))
	assert.Equal(t, zero.Key(), built.Key())
}

func TestStampCoordinate_WithDoesNotMutate(t *testing.T) {
	a := NewStampCoordinate(ActiveOnly, LatestOn(5))
	before := a.Key()
	_ = a.WithTime(1).WithModules(1).WithModulePriority(2)
	assert.Equal(t, before, a.Key())
}

func TestStampCoordinate_Modules(t *testing.T) {
	c := NewStampCoordinate(ActiveOnly, LatestOn(5))
	assert.True(t, c.AdmitsModule(7), "empty inclusion admits all")

	c = c.WithModules(1, 2).WithExcludedModules(2)
	assert.True(t, c.AdmitsModule(1))
	assert.False(t, c.AdmitsModule(2), "exclusion wins over inclusion")
	assert.False(t, c.AdmitsModule(3))

	c = c.WithModulePriority(9, 4)
	assert.Equal(t, 0, c.ModuleRank(9))
	assert.Equal(t, 1, c.ModuleRank(4))
	assert.Equal(t, 2, c.ModuleRank(1))
}

func TestStampCoordinate_Validate(t *testing.T) {
	assert.NoError(t, NewStampCoordinate(ActiveOnly, LatestOn(5)).Validate())

	err := NewStampCoordinate(0, LatestOn(5)).Validate()
	assert.True(t, errors.IsValidation(err))

	err = NewStampCoordinate(ActiveOnly, LatestOn(entity.NidUnset)).Validate()
	assert.ErrorIs(t, err, errors.ErrInvalidNid)
}

func TestLanguageCoordinate_Key(t *testing.T) {
	base := LanguageCoordinate{LanguageNid: 10, Tag: language.AmericanEnglish}.
		WithDescriptionTypes(1, 2).WithDialects(3)
	same := LanguageCoordinate{LanguageNid: 10, Tag: language.AmericanEnglish}.
		WithDescriptionTypes(1, 2).WithDialects(3)
	assert.Equal(t, base.Key(), same.Key())
	assert.NotEqual(t, base.Key(), base.WithDescriptionTypes(2, 1).Key())
	assert.NotEqual(t, base.Key(), base.WithModulePreference(4).Key())
	assert.NoError(t, base.Validate())

	assert.True(t, errors.IsValidation(LanguageCoordinate{LanguageNid: 10}.Validate()))
}

func TestNavigationCoordinate(t *testing.T) {
	n := NewNavigationCoordinate(ActiveAndInactive, 7, 8)
	assert.NoError(t, n.Validate())
	assert.True(t, n.SortVertices)
	assert.Equal(t, n.Key(), NewNavigationCoordinate(ActiveAndInactive, 8, 7).Key())
	assert.NotEqual(t, n.Key(), n.WithSort(false).Key())
	assert.NotEqual(t, n.Key(), n.WithSortPatterns(3).Key())

	assert.True(t, errors.IsValidation(NavigationCoordinate{VertexStates: ActiveOnly}.Validate()))
	assert.True(t, errors.IsValidation(NewNavigationCoordinate(0, 7).Validate()))
}

func TestEditCoordinate_Validate(t *testing.T) {
	assert.NoError(t, EditCoordinate{AuthorNid: 1, DefaultModuleNid: 2, DefaultPathNid: 3}.Validate())
	assert.ErrorIs(t, EditCoordinate{AuthorNid: 1, DefaultPathNid: 3}.Validate(), errors.ErrInvalidNid)
}

func testView() ViewCoordinate {
	return ViewCoordinate{
		Stamp:      NewStampCoordinate(ActiveOnly, LatestOn(5)),
		Languages:  []LanguageCoordinate{{LanguageNid: 10, DescriptionTypePreference: intid.ListOf(1)}},
		Navigation: NewNavigationCoordinate(ActiveAndInactive, 7),
		Edit:       EditCoordinate{AuthorNid: 1, DefaultModuleNid: 2, DefaultPathNid: 5},
	}
}

func TestViewCoordinate_VertexStampCoordinate(t *testing.T) {
	v := testView()
	vertex := v.VertexStampCoordinate()
	assert.Equal(t, ActiveAndInactive, vertex.AllowedStates)
	assert.Equal(t, v.Stamp.Position, vertex.Position)
	assert.Equal(t, ActiveOnly, v.Stamp.AllowedStates)
}

func TestViewCoordinate_Key(t *testing.T) {
	v := testView()
	assert.True(t, v.Equal(testView()))
	assert.NotEqual(t, v.Key(), v.WithStamp(v.Stamp.WithTime(1)).Key())
	assert.NotEqual(t, v.Key(), v.WithNavigation(v.Navigation.WithSort(false)).Key())

	second := LanguageCoordinate{LanguageNid: 11, DescriptionTypePreference: intid.ListOf(1)}
	assert.NotEqual(t, v.Key(), v.WithLanguages(append(v.Languages, second)...).Key())
	assert.NoError(t, v.Validate())

	assert.True(t, errors.IsValidation(v.WithLanguages().Validate()))
}
