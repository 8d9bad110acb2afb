package entity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	author = uuid.MustParse("f7495b58-6630-3499-a44e-2052b5fcf06c")
	module = uuid.MustParse("840928b4-a3ae-4a1e-8a0f-7e2d8f0c5d8b")
	path   = uuid.MustParse("1f200ca6-960e-11e5-8994-feff819cdc9f")
)

func TestStampUUID_Deterministic(t *testing.T) {
	id1, err := StampUUID(StateActive, 1000, author, module, path, uuid.Nil)
	require.NoError(t, err)
	id2, err := StampUUID(StateActive, 1000, author, module, path, uuid.Nil)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, uuid.Version(5), id1.Version())
}

func TestStampUUID_ChangesWithInput(t *testing.T) {
	base := MustStampUUID(StateActive, 1000, author, module, path, uuid.Nil)

	assert.NotEqual(t, base, MustStampUUID(StateInactive, 1000, author, module, path, uuid.Nil))
	assert.NotEqual(t, base, MustStampUUID(StateActive, 1001, author, module, path, uuid.Nil))
	assert.NotEqual(t, base, MustStampUUID(StateActive, 1000, module, author, path, uuid.Nil))
	assert.NotEqual(t, base, MustStampUUID(StateActive, 1000, author, module, author, uuid.Nil))
}

func TestStampUUID_SaltScopesToTransaction(t *testing.T) {
	tx1 := uuid.MustParse("0190d6a4-0000-7000-8000-000000000001")
	tx2 := uuid.MustParse("0190d6a4-0000-7000-8000-000000000002")

	a := MustStampUUID(StateActive, TimeUncommitted, author, module, path, tx1)
	b := MustStampUUID(StateActive, TimeUncommitted, author, module, path, tx1)
	c := MustStampUUID(StateActive, TimeUncommitted, author, module, path, tx2)
	unsalted := MustStampUUID(StateActive, TimeUncommitted, author, module, path, uuid.Nil)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, unsalted)
}

func TestStamp_AnalogueAppends(t *testing.T) {
	s := Stamp{
		Nid:  5,
		UUID: uuid.New(),
		Versions: []StampVersion{
			{State: StateActive, Time: TimeUncommitted, AuthorNid: 1, ModuleNid: 2, PathNid: 3},
		},
	}

	committed := s.Analogue(StateActive, 1234)

	assert.Len(t, s.Versions, 1, "receiver must not change")
	require.Len(t, committed.Versions, 2)
	assert.True(t, committed.Versions[0].IsUncommitted())
	assert.Equal(t, int64(1234), committed.Time())
	assert.Equal(t, int32(1), committed.AuthorNid())
	assert.Equal(t, int32(2), committed.ModuleNid())
	assert.Equal(t, int32(3), committed.PathNid())
	assert.Equal(t, s.UUID, committed.UUID)

	canceled := committed.Analogue(StateCanceled, TimeCanceled)
	assert.True(t, canceled.Last().IsCanceled())
	assert.False(t, committed.Last().IsCanceled())
}

func TestState_Text(t *testing.T) {
	for _, s := range AllStates {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var parsed State
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, s, parsed)
	}

	_, err := StateUnspecified.MarshalText()
	assert.Error(t, err)
	_, err = ParseState("bogus")
	assert.Error(t, err)
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "uncommitted", FormatTime(TimeUncommitted))
	assert.Equal(t, "canceled", FormatTime(TimeCanceled))
	assert.Equal(t, "premundane", FormatTime(TimePremundane))
	assert.Equal(t, "1970-01-01T00:00:01Z", FormatTime(1000))
	assert.False(t, IsRealTime(TimeUncommitted))
	assert.False(t, IsRealTime(TimeCanceled))
	assert.True(t, IsRealTime(0))
}
