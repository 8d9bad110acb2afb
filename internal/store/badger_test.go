package store

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
)

func TestOpenBadger_RequiresDir(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.True(t, errors.IsValidation(err))
}

func TestOpenBadger_ReopenKeepsData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	id := uuid.New()

	s1, err := OpenBadger(BadgerConfig{Dir: dir, SyncWrites: true})
	require.NoError(t, err)
	nid, err := s1.NidForUUID(id)
	require.NoError(t, err)
	require.NoError(t, s1.PutEntity(entity.NewConcept(nid, id).WithVersion(entity.Version{StampNid: 7})))
	require.NoError(t, s1.Close())

	s2, err := OpenBadger(BadgerConfig{Dir: dir})
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.NidForUUID(id)
	require.NoError(t, err)
	assert.Equal(t, nid, got)

	c, ok, err := s2.Chronology(nid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int32{7}, c.StampNids())

	fresh, err := s2.NidForUUID(uuid.New())
	require.NoError(t, err)
	assert.NotEqual(t, nid, fresh)
}

func TestNidKey_OrdersSigned(t *testing.T) {
	neg := nidKey(prefixChronology, -5)
	pos := nidKey(prefixChronology, 5)
	assert.Less(t, string(neg), string(pos))
	assert.Equal(t, int32(-5), decodeNid(neg[1:]))
}
