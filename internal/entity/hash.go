package entity

import (
	"github.com/google/uuid"

	"github.com/roach88/stampview/internal/errors"
)

// Domain names for name-based identities. The version suffix allows a
// future algorithm migration without colliding with existing identities.
const (
	DomainStamp      = "stampview/stamp/v1"
	DomainCoordinate = "stampview/coordinate/v1"
)

var (
	stampNamespace      = uuid.NewSHA1(uuid.NameSpaceURL, []byte(DomainStamp))
	coordinateNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte(DomainCoordinate))
)

// StampUUID derives the identity of a stamp tuple. Author, module and path
// are given by their public UUIDs so the identity is reproducible across
// stores that assign different nids.
//
// A non-nil salt (an owning transaction's UUID) scopes the identity to that
// transaction: the same tuple in two transactions yields two stamps, while
// repeated requests within one transaction converge on one.
func StampUUID(state State, time int64, author, module, path, salt uuid.UUID) (uuid.UUID, error) {
	obj := map[string]any{
		"state":  state.String(),
		"time":   time,
		"author": author.String(),
		"module": module.String(),
		"path":   path.String(),
	}
	if salt != uuid.Nil {
		obj["transaction"] = salt.String()
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "StampUUID: failed to marshal")
	}
	return uuid.NewSHA1(stampNamespace, canonical), nil
}

// CoordinateKey derives a value-equality key from a coordinate's canonical
// form. Equal coordinate values always produce equal keys.
func CoordinateKey(kind string, canonical map[string]any) (string, error) {
	obj := map[string]any{"kind": kind, "value": canonical}
	data, err := MarshalCanonical(obj)
	if err != nil {
		return "", errors.Wrapf(err, "CoordinateKey: failed to marshal %s", kind)
	}
	return uuid.NewSHA1(coordinateNamespace, data).String(), nil
}

// MustStampUUID is like StampUUID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStampUUID(state State, time int64, author, module, path, salt uuid.UUID) uuid.UUID {
	id, err := StampUUID(state, time, author, module, path, salt)
	if err != nil {
		panic(err)
	}
	return id
}
