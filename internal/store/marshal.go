package store

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
)

// encodeJSON serializes v for storage with HTML escaping disabled so stored
// text matches what callers wrote.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder adds a trailing newline
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func marshalChronology(c entity.Chronology) ([]byte, error) {
	data, err := encodeJSON(c)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal chronology %d", c.Nid)
	}
	return data, nil
}

func unmarshalChronology(data []byte) (entity.Chronology, error) {
	var c entity.Chronology
	if err := json.Unmarshal(data, &c); err != nil {
		return entity.Chronology{}, errors.Wrap(err, "unmarshal chronology")
	}
	return c, nil
}

func marshalStamp(s entity.Stamp) ([]byte, error) {
	data, err := encodeJSON(s)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal stamp %d", s.Nid)
	}
	return data, nil
}

func unmarshalStamp(data []byte) (entity.Stamp, error) {
	var s entity.Stamp
	if err := json.Unmarshal(data, &s); err != nil {
		return entity.Stamp{}, errors.Wrap(err, "unmarshal stamp")
	}
	return s, nil
}

func marshalUUIDs(ids []uuid.UUID) ([]byte, error) {
	return encodeJSON(ids)
}

func unmarshalUUIDs(data []byte) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, errors.Wrap(err, "unmarshal uuids")
	}
	return ids, nil
}
