package entity

import (
	"encoding/json"

	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
)

// FieldType names the data type of a semantic field.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeInt    FieldType = "int"
	FieldTypeBool   FieldType = "bool"
	FieldTypeNid    FieldType = "nid"
	FieldTypeIDSet  FieldType = "id_set"
	FieldTypeIDList FieldType = "id_list"
)

// Field is a sealed interface over the value types a semantic field may
// hold. No floats: field values take part in deterministic encodings.
type Field interface {
	Type() FieldType
	field()
}

// FieldString is a text field.
type FieldString string

// FieldInt is an integer field; also used for times.
type FieldInt int64

// FieldBool is a boolean field.
type FieldBool bool

// FieldNid references one component.
type FieldNid int32

// FieldIDSet holds an unordered set of component references.
type FieldIDSet struct{ intid.Set }

// FieldIDList holds an ordered list of component references.
type FieldIDList struct{ intid.List }

func (FieldString) Type() FieldType { return FieldTypeString }
func (FieldInt) Type() FieldType    { return FieldTypeInt }
func (FieldBool) Type() FieldType   { return FieldTypeBool }
func (FieldNid) Type() FieldType    { return FieldTypeNid }
func (FieldIDSet) Type() FieldType  { return FieldTypeIDSet }
func (FieldIDList) Type() FieldType { return FieldTypeIDList }

func (FieldString) field() {}
func (FieldInt) field() {}
func (FieldBool) field() {}
func (FieldNid) field() {}
func (FieldIDSet) field() {}
func (FieldIDList) field() {}

// NewFieldIDSet wraps ids as a set field.
func NewFieldIDSet(ids ...int32) FieldIDSet {
	return FieldIDSet{intid.SetOf(ids...)}
}

// NewFieldIDList wraps ids as a list field.
func NewFieldIDList(ids ...int32) FieldIDList {
	return FieldIDList{intid.ListOf(ids...)}
}

// Fields is the ordered field list of a semantic version.
type Fields []Field

type fieldJSON struct {
	Type  FieldType       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes each field tagged with its type.
func (fs Fields) MarshalJSON() ([]byte, error) {
	out := make([]fieldJSON, len(fs))
	for i, f := range fs {
		raw, err := marshalFieldValue(f)
		if err != nil {
			return nil, errors.Wrapf(err, "field[%d]", i)
		}
		out[i] = fieldJSON{Type: f.Type(), Value: raw}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes fields written by MarshalJSON.
func (fs *Fields) UnmarshalJSON(data []byte) error {
	var raw []fieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Fields, len(raw))
	for i, r := range raw {
		f, err := unmarshalFieldValue(r.Type, r.Value)
		if err != nil {
			return errors.Wrapf(err, "field[%d]", i)
		}
		out[i] = f
	}
	*fs = out
	return nil
}

func marshalFieldValue(f Field) ([]byte, error) {
	switch v := f.(type) {
	case FieldString:
		return json.Marshal(string(v))
	case FieldInt:
		return json.Marshal(int64(v))
	case FieldBool:
		return json.Marshal(bool(v))
	case FieldNid:
		return json.Marshal(int32(v))
	case FieldIDSet:
		if v.Set == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.ToArray())
	case FieldIDList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.ToArray())
	default:
		return nil, errors.Newf("unknown field type: %T", f)
	}
}

func unmarshalFieldValue(t FieldType, data []byte) (Field, error) {
	switch t {
	case FieldTypeString:
		var s string
		err := json.Unmarshal(data, &s)
		return FieldString(s), err
	case FieldTypeInt:
		var n int64
		err := json.Unmarshal(data, &n)
		return FieldInt(n), err
	case FieldTypeBool:
		var b bool
		err := json.Unmarshal(data, &b)
		return FieldBool(b), err
	case FieldTypeNid:
		var n int32
		err := json.Unmarshal(data, &n)
		return FieldNid(n), err
	case FieldTypeIDSet:
		var ids []int32
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, err
		}
		return NewFieldIDSet(ids...), nil
	case FieldTypeIDList:
		var ids []int32
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, err
		}
		return NewFieldIDList(ids...), nil
	default:
		return nil, errors.Newf("unknown field type %q", t)
	}
}
