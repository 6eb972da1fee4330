package docfmt

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dreamware/smd/internal/smdtype"
)

// Kind identifies which document source family a Value scalar belongs to,
// mirroring the four storage classes SMD types can take (§3): integer-64,
// double, UTF-8 text, and a raw binary blob.
type Kind int

const (
	KindInt64 Kind = iota
	KindFloat64
	KindText
	KindBinary
)

// Value is one scalar member of a values document. Exactly one of the
// typed fields is meaningful, selected by Kind; this mirrors the union the
// original implementation stored per bson_iter_t element, but as a tagged
// Go struct instead of an interface{} so callers can switch on Kind without
// a type assertion.
type Value struct {
	Text    string
	Binary  []byte
	Int64   int64
	Float64 float64
	Kind    Kind
}

func Int64Value(v int64) Value     { return Value{Kind: KindInt64, Int64: v} }
func Float64Value(v float64) Value { return Value{Kind: KindFloat64, Float64: v} }
func TextValue(v string) Value     { return Value{Kind: KindText, Text: v} }
func BinaryValue(v []byte) Value   { return Value{Kind: KindBinary, Binary: v} }

// Field is one named member of a values document.
type Field struct {
	Name  string
	Value Value
}

// ValuesDoc is an ordered document whose members name scheme fields and
// carry one scalar each (§6, "Values document encoding"). Member order on
// the wire need not match scheme declaration order; duplicate member names
// are illegal.
type ValuesDoc []Field

// Get returns the value for name and whether it was present.
func (d ValuesDoc) Get(name string) (Value, bool) {
	for _, f := range d {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Set overwrites the value for name if present, or appends a new member.
func (d ValuesDoc) Set(name string, v Value) ValuesDoc {
	for i, f := range d {
		if f.Name == name {
			d[i].Value = v
			return d
		}
	}
	return append(d, Field{Name: name, Value: v})
}

// EncodeValues serializes a ValuesDoc to its DOC wire representation.
func EncodeValues(doc ValuesDoc) ([]byte, error) {
	d := make(bson.D, 0, len(doc))
	for _, f := range doc {
		switch f.Value.Kind {
		case KindInt64:
			d = append(d, bson.E{Key: f.Name, Value: f.Value.Int64})
		case KindFloat64:
			d = append(d, bson.E{Key: f.Name, Value: f.Value.Float64})
		case KindText:
			d = append(d, bson.E{Key: f.Name, Value: f.Value.Text})
		case KindBinary:
			d = append(d, bson.E{Key: f.Name, Value: primitive.Binary{Subtype: 0x00, Data: f.Value.Binary}})
		default:
			return nil, fmt.Errorf("docfmt: field %q has unrecognized value kind %d", f.Name, f.Value.Kind)
		}
	}
	return bson.Marshal(d)
}

// DecodeValues parses a DOC-encoded values document, rejecting duplicate
// member names (§6: "Members in an unknown order are legal; duplicates are
// illegal").
func DecodeValues(raw []byte) (ValuesDoc, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("docfmt: decode values document: %w", err)
	}

	seen := make(map[string]struct{}, len(d))
	doc := make(ValuesDoc, 0, len(d))
	for _, e := range d {
		if _, dup := seen[e.Key]; dup {
			return nil, fmt.Errorf("docfmt: duplicate member %q in values document", e.Key)
		}
		seen[e.Key] = struct{}{}

		v, err := valueFromRaw(e.Value)
		if err != nil {
			return nil, fmt.Errorf("docfmt: member %q: %w", e.Key, err)
		}
		doc = append(doc, Field{Name: e.Key, Value: v})
	}
	return doc, nil
}

func valueFromRaw(raw any) (Value, error) {
	switch v := raw.(type) {
	case int64:
		return Int64Value(v), nil
	case int32:
		return Int64Value(int64(v)), nil
	case float64:
		return Float64Value(v), nil
	case string:
		return TextValue(v), nil
	case primitive.Binary:
		return BinaryValue(v.Data), nil
	default:
		return Value{}, fmt.Errorf("unsupported document scalar type %T", raw)
	}
}

// SchemeField is one (name, type) member of a scheme document.
type SchemeField struct {
	Name string
	Type smdtype.Tag
}

// SchemeDoc is the ordered document representation of a Scheme: a sequence
// of (name, integer(type-tag)) members (§3).
type SchemeDoc []SchemeField

// EncodeScheme serializes a SchemeDoc to its DOC wire representation.
func EncodeScheme(doc SchemeDoc) ([]byte, error) {
	d := make(bson.D, 0, len(doc))
	for _, f := range doc {
		d = append(d, bson.E{Key: f.Name, Value: int64(f.Type)})
	}
	return bson.Marshal(d)
}

// DecodeScheme parses a DOC-encoded scheme document. An unrecognized type
// tag is a fatal error for the receiver (§6).
func DecodeScheme(raw []byte) (SchemeDoc, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("docfmt: decode scheme document: %w", err)
	}

	seen := make(map[string]struct{}, len(d))
	doc := make(SchemeDoc, 0, len(d))
	for _, e := range d {
		if _, dup := seen[e.Key]; dup {
			return nil, fmt.Errorf("docfmt: duplicate field %q in scheme document", e.Key)
		}
		seen[e.Key] = struct{}{}

		tagInt, ok := e.Value.(int64)
		if !ok {
			if i32, ok32 := e.Value.(int32); ok32 {
				tagInt = int64(i32)
			} else {
				return nil, fmt.Errorf("docfmt: scheme field %q has non-integer type tag", e.Key)
			}
		}
		tag := smdtype.Tag(tagInt)
		if !smdtype.IsValid(tag) {
			return nil, fmt.Errorf("docfmt: scheme field %q has unrecognized type tag %d", e.Key, tagInt)
		}
		doc = append(doc, SchemeField{Name: e.Key, Type: tag})
	}
	return doc, nil
}
