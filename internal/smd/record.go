package smd

import (
	"fmt"
	"time"

	"github.com/dreamware/smd/internal/backend"
	"github.com/dreamware/smd/internal/docfmt"
	"github.com/dreamware/smd/internal/smdtype"
)

// dateTimeLayout is the ISO-8601 / RFC 3339 layout SMD exchanges and
// stores date-time fields in (§4.2, §9): a fixed-offset timestamp string
// rather than an epoch integer, so a value round-trips its timezone
// offset and never overflows a 32- or 64-bit epoch range.
const dateTimeLayout = time.RFC3339Nano

// Record binds a key and a set of field values to a Scheme. Only
// fields actually set are present in the record's document. A partial
// record (some scheme fields unset) is valid for Update, where absent
// fields keep their prior stored value (§9); for Insert the reference
// backend (sqlbackend) rejects a record that leaves any scheme field
// unset, since every column is NOT NULL.
type Record struct {
	Scheme *Scheme
	Key    string
	values docfmt.ValuesDoc
}

// NewRecord creates an empty record bound to scheme and key, with no
// fields set yet.
func NewRecord(scheme *Scheme, key string) (*Record, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: smd: record key must not be empty", backend.ErrValidation)
	}
	return &Record{Scheme: scheme, Key: key}, nil
}

// RecordFromValues reconstructs a Record bound to scheme and key from a
// decoded values document, as returned by Backend.Get. Every member of
// doc must name a field scheme declares with a matching storage class;
// mismatches are %w ErrConsistency, since the document came back from
// storage, not from untrusted client input.
func RecordFromValues(scheme *Scheme, key string, doc docfmt.ValuesDoc) (*Record, error) {
	for _, f := range doc {
		tag, ok := scheme.FieldType(f.Name)
		if !ok {
			return nil, fmt.Errorf("%w: smd: stored record %q/%q has undeclared field %q", backend.ErrConsistency, scheme.Namespace, key, f.Name)
		}
		if smdtype.StorageClassOf(tag) != classForKind(f.Value.Kind) {
			return nil, fmt.Errorf("%w: smd: stored record %q/%q field %q storage class mismatch", backend.ErrConsistency, scheme.Namespace, key, f.Name)
		}
	}
	return &Record{Scheme: scheme, Key: key, values: append(docfmt.ValuesDoc(nil), doc...)}, nil
}

// ToValuesDoc returns the record's set fields as a DOC values document,
// ready for Batch.Insert/Update.
func (r *Record) ToValuesDoc() docfmt.ValuesDoc {
	return append(docfmt.ValuesDoc(nil), r.values...)
}

// set validates name/v against the bound scheme and, only if they
// match, mutates the record. A validation failure never partially
// mutates the record (§8: "setting a field with the wrong type ...
// leaves the record unchanged").
func (r *Record) set(name string, v docfmt.Value) error {
	tag, ok := r.Scheme.FieldType(name)
	if !ok {
		return fmt.Errorf("%w: smd: %q has no field %q", backend.ErrValidation, r.Scheme.Namespace, name)
	}
	if smdtype.StorageClassOf(tag) != classForKind(v.Kind) {
		return fmt.Errorf("%w: smd: field %q is %s, not %s", backend.ErrValidation, name, smdtype.StorageClassOf(tag), classForKind(v.Kind))
	}
	r.values = r.values.Set(name, v)
	return nil
}

// get validates that name is declared and returns its current value.
// The zero Value and false are returned for a declared-but-unset field
// as well as an undeclared one; callers that must distinguish the two
// should consult r.Scheme.FieldType first.
func (r *Record) get(name string) (docfmt.Value, bool, error) {
	if _, ok := r.Scheme.FieldType(name); !ok {
		return docfmt.Value{}, false, fmt.Errorf("%w: smd: %q has no field %q", backend.ErrValidation, r.Scheme.Namespace, name)
	}
	v, ok := r.values.Get(name)
	return v, ok, nil
}

// SetInt64 sets an integer-64-class field.
func (r *Record) SetInt64(name string, v int64) error { return r.set(name, docfmt.Int64Value(v)) }

// SetFloat64 sets a double-class field.
func (r *Record) SetFloat64(name string, v float64) error {
	return r.set(name, docfmt.Float64Value(v))
}

// SetText sets a text-class field.
func (r *Record) SetText(name string, v string) error { return r.set(name, docfmt.TextValue(v)) }

// SetBinary sets a blob-class field.
func (r *Record) SetBinary(name string, v []byte) error {
	return r.set(name, docfmt.BinaryValue(v))
}

// SetDateTime sets a date-time field, encoding v as a fixed-offset
// ISO-8601 string (§4.2). date-time's storage class is text, so this is
// rejected for any field not declared smdtype.TagDateTime or another
// text-class tag.
func (r *Record) SetDateTime(name string, v time.Time) error {
	return r.set(name, docfmt.TextValue(v.Format(dateTimeLayout)))
}

// GetInt64 returns an integer-64-class field's value.
func (r *Record) GetInt64(name string) (int64, bool, error) {
	v, ok, err := r.get(name)
	if err != nil || !ok {
		return 0, ok, err
	}
	if v.Kind != docfmt.KindInt64 {
		return 0, false, fmt.Errorf("%w: smd: field %q is not integer-64", backend.ErrValidation, name)
	}
	return v.Int64, true, nil
}

// GetFloat64 returns a double-class field's value.
func (r *Record) GetFloat64(name string) (float64, bool, error) {
	v, ok, err := r.get(name)
	if err != nil || !ok {
		return 0, ok, err
	}
	if v.Kind != docfmt.KindFloat64 {
		return 0, false, fmt.Errorf("%w: smd: field %q is not double", backend.ErrValidation, name)
	}
	return v.Float64, true, nil
}

// GetText returns a text-class field's value.
func (r *Record) GetText(name string) (string, bool, error) {
	v, ok, err := r.get(name)
	if err != nil || !ok {
		return "", ok, err
	}
	if v.Kind != docfmt.KindText {
		return "", false, fmt.Errorf("%w: smd: field %q is not text", backend.ErrValidation, name)
	}
	return v.Text, true, nil
}

// GetBinary returns a blob-class field's value.
func (r *Record) GetBinary(name string) ([]byte, bool, error) {
	v, ok, err := r.get(name)
	if err != nil || !ok {
		return nil, ok, err
	}
	if v.Kind != docfmt.KindBinary {
		return nil, false, fmt.Errorf("%w: smd: field %q is not blob", backend.ErrValidation, name)
	}
	return v.Binary, true, nil
}

// GetDateTime parses a date-time field's stored ISO-8601 string.
func (r *Record) GetDateTime(name string) (time.Time, bool, error) {
	s, ok, err := r.GetText(name)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	t, err := time.Parse(dateTimeLayout, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: smd: field %q is not a valid ISO-8601 date-time: %v", backend.ErrValidation, name, err)
	}
	return t, true, nil
}

func classForKind(k docfmt.Kind) smdtype.StorageClass {
	switch k {
	case docfmt.KindInt64:
		return smdtype.StorageInt64
	case docfmt.KindFloat64:
		return smdtype.StorageFloat64
	case docfmt.KindText:
		return smdtype.StorageText
	case docfmt.KindBinary:
		return smdtype.StorageBlob
	default:
		return smdtype.StorageInvalid
	}
}
