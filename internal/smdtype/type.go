package smdtype

import "fmt"

// Tag is the closed enumeration of SMD column types. The zero value,
// TagInvalid, never names a storable field.
type Tag int64

// StorageClass is the normalized representation a Tag's values take on the
// wire and in a relational column: integer-64, double, text, or a
// fixed-length binary blob.
type StorageClass int

const (
	StorageInvalid StorageClass = iota
	StorageInt64
	StorageFloat64
	StorageText
	StorageBlob
)

func (c StorageClass) String() string {
	switch c {
	case StorageInt64:
		return "integer-64"
	case StorageFloat64:
		return "double"
	case StorageText:
		return "text"
	case StorageBlob:
		return "blob"
	default:
		return "invalid"
	}
}

// Tag values, in registration order. Registration order is significant: it
// is the same order the original C implementation assigned to its
// JSMD_TYPE enum via a repeated macro-include, and TagFromName/NameFromTag
// below are derived from this single table rather than a hand-written
// switch, so the order here is the only place the enumeration is defined.
const (
	TagInvalid Tag = iota
	TagUnknown
	TagInteger
	TagInteger8
	TagInteger16
	TagInteger32
	TagInteger64
	TagInteger128
	TagUnsignedInteger
	TagUnsignedInteger8
	TagUnsignedInteger16
	TagUnsignedInteger32
	TagUnsignedInteger64
	TagUnsignedInteger128
	TagFloat
	TagFloat16
	TagFloat32
	TagFloat64
	TagFloat128
	TagFloat256
	TagText
	TagDateTime
)

// registryEntry is one row of the type table: a tag, its canonical string
// name, and its storage class. blobWidth is only meaningful when class is
// StorageBlob.
type registryEntry struct {
	name      string
	tag       Tag
	class     StorageClass
	blobWidth int
}

// registry is the single source of truth for the type system. Both client
// field validation (internal/smd) and backend DDL generation
// (internal/backend/sqlbackend) consult it; nothing outside this file
// encodes the tag <-> name <-> storage-class mapping.
var registry = []registryEntry{
	{tag: TagInvalid, name: "invalid", class: StorageInvalid},
	{tag: TagUnknown, name: "unknown", class: StorageInvalid},
	{tag: TagInteger, name: "integer", class: StorageInt64},
	{tag: TagInteger8, name: "integer8", class: StorageInt64},
	{tag: TagInteger16, name: "integer16", class: StorageInt64},
	{tag: TagInteger32, name: "integer32", class: StorageInt64},
	{tag: TagInteger64, name: "integer64", class: StorageInt64},
	{tag: TagInteger128, name: "integer128", class: StorageBlob, blobWidth: 16},
	{tag: TagUnsignedInteger, name: "unsigned integer", class: StorageBlob, blobWidth: 8},
	{tag: TagUnsignedInteger8, name: "unsigned integer8", class: StorageInt64},
	{tag: TagUnsignedInteger16, name: "unsigned integer16", class: StorageInt64},
	{tag: TagUnsignedInteger32, name: "unsigned integer32", class: StorageInt64},
	{tag: TagUnsignedInteger64, name: "unsigned integer64", class: StorageBlob, blobWidth: 8},
	{tag: TagUnsignedInteger128, name: "unsigned integer128", class: StorageBlob, blobWidth: 16},
	{tag: TagFloat, name: "float", class: StorageFloat64},
	{tag: TagFloat16, name: "float16", class: StorageFloat64},
	{tag: TagFloat32, name: "float32", class: StorageFloat64},
	{tag: TagFloat64, name: "float64", class: StorageFloat64},
	{tag: TagFloat128, name: "float128", class: StorageBlob, blobWidth: 16},
	{tag: TagFloat256, name: "float256", class: StorageBlob, blobWidth: 32},
	{tag: TagText, name: "text", class: StorageText},
	// §3 lists date-time under the integer-64 rule, but §4.2's date-time
	// contract and §9's design note both override that: date-time is
	// exchanged and stored as an ISO-8601 string (to preserve timezone
	// offset and avoid epoch-range/ambiguity issues), so its storage
	// class is text, not integer-64.
	{tag: TagDateTime, name: "date time", class: StorageText},
}

// TagFromName looks up a type by its canonical lowercase name, returning
// TagUnknown for any string not present in the registry. This mirrors the
// original implementation's linear scan over its registered name table
// (j_smd_type_string2type), which likewise falls back to an "unknown type"
// tag rather than an error for unrecognized strings.
func TagFromName(name string) Tag {
	for _, e := range registry {
		if e.name == name {
			return e.tag
		}
	}
	return TagUnknown
}

// NameFromTag returns the canonical name for tag, and false if tag is out
// of the registered range (mirrors j_smd_type_type2string returning NULL
// for an out-of-range integer tag).
func NameFromTag(tag Tag) (string, bool) {
	if int(tag) < 0 || int(tag) >= len(registry) {
		return "", false
	}
	return registry[tag].name, true
}

// IsValid reports whether tag is a concrete, storable field type: neither
// TagInvalid nor TagUnknown, and within the registered range.
func IsValid(tag Tag) bool {
	if int(tag) < 0 || int(tag) >= len(registry) {
		return false
	}
	return tag != TagInvalid && tag != TagUnknown
}

// StorageClassOf returns the normalized storage class for tag. It returns
// StorageInvalid for TagInvalid, TagUnknown, or any out-of-range tag.
func StorageClassOf(tag Tag) StorageClass {
	if int(tag) < 0 || int(tag) >= len(registry) {
		return StorageInvalid
	}
	return registry[tag].class
}

// BlobWidth returns the fixed byte width of tag's column representation
// when its storage class is StorageBlob. It returns 0 for any tag whose
// storage class is not StorageBlob.
func BlobWidth(tag Tag) int {
	if int(tag) < 0 || int(tag) >= len(registry) {
		return 0
	}
	e := registry[tag]
	if e.class != StorageBlob {
		return 0
	}
	return e.blobWidth
}

// String implements fmt.Stringer for Tag, returning the canonical name or
// a diagnostic placeholder for unregistered values.
func (t Tag) String() string {
	if name, ok := NameFromTag(t); ok {
		return name
	}
	return fmt.Sprintf("smdtype.Tag(%d)", int64(t))
}
