// Package docfmt implements DOC, the self-describing binary document
// format SMD uses for scheme documents and values documents, both on the
// wire and at rest in the reference backend's scheme cache.
//
// spec.md assumes DOC as an external collaborator: "a self-describing
// binary document format supporting typed scalars, binary blobs, and
// ordered key/value members". This package grounds that assumption in
// go.mongodb.org/mongo-driver/bson, whose bson.D is precisely an ordered
// slice of named members and whose scalar set (int32/int64/double/UTF-8
// string/binary) covers every source kind §3's storage-class table
// requires. SchemeDoc and ValuesDoc give the two document shapes SMD
// actually needs their own names and validation rules, rather than
// exposing bson.D directly to callers.
package docfmt
