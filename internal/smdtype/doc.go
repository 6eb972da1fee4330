// Package smdtype implements the type registry for Structured Metadata
// column types.
//
// # Overview
//
// SMD fields are declared with one of a closed set of column types: signed
// and unsigned integers of several widths, floating-point values of several
// widths, text, and date-time. Every type has three properties that the rest
// of the subsystem depends on:
//
//   - a canonical lowercase name, used in human-facing APIs and in the
//     scheme document cached by the backend (name <-> tag is a bijection);
//   - a storage class, the normalized representation (integer-64, double,
//     text, or fixed-width binary blob) the value takes on the wire and in
//     a relational column;
//   - the document source kind a value must arrive in on insert/update, to
//     make type mismatches a synchronous, client-local failure instead of a
//     mystery database error.
//
// The registry is a single table (array of tag/name/storage-class triples);
// every lookup function is derived from that table, the same structure the
// original C implementation used via a repeated macro-include ("X-macro")
// over jsmd-type.h.
package smdtype
