package smd

import (
	"fmt"

	"github.com/dreamware/smd/internal/backend"
	"github.com/dreamware/smd/internal/docfmt"
	"github.com/dreamware/smd/internal/smdtype"
)

// Field is one (name, type) declaration in a Scheme.
type Field struct {
	Name string
	Type smdtype.Tag
}

// Scheme is the structural declaration bound to one namespace: an
// ordered set of typed fields every Record of that namespace must
// conform to (§3). A Scheme is immutable once constructed; to change a
// namespace's fields, apply a new Scheme (the backend rejects a second
// ApplyScheme on the same namespace).
type Scheme struct {
	Namespace string
	Fields    []Field

	byName map[string]smdtype.Tag
}

// NewScheme validates and constructs a Scheme. It rejects an empty
// namespace, an empty field list, duplicate field names, and any field
// whose type tag is not a concrete, registered type (%w ErrValidation).
func NewScheme(namespace string, fields []Field) (*Scheme, error) {
	if namespace == "" {
		return nil, fmt.Errorf("%w: smd: scheme namespace must not be empty", backend.ErrValidation)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: smd: scheme %q must declare at least one field", backend.ErrValidation, namespace)
	}

	byName := make(map[string]smdtype.Tag, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: smd: scheme %q has an unnamed field", backend.ErrValidation, namespace)
		}
		if f.Name == "key" {
			return nil, fmt.Errorf("%w: smd: scheme %q field name \"key\" is reserved", backend.ErrValidation, namespace)
		}
		if !smdtype.IsValid(f.Type) {
			return nil, fmt.Errorf("%w: smd: scheme %q field %q has invalid type tag %d", backend.ErrValidation, namespace, f.Name, f.Type)
		}
		if _, dup := byName[f.Name]; dup {
			return nil, fmt.Errorf("%w: smd: scheme %q has duplicate field %q", backend.ErrValidation, namespace, f.Name)
		}
		byName[f.Name] = f.Type
	}

	return &Scheme{Namespace: namespace, Fields: append([]Field(nil), fields...), byName: byName}, nil
}

// FieldType returns the declared type of name and whether it is
// declared at all.
func (s *Scheme) FieldType(name string) (smdtype.Tag, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Doc renders the Scheme as its DOC wire representation, in declaration
// order.
func (s *Scheme) Doc() (docfmt.SchemeDoc, error) {
	doc := make(docfmt.SchemeDoc, len(s.Fields))
	for i, f := range s.Fields {
		doc[i] = docfmt.SchemeField{Name: f.Name, Type: f.Type}
	}
	return doc, nil
}

// SchemeFromDoc reconstructs a Scheme bound to namespace from a decoded
// DOC scheme document, as returned by Backend.GetScheme.
func SchemeFromDoc(namespace string, doc docfmt.SchemeDoc) (*Scheme, error) {
	fields := make([]Field, len(doc))
	for i, f := range doc {
		fields[i] = Field{Name: f.Name, Type: f.Type}
	}
	return NewScheme(namespace, fields)
}
