package smd

import (
	"fmt"

	"github.com/dreamware/smd/internal/backend"
	"github.com/dreamware/smd/internal/docfmt"
	"github.com/dreamware/smd/internal/wire"
)

// Operation is one unit of work inside a Batch: an apply-scheme,
// get-scheme, insert, update, delete, or get against one namespace.
// Batch callers never construct Operation directly; Batch's Add*
// methods do.
type Operation struct {
	verb      wire.Verb
	namespace string
	key       string
	schemeDoc []byte
	valuesDoc []byte
}

// Result is the outcome of one Operation, at the same index in
// Engine.Execute's returned slice as the Operation held in the Batch.
type Result struct {
	// SchemeDoc is set for a successful get-scheme.
	SchemeDoc []byte
	// ValuesDoc is set for a successful get.
	ValuesDoc []byte
	// Found reports whether get-scheme/get located a document. A
	// non-nil Err takes precedence: check Err first.
	Found bool
	// Err is nil on success. Otherwise it is usually one of the
	// failure categories in internal/backend (ErrValidation for an
	// unsupported verb, ErrProtocol, ErrBackend, ErrConsistency); a
	// canceled context yields the context's error, and a Router's error
	// is passed through as the Router returned it.
	Err error
}

// Scheme decodes a successful get-scheme Result into a Scheme bound to
// namespace.
func (r Result) Scheme(namespace string) (*Scheme, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	doc, err := docfmt.DecodeScheme(r.SchemeDoc)
	if err != nil {
		return nil, fmt.Errorf("%w: smd: decode scheme reply: %v", backend.ErrConsistency, err)
	}
	return SchemeFromDoc(namespace, doc)
}

// Record decodes a successful get Result into a Record bound to scheme
// and key.
func (r Result) Record(scheme *Scheme, key string) (*Record, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	doc, err := docfmt.DecodeValues(r.ValuesDoc)
	if err != nil {
		return nil, fmt.Errorf("%w: smd: decode values reply: %v", backend.ErrConsistency, err)
	}
	return RecordFromValues(scheme, key, doc)
}

// Batch is an ordered sequence of operations, dispatched together by
// Engine.Execute. Operations need not share a namespace or verb; the
// engine groups them by destination shard and verb before sending
// (§4.3).
type Batch struct {
	ops []Operation
}

// NewBatch returns an empty batch.
func NewBatch() *Batch { return &Batch{} }

// Len returns the number of operations currently in the batch.
func (b *Batch) Len() int { return len(b.ops) }

func (b *Batch) add(op Operation) int {
	b.ops = append(b.ops, op)
	return len(b.ops) - 1
}

// ApplyScheme appends an apply-scheme operation and returns its index
// into Engine.Execute's result slice.
func (b *Batch) ApplyScheme(scheme *Scheme) (int, error) {
	doc, err := scheme.Doc()
	if err != nil {
		return -1, err
	}
	raw, err := docfmt.EncodeScheme(doc)
	if err != nil {
		return -1, fmt.Errorf("%w: smd: encode scheme: %v", backend.ErrValidation, err)
	}
	return b.add(Operation{verb: wire.VerbApplyScheme, namespace: scheme.Namespace, schemeDoc: raw}), nil
}

// GetScheme appends a get-scheme operation for namespace.
func (b *Batch) GetScheme(namespace string) int {
	return b.add(Operation{verb: wire.VerbGetScheme, namespace: namespace})
}

// Insert appends an insert operation for rec.
func (b *Batch) Insert(rec *Record) (int, error) {
	raw, err := docfmt.EncodeValues(rec.ToValuesDoc())
	if err != nil {
		return -1, fmt.Errorf("%w: smd: encode values: %v", backend.ErrValidation, err)
	}
	return b.add(Operation{verb: wire.VerbInsert, namespace: rec.Scheme.Namespace, key: rec.Key, valuesDoc: raw}), nil
}

// Update appends an update operation for rec. Fields rec does not set
// are left unchanged on the stored record (§9).
func (b *Batch) Update(rec *Record) (int, error) {
	raw, err := docfmt.EncodeValues(rec.ToValuesDoc())
	if err != nil {
		return -1, fmt.Errorf("%w: smd: encode values: %v", backend.ErrValidation, err)
	}
	return b.add(Operation{verb: wire.VerbUpdate, namespace: rec.Scheme.Namespace, key: rec.Key, valuesDoc: raw}), nil
}

// Delete appends a delete operation for namespace/key.
func (b *Batch) Delete(namespace, key string) int {
	return b.add(Operation{verb: wire.VerbDelete, namespace: namespace, key: key})
}

// Get appends a get operation for namespace/key.
func (b *Batch) Get(namespace, key string) int {
	return b.add(Operation{verb: wire.VerbGet, namespace: namespace, key: key})
}
