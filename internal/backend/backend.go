package backend

import "errors"

// The four-tier failure taxonomy of spec.md §7, modeled as sentinel errors
// rather than an error-code type, matching the teacher's own
// storage.ErrKeyNotFound convention. Callers distinguish categories with
// errors.Is; a wrapped error (e.g. ErrDuplicateKey) is also ErrBackend.
var (
	// ErrValidation marks a client-local, synchronous failure: unknown
	// scheme field, type mismatch on a setter, invalid type tag, empty
	// namespace or key. Returned by internal/smd; sqlbackend also
	// returns it for an empty key or an empty or backtick-containing
	// namespace, which shard.Host treats as a connection-level failure.
	ErrValidation = errors.New("smd: validation failure")

	// ErrProtocol marks a transport failure: connection acquisition
	// failed, send/receive failed, or a reply was malformed. Returned by
	// the dispatch engine in internal/smd, which wraps internal/transport's
	// plain errors with it; never by a Backend.
	ErrProtocol = errors.New("smd: protocol failure")

	// ErrBackend marks a failure reported by a Backend implementation:
	// unknown namespace, duplicate key, scheme/value type mismatch, or a
	// storage engine error.
	ErrBackend = errors.New("smd: backend failure")

	// ErrConsistency marks a fatal structural inconsistency: a document
	// retrieved from storage does not match the cached scheme (missing
	// column, unexpected SQL column type).
	ErrConsistency = errors.New("smd: consistency failure")
)

// More specific backend errors, each wrapping ErrBackend so that
// errors.Is(err, ErrBackend) holds for any of them.
var (
	ErrNamespaceExists  = wrapBackend("namespace already has an applied scheme")
	ErrNamespaceUnknown = wrapBackend("namespace has no applied scheme")
	ErrDuplicateKey     = wrapBackend("key already exists")
	ErrRecordNotFound   = wrapBackend("key not found")
	ErrUnknownColumn    = wrapBackend("column not declared in scheme")
	ErrTypeMismatch     = wrapBackend("document source kind does not match column storage class")
)

type backendError struct {
	msg string
}

func (e *backendError) Error() string { return "smd: " + e.msg }
func (e *backendError) Unwrap() error { return ErrBackend }

func wrapBackend(msg string) error { return &backendError{msg: msg} }

// DeletePolicy controls whether Delete on an absent key is itself a
// failure, or succeeds idempotently. spec.md §9 leaves this as an open
// question and defers to an explicit backend policy knob, defaulting to
// idempotent success.
type DeletePolicy int

const (
	// DeleteIdempotent makes Delete succeed whether or not key existed.
	// This is the default (spec.md §9).
	DeleteIdempotent DeletePolicy = iota
	// DeleteStrict makes Delete fail with ErrRecordNotFound if key did
	// not exist.
	DeleteStrict
)

// Backend is the function-table contract every storage backend must
// satisfy (§4.4). It models the original C implementation's loaded-module
// function table as a Go interface: selection of which backend to use is
// runtime configuration, held explicitly by whatever constructs a shard
// host (internal/shard), not a global singleton.
//
// All document arguments (schemeDoc, valuesDoc) are DOC-encoded byte
// slices (internal/docfmt); a Backend does not need to know about
// Scheme/Record, only about encoded documents and the namespace/key
// strings that identify them.
type Backend interface {
	// Init opens or creates the persistent store at path and creates any
	// housekeeping structures. Called once before any other method.
	Init(path string) error

	// Fini closes the store. Idempotent; safe to call on an
	// already-closed or never-initialized backend.
	Fini() error

	// ApplyScheme atomically creates the namespace's structure and
	// caches schemeDoc for later retrieval by GetScheme. Returns
	// ErrNamespaceExists if ns already has an applied scheme.
	ApplyScheme(ns string, schemeDoc []byte) error

	// GetScheme returns the cached scheme document for ns. Returns
	// ErrNamespaceUnknown if ns has no applied scheme.
	GetScheme(ns string) ([]byte, error)

	// Insert creates one record. Returns ErrDuplicateKey if key already
	// exists, ErrNamespaceUnknown if ns is unknown, or ErrUnknownColumn /
	// ErrTypeMismatch if valuesDoc doesn't match the cached scheme.
	Insert(ns, key string, valuesDoc []byte) error

	// Update upserts: creates the record if key is absent, else updates
	// only the fields present in valuesDoc. Fields not present keep
	// their prior values.
	Update(ns, key string, valuesDoc []byte) error

	// Delete removes a record. Whether an absent key is itself a
	// failure is controlled by the backend's configured DeletePolicy.
	Delete(ns, key string) error

	// Get fills and returns a values document with all declared columns
	// for key. Returns ErrRecordNotFound if key is absent.
	Get(ns, key string) ([]byte, error)

	// Search begins a streaming query and returns a Cursor over its
	// results. The search/iterate surface is declared here per §4.4's
	// interface shape; the reference backend's Search returns an empty,
	// immediately-exhausted Cursor (§9, "effectively unimplemented").
	Search(args []byte) (Cursor, error)
}

// Cursor is a lazy, finite, single-pass, non-restartable sequence of
// documents produced by Backend.Search (§4.4).
type Cursor interface {
	// Next advances the cursor and reports whether a document is
	// available. It returns false both at end-of-stream and after a
	// deferred failure; callers distinguish the two with Err.
	Next() (doc []byte, ok bool)

	// Err reports any deferred failure encountered by the cursor. Valid
	// to call at any point; always nil before the cursor is exhausted
	// for a successful Next sequence.
	Err() error
}
