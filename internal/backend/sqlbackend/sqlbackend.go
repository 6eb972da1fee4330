// Package sqlbackend implements the reference backend of spec.md §4.5: a
// single embedded relational store, one table per applied namespace plus a
// _sys_schemes_ housekeeping table caching each namespace's scheme
// document.
//
// It is grounded directly on _examples/original_source/backend/smd/sqlite.c
// (the JULEA smd SQLite backend), translated from sqlite3_* / bson_t calls
// to database/sql against modernc.org/sqlite, a pure-Go CGo-free SQLite
// driver referenced by several repos in the retrieval pack
// (teradata-labs/loom, syssam/velox, open-policy-agent/opa). Where the
// original C source is internally inconsistent between drafts (see
// spec.md §9's design notes), this package follows the spec's resolved
// behavior, not the literal original.
package sqlbackend

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/dreamware/smd/internal/backend"
	"github.com/dreamware/smd/internal/docfmt"
	"github.com/dreamware/smd/internal/smdtype"
)

const createSchemesTable = `
CREATE TABLE IF NOT EXISTS _sys_schemes_ (
  namespace TEXT NOT NULL,
  cached_scheme BLOB NOT NULL
);`

const createSchemesIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS _sys_schemes_idx_ ON _sys_schemes_ (namespace);`

// Backend implements backend.Backend against a single sqlite database
// file. All its operations are serialized by the underlying store (§5,
// "Shared resource policy"); db itself is safe for concurrent use from
// multiple goroutines, so Backend does not add its own lock around reads,
// only around the housekeeping DDL sequence in ApplyScheme.
type Backend struct {
	db           *sql.DB
	mu           sync.Mutex
	deletePolicy backend.DeletePolicy
}

// New creates an unopened Backend. Call Init before any other method.
// deletePolicy controls whether Delete on an absent key is a failure
// (backend.DeleteStrict) or succeeds idempotently (backend.DeleteIdempotent,
// the default per spec.md §9).
func New(deletePolicy backend.DeletePolicy) *Backend {
	return &Backend{deletePolicy: deletePolicy}
}

var _ backend.Backend = (*Backend)(nil)

// Init opens or creates the sqlite database file at path and creates the
// _sys_schemes_ housekeeping table and its unique index on first open.
func (b *Backend) Init(path string) error {
	if path == "" {
		return fmt.Errorf("%w: sqlbackend: path must not be empty", backend.ErrBackend)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("%w: sqlbackend: create data directory: %v", backend.ErrBackend, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("%w: sqlbackend: open %s: %v", backend.ErrBackend, path, err)
	}
	db.SetMaxOpenConns(1) // sqlite: one writer at a time, serialize at the handle

	if _, err := db.Exec(createSchemesTable); err != nil {
		db.Close()
		return fmt.Errorf("%w: sqlbackend: create _sys_schemes_: %v", backend.ErrBackend, err)
	}
	if _, err := db.Exec(createSchemesIndex); err != nil {
		db.Close()
		return fmt.Errorf("%w: sqlbackend: create _sys_schemes_idx_: %v", backend.ErrBackend, err)
	}

	b.db = db
	return nil
}

// Fini closes the store. Idempotent; safe on an already-closed or
// never-initialized Backend.
func (b *Backend) Fini() error {
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// ApplyScheme generates `CREATE TABLE `{ns}` (`key` TEXT NOT NULL PRIMARY
// KEY, {cols});`, executes it, and caches schemeDoc in _sys_schemes_, all
// inside one transaction. Fails with backend.ErrNamespaceExists if ns
// already has an applied scheme; any other failure rolls the transaction
// back.
func (b *Backend) ApplyScheme(ns string, schemeDoc []byte) error {
	if err := validateIdentifier(ns); err != nil {
		return err
	}

	scheme, err := docfmt.DecodeScheme(schemeDoc)
	if err != nil {
		return fmt.Errorf("%w: sqlbackend: decode scheme: %v", backend.ErrBackend, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: sqlbackend: begin transaction: %v", backend.ErrBackend, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after a successful Commit

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM _sys_schemes_ WHERE namespace = ?`, ns).Scan(&exists); err != nil {
		return fmt.Errorf("%w: sqlbackend: check existing namespace: %v", backend.ErrBackend, err)
	}
	if exists > 0 {
		return backend.ErrNamespaceExists
	}

	createStmt, err := generateCreateTableStmt(ns, scheme)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(createStmt); err != nil {
		return fmt.Errorf("%w: sqlbackend: create table for namespace %q: %v", backend.ErrBackend, ns, err)
	}

	if _, err := tx.Exec(`INSERT INTO _sys_schemes_ (namespace, cached_scheme) VALUES (?, ?)`, ns, schemeDoc); err != nil {
		return fmt.Errorf("%w: sqlbackend: cache scheme for namespace %q: %v", backend.ErrBackend, ns, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: sqlbackend: commit apply-scheme: %v", backend.ErrBackend, err)
	}
	return nil
}

// GetScheme returns the cached scheme document for ns, or
// backend.ErrNamespaceUnknown if ns has never been successfully applied.
func (b *Backend) GetScheme(ns string) ([]byte, error) {
	var doc []byte
	err := b.db.QueryRow(`SELECT cached_scheme FROM _sys_schemes_ WHERE namespace = ?`, ns).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, backend.ErrNamespaceUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("%w: sqlbackend: get scheme for namespace %q: %v", backend.ErrBackend, ns, err)
	}
	return doc, nil
}

// Insert creates one record. Every scheme-declared field must be present
// in valuesDoc (all columns are NOT NULL); a missing field, an undeclared
// column, or a storage-class mismatch fails the whole operation without
// touching the database. Duplicate keys surface as
// backend.ErrDuplicateKey.
func (b *Backend) Insert(ns, key string, valuesDoc []byte) error {
	if err := validateIdentifier(ns); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: sqlbackend: key must not be empty", backend.ErrValidation)
	}

	schemeDoc, err := b.GetScheme(ns)
	if err != nil {
		return err
	}
	scheme, err := docfmt.DecodeScheme(schemeDoc)
	if err != nil {
		return fmt.Errorf("%w: sqlbackend: decode cached scheme: %v", backend.ErrConsistency, err)
	}
	values, err := docfmt.DecodeValues(valuesDoc)
	if err != nil {
		return fmt.Errorf("%w: sqlbackend: decode values: %v", backend.ErrBackend, err)
	}

	binds, err := bindsForInsert(scheme, values)
	if err != nil {
		return err
	}

	cols := make([]string, 0, len(binds)+1)
	placeholders := make([]string, 0, len(binds)+1)
	args := make([]any, 0, len(binds)+1)
	cols = append(cols, "`key`")
	placeholders = append(placeholders, "?")
	args = append(args, key)
	for _, bd := range binds {
		cols = append(cols, quoteIdent(bd.name))
		placeholders = append(placeholders, "?")
		args = append(args, bd.arg)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);", quoteIdent(ns), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := b.db.Exec(stmt, args...); err != nil {
		if isUniqueConstraintErr(err) {
			return backend.ErrDuplicateKey
		}
		return fmt.Errorf("%w: sqlbackend: insert into %q: %v", backend.ErrBackend, ns, err)
	}
	return nil
}

// Update upserts key: creates the record if absent (with the same
// all-fields-required rule as Insert for the creation path), or updates
// only the fields present in valuesDoc, leaving the rest unchanged. This
// follows spec.md §9's resolved "iterate the scheme, skip absent fields"
// rule rather than the original C source's node-driven, NULL-binding
// upsert, which would have clobbered unmentioned fields with NULL.
func (b *Backend) Update(ns, key string, valuesDoc []byte) error {
	if err := validateIdentifier(ns); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: sqlbackend: key must not be empty", backend.ErrValidation)
	}

	schemeDoc, err := b.GetScheme(ns)
	if err != nil {
		return err
	}
	scheme, err := docfmt.DecodeScheme(schemeDoc)
	if err != nil {
		return fmt.Errorf("%w: sqlbackend: decode cached scheme: %v", backend.ErrConsistency, err)
	}
	values, err := docfmt.DecodeValues(valuesDoc)
	if err != nil {
		return fmt.Errorf("%w: sqlbackend: decode values: %v", backend.ErrBackend, err)
	}

	binds, err := bindsForUpdate(scheme, values)
	if err != nil {
		return err
	}

	cols := []string{"`key`"}
	placeholders := []string{"?"}
	sets := make([]string, 0, len(binds))
	args := []any{key}
	for _, bd := range binds {
		q := quoteIdent(bd.name)
		cols = append(cols, q)
		placeholders = append(placeholders, "?")
		args = append(args, bd.arg)
		sets = append(sets, q+" = ?")
	}

	// SQLite checks NOT NULL before an ON CONFLICT clause, so the present
	// fields are written with UPDATE and the row is inserted only if absent.
	if len(sets) > 0 {
		upd := fmt.Sprintf("UPDATE %s SET %s WHERE `key` = ?;", quoteIdent(ns), strings.Join(sets, ", "))
		if _, err := b.db.Exec(upd, append(args[1:len(args):len(args)], key)...); err != nil {
			return fmt.Errorf("%w: sqlbackend: update %q: %v", backend.ErrBackend, ns, err)
		}
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s WHERE NOT EXISTS (SELECT 1 FROM %s WHERE `key` = ?);",
		quoteIdent(ns), strings.Join(cols, ", "), strings.Join(placeholders, ", "), quoteIdent(ns))
	if _, err := b.db.Exec(stmt, append(args, key)...); err != nil {
		return fmt.Errorf("%w: sqlbackend: update %q: %v", backend.ErrBackend, ns, err)
	}
	return nil
}

// Delete removes key from ns. Whether an absent key is itself a failure is
// controlled by the Backend's configured DeletePolicy (default:
// idempotent success).
func (b *Backend) Delete(ns, key string) error {
	if err := validateIdentifier(ns); err != nil {
		return err
	}
	res, err := b.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE `key` = ?;", quoteIdent(ns)), key)
	if err != nil {
		return fmt.Errorf("%w: sqlbackend: delete from %q: %v", backend.ErrBackend, ns, err)
	}
	if b.deletePolicy == backend.DeleteStrict {
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: sqlbackend: rows affected: %v", backend.ErrBackend, err)
		}
		if n == 0 {
			return backend.ErrRecordNotFound
		}
	}
	return nil
}

// Get returns a DOC-encoded values document with every scheme-declared
// column for key, or backend.ErrRecordNotFound if key is absent.
func (b *Backend) Get(ns, key string) ([]byte, error) {
	if err := validateIdentifier(ns); err != nil {
		return nil, err
	}

	schemeDoc, err := b.GetScheme(ns)
	if err != nil {
		return nil, err
	}
	scheme, err := docfmt.DecodeScheme(schemeDoc)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlbackend: decode cached scheme: %v", backend.ErrConsistency, err)
	}

	cols := make([]string, 0, len(scheme))
	for _, f := range scheme {
		cols = append(cols, quoteIdent(f.Name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE `key` = ?;", strings.Join(cols, ", "), quoteIdent(ns))

	dests := make([]any, len(scheme))
	for i, f := range scheme {
		switch smdtype.StorageClassOf(f.Type) {
		case smdtype.StorageInt64:
			var v sql.NullInt64
			dests[i] = &v
		case smdtype.StorageFloat64:
			var v sql.NullFloat64
			dests[i] = &v
		case smdtype.StorageText:
			var v sql.NullString
			dests[i] = &v
		case smdtype.StorageBlob:
			var v []byte
			dests[i] = &v
		default:
			return nil, fmt.Errorf("%w: sqlbackend: field %q has invalid storage class", backend.ErrConsistency, f.Name)
		}
	}

	row := b.db.QueryRow(query, key)
	if err := row.Scan(dests...); err != nil {
		if err == sql.ErrNoRows {
			return nil, backend.ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: sqlbackend: get from %q: %v", backend.ErrBackend, ns, err)
	}

	values := make(docfmt.ValuesDoc, 0, len(scheme))
	for i, f := range scheme {
		switch d := dests[i].(type) {
		case *sql.NullInt64:
			if d.Valid {
				values = values.Set(f.Name, docfmt.Int64Value(d.Int64))
			}
		case *sql.NullFloat64:
			if d.Valid {
				values = values.Set(f.Name, docfmt.Float64Value(d.Float64))
			}
		case *sql.NullString:
			if d.Valid {
				values = values.Set(f.Name, docfmt.TextValue(d.String))
			}
		case *[]byte:
			if *d != nil {
				values = values.Set(f.Name, docfmt.BinaryValue(*d))
			}
		}
	}

	doc, err := docfmt.EncodeValues(values)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlbackend: encode result: %v", backend.ErrBackend, err)
	}
	return doc, nil
}

// Search begins a streaming query. The reference backend implements only
// the interface shape of §4.4 (per §9's "effectively unimplemented" note
// on the original's search surface): it returns an immediately-exhausted
// cursor regardless of args.
func (b *Backend) Search(args []byte) (backend.Cursor, error) {
	return &emptyCursor{}, nil
}

type emptyCursor struct{}

func (c *emptyCursor) Next() ([]byte, bool) { return nil, false }
func (c *emptyCursor) Err() error           { return nil }

// bind is one column/value pair ready to be placed into a prepared
// statement's argument list.
type bind struct {
	name string
	arg  any
}

// bindsForInsert walks the scheme in declared order and requires every
// field to be present in values, type-checked against its storage class.
func bindsForInsert(scheme docfmt.SchemeDoc, values docfmt.ValuesDoc) ([]bind, error) {
	binds := make([]bind, 0, len(scheme))
	for _, f := range scheme {
		v, ok := values.Get(f.Name)
		if !ok {
			return nil, fmt.Errorf("%w: sqlbackend: missing required field %q", backend.ErrBackend, f.Name)
		}
		arg, err := bindArg(f, v)
		if err != nil {
			return nil, err
		}
		binds = append(binds, bind{name: f.Name, arg: arg})
	}
	if err := rejectUnknownColumns(scheme, values); err != nil {
		return nil, err
	}
	return binds, nil
}

// bindsForUpdate walks the scheme in declared order and includes only
// fields present in values; absent fields are skipped so they keep their
// prior stored value (§8 invariant 3).
func bindsForUpdate(scheme docfmt.SchemeDoc, values docfmt.ValuesDoc) ([]bind, error) {
	binds := make([]bind, 0, len(scheme))
	for _, f := range scheme {
		v, ok := values.Get(f.Name)
		if !ok {
			continue
		}
		arg, err := bindArg(f, v)
		if err != nil {
			return nil, err
		}
		binds = append(binds, bind{name: f.Name, arg: arg})
	}
	if err := rejectUnknownColumns(scheme, values); err != nil {
		return nil, err
	}
	return binds, nil
}

func rejectUnknownColumns(scheme docfmt.SchemeDoc, values docfmt.ValuesDoc) error {
	for _, f := range values {
		found := false
		for _, s := range scheme {
			if s.Name == f.Name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: sqlbackend: %q", backend.ErrUnknownColumn, f.Name)
		}
	}
	return nil
}

// bindArg type-dispatches a document value to a database/sql bind
// argument per f's storage class, failing with ErrTypeMismatch if the
// value's Kind doesn't match.
func bindArg(f docfmt.SchemeField, v docfmt.Value) (any, error) {
	switch smdtype.StorageClassOf(f.Type) {
	case smdtype.StorageInt64:
		if v.Kind != docfmt.KindInt64 {
			return nil, fmt.Errorf("%w: field %q expects integer-64", backend.ErrTypeMismatch, f.Name)
		}
		return v.Int64, nil
	case smdtype.StorageFloat64:
		if v.Kind != docfmt.KindFloat64 {
			return nil, fmt.Errorf("%w: field %q expects double", backend.ErrTypeMismatch, f.Name)
		}
		return v.Float64, nil
	case smdtype.StorageText:
		if v.Kind != docfmt.KindText {
			return nil, fmt.Errorf("%w: field %q expects text", backend.ErrTypeMismatch, f.Name)
		}
		return v.Text, nil
	case smdtype.StorageBlob:
		if v.Kind != docfmt.KindBinary {
			return nil, fmt.Errorf("%w: field %q expects binary", backend.ErrTypeMismatch, f.Name)
		}
		width := smdtype.BlobWidth(f.Type)
		if len(v.Binary) != width {
			return nil, fmt.Errorf("%w: field %q expects a %d-byte blob, got %d", backend.ErrTypeMismatch, f.Name, width, len(v.Binary))
		}
		return v.Binary, nil
	default:
		return nil, fmt.Errorf("%w: field %q has invalid storage class", backend.ErrBackend, f.Name)
	}
}

// generateCreateTableStmt translates a scheme document into `CREATE TABLE
// `{ns}` (`key` TEXT NOT NULL PRIMARY KEY, c1 TYPE NOT NULL, ...);`,
// mapping each field's type to a SQL column type per the storage-class
// table in spec.md §3.
func generateCreateTableStmt(ns string, scheme docfmt.SchemeDoc) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (`key` TEXT NOT NULL PRIMARY KEY", quoteIdent(ns))
	for _, f := range scheme {
		if err := validateIdentifier(f.Name); err != nil {
			return "", err
		}
		colType, err := sqlColumnType(f.Type)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, ", %s %s NOT NULL", quoteIdent(f.Name), colType)
	}
	b.WriteString(");")
	return b.String(), nil
}

func sqlColumnType(tag smdtype.Tag) (string, error) {
	switch smdtype.StorageClassOf(tag) {
	case smdtype.StorageInt64:
		return "INTEGER", nil
	case smdtype.StorageFloat64:
		return "REAL", nil
	case smdtype.StorageText:
		return "TEXT", nil
	case smdtype.StorageBlob:
		return "BLOB", nil
	default:
		return "", fmt.Errorf("%w: field has unrecognized type tag %d", backend.ErrBackend, tag)
	}
}

func quoteIdent(name string) string {
	return "`" + name + "`"
}

func validateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: sqlbackend: identifier must not be empty", backend.ErrValidation)
	}
	if strings.ContainsRune(name, '`') {
		return fmt.Errorf("%w: sqlbackend: identifier %q must not contain a backtick", backend.ErrValidation, name)
	}
	return nil
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "constraint failed: PRIMARY KEY")
}
