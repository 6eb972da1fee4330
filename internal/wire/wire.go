package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Verb identifies which SMD operation a wire payload carries (§4.3, §6).
type Verb uint8

const (
	VerbApplyScheme Verb = iota
	VerbGetScheme
	VerbInsert
	VerbUpdate
	VerbDelete
	VerbGet
	VerbSearch
)

func (v Verb) String() string {
	switch v {
	case VerbApplyScheme:
		return "apply-scheme"
	case VerbGetScheme:
		return "get-scheme"
	case VerbInsert:
		return "insert"
	case VerbUpdate:
		return "update"
	case VerbDelete:
		return "delete"
	case VerbGet:
		return "get"
	case VerbSearch:
		return "search"
	default:
		return fmt.Sprintf("wire.Verb(%d)", uint8(v))
	}
}

// Semantics carries the batch's consistency/safety/persistency template.
// Its contents are opaque to the dispatch engine and backend (§4.3); the
// engine only needs to place it on the wire and hand it to whichever
// transport or backend cares about it.
type Semantics struct {
	Consistency uint8
	Safety      uint8
	Persistency uint8
}

// RequestHeader precedes the packed operation payloads of one per-shard
// request message.
type RequestHeader struct {
	Verb      Verb
	Semantics Semantics
	OpCount   uint32
}

// EncodeRequestHeader serializes a RequestHeader.
func EncodeRequestHeader(h RequestHeader) []byte {
	buf := make([]byte, 1+3+4)
	buf[0] = byte(h.Verb)
	buf[1] = h.Semantics.Consistency
	buf[2] = h.Semantics.Safety
	buf[3] = h.Semantics.Persistency
	binary.LittleEndian.PutUint32(buf[4:], h.OpCount)
	return buf
}

// DecodeRequestHeader parses a RequestHeader from the front of buf,
// returning the remaining bytes.
func DecodeRequestHeader(buf []byte) (RequestHeader, []byte, error) {
	if len(buf) < 8 {
		return RequestHeader{}, nil, fmt.Errorf("wire: request header truncated: need 8 bytes, have %d", len(buf))
	}
	h := RequestHeader{
		Verb: Verb(buf[0]),
		Semantics: Semantics{
			Consistency: buf[1],
			Safety:      buf[2],
			Persistency: buf[3],
		},
		OpCount: binary.LittleEndian.Uint32(buf[4:8]),
	}
	return h, buf[8:], nil
}

// ApplySchemeOp is the operation payload for the apply-scheme verb: a
// namespace and an encoded scheme document.
type ApplySchemeOp struct {
	Namespace string
	SchemeDoc []byte
}

// EncodeApplySchemeOp serializes an apply-scheme operation payload:
// ns_bytes (NUL-terminated), u32 doc_len, doc_len bytes of doc (§6).
func EncodeApplySchemeOp(op ApplySchemeOp) []byte {
	var buf bytes.Buffer
	writeCString(&buf, op.Namespace)
	writeU32(&buf, uint32(len(op.SchemeDoc)))
	buf.Write(op.SchemeDoc)
	return buf.Bytes()
}

// DecodeApplySchemeOp parses an apply-scheme operation payload from the
// front of buf, returning the remaining bytes.
func DecodeApplySchemeOp(buf []byte) (ApplySchemeOp, []byte, error) {
	ns, rest, err := readCString(buf)
	if err != nil {
		return ApplySchemeOp{}, nil, err
	}
	docLen, rest, err := readU32(rest)
	if err != nil {
		return ApplySchemeOp{}, nil, err
	}
	doc, rest, err := readBytes(rest, int(docLen))
	if err != nil {
		return ApplySchemeOp{}, nil, err
	}
	return ApplySchemeOp{Namespace: ns, SchemeDoc: doc}, rest, nil
}

// GetSchemeOp is the operation payload for the get-scheme verb.
type GetSchemeOp struct {
	Namespace string
}

// EncodeGetSchemeOp serializes a get-scheme operation payload: ns_bytes
// (NUL-terminated).
func EncodeGetSchemeOp(op GetSchemeOp) []byte {
	var buf bytes.Buffer
	writeCString(&buf, op.Namespace)
	return buf.Bytes()
}

// DecodeGetSchemeOp parses a get-scheme operation payload.
func DecodeGetSchemeOp(buf []byte) (GetSchemeOp, []byte, error) {
	ns, rest, err := readCString(buf)
	if err != nil {
		return GetSchemeOp{}, nil, err
	}
	return GetSchemeOp{Namespace: ns}, rest, nil
}

// ValuesOp is the shared operation payload shape for insert and update: a
// namespace, a key, and an encoded values document.
type ValuesOp struct {
	Namespace string
	Key       string
	ValuesDoc []byte
}

// EncodeValuesOp serializes an insert/update operation payload: ns_bytes,
// key_bytes (both NUL-terminated), u32 doc_len, doc_len bytes of doc (§6).
func EncodeValuesOp(op ValuesOp) []byte {
	var buf bytes.Buffer
	writeCString(&buf, op.Namespace)
	writeCString(&buf, op.Key)
	writeU32(&buf, uint32(len(op.ValuesDoc)))
	buf.Write(op.ValuesDoc)
	return buf.Bytes()
}

// DecodeValuesOp parses an insert/update operation payload from the front
// of buf, returning the remaining bytes.
func DecodeValuesOp(buf []byte) (ValuesOp, []byte, error) {
	ns, rest, err := readCString(buf)
	if err != nil {
		return ValuesOp{}, nil, err
	}
	key, rest, err := readCString(rest)
	if err != nil {
		return ValuesOp{}, nil, err
	}
	docLen, rest, err := readU32(rest)
	if err != nil {
		return ValuesOp{}, nil, err
	}
	doc, rest, err := readBytes(rest, int(docLen))
	if err != nil {
		return ValuesOp{}, nil, err
	}
	return ValuesOp{Namespace: ns, Key: key, ValuesDoc: doc}, rest, nil
}

// KeyOp is the operation payload shape for delete and get: a namespace and
// a key, both NUL-terminated, with no body.
type KeyOp struct {
	Namespace string
	Key       string
}

// EncodeKeyOp serializes a delete/get operation payload.
func EncodeKeyOp(op KeyOp) []byte {
	var buf bytes.Buffer
	writeCString(&buf, op.Namespace)
	writeCString(&buf, op.Key)
	return buf.Bytes()
}

// DecodeKeyOp parses a delete/get operation payload from the front of buf,
// returning the remaining bytes.
func DecodeKeyOp(buf []byte) (KeyOp, []byte, error) {
	ns, rest, err := readCString(buf)
	if err != nil {
		return KeyOp{}, nil, err
	}
	key, rest, err := readCString(rest)
	if err != nil {
		return KeyOp{}, nil, err
	}
	return KeyOp{Namespace: ns, Key: key}, rest, nil
}

// EncodeDocReply serializes a get/get-scheme reply fragment: u32 doc_len,
// then doc_len bytes of the encoded document. A nil or empty doc encodes
// doc_len == 0, signaling "not found" (§6).
func EncodeDocReply(doc []byte) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(doc)))
	buf.Write(doc)
	return buf.Bytes()
}

// DecodeDocReply parses a get/get-scheme reply fragment from the front of
// buf, returning the remaining bytes. A zero-length doc (found == false)
// signals "not found".
func DecodeDocReply(buf []byte) (doc []byte, found bool, rest []byte, err error) {
	docLen, rest, err := readU32(buf)
	if err != nil {
		return nil, false, nil, err
	}
	doc, rest, err = readBytes(rest, int(docLen))
	if err != nil {
		return nil, false, nil, err
	}
	return doc, docLen > 0, rest, nil
}

// EncodeOKReply serializes the one-byte reply fragment used by verbs that
// don't read a document back (apply-scheme, insert, update, delete).
func EncodeOKReply(ok bool) []byte {
	if ok {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeOKReply parses a one-byte ok/fail reply fragment from the front of
// buf, returning the remaining bytes.
func DecodeOKReply(buf []byte) (ok bool, rest []byte, err error) {
	if len(buf) < 1 {
		return false, nil, fmt.Errorf("wire: ok reply truncated")
	}
	return buf[0] != 0, buf[1:], nil
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

func readCString(buf []byte) (string, []byte, error) {
	idx := bytes.IndexByte(buf, 0)
	if idx < 0 {
		return "", nil, fmt.Errorf("wire: unterminated string in payload")
	}
	return string(buf[:idx]), buf[idx+1:], nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func readU32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, fmt.Errorf("wire: u32 truncated: need 4 bytes, have %d", len(buf))
	}
	return binary.LittleEndian.Uint32(buf[:4]), buf[4:], nil
}

func readBytes(buf []byte, n int) ([]byte, []byte, error) {
	if n < 0 || len(buf) < n {
		return nil, nil, fmt.Errorf("wire: payload truncated: need %d bytes, have %d", n, len(buf))
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, buf[n:], nil
}
