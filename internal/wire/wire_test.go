package wire

import "testing"

func TestRequestHeaderRoundTrip(t *testing.T) {
	h := RequestHeader{
		Verb:      VerbInsert,
		Semantics: Semantics{Consistency: 1, Safety: 2, Persistency: 3},
		OpCount:   42,
	}
	buf := EncodeRequestHeader(h)
	got, rest, err := DecodeRequestHeader(buf)
	if err != nil {
		t.Fatalf("DecodeRequestHeader: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remaining bytes, got %d", len(rest))
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestApplySchemeOpRoundTrip(t *testing.T) {
	op := ApplySchemeOp{Namespace: "__t_smd__", SchemeDoc: []byte("doc-bytes")}
	buf := EncodeApplySchemeOp(op)
	got, rest, err := DecodeApplySchemeOp(buf)
	if err != nil {
		t.Fatalf("DecodeApplySchemeOp: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remaining bytes, got %d", len(rest))
	}
	if got.Namespace != op.Namespace || string(got.SchemeDoc) != string(op.SchemeDoc) {
		t.Fatalf("got %+v, want %+v", got, op)
	}
}

func TestValuesOpRoundTrip(t *testing.T) {
	op := ValuesOp{Namespace: "ns", Key: "__romio__", ValuesDoc: []byte{1, 2, 3, 4}}
	buf := EncodeValuesOp(op)
	got, rest, err := DecodeValuesOp(buf)
	if err != nil {
		t.Fatalf("DecodeValuesOp: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remaining bytes, got %d", len(rest))
	}
	if got.Namespace != op.Namespace || got.Key != op.Key || string(got.ValuesDoc) != string(op.ValuesDoc) {
		t.Fatalf("got %+v, want %+v", got, op)
	}
}

func TestKeyOpRoundTrip(t *testing.T) {
	op := KeyOp{Namespace: "ns", Key: "k1"}
	buf := EncodeKeyOp(op)
	got, rest, err := DecodeKeyOp(buf)
	if err != nil {
		t.Fatalf("DecodeKeyOp: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remaining bytes, got %d", len(rest))
	}
	if got != op {
		t.Fatalf("got %+v, want %+v", got, op)
	}
}

func TestSequentialOpsInOneMessage(t *testing.T) {
	// Two get operations packed into one message body, as the engine
	// would build for a shard with two queued get operations (§4.3).
	var body []byte
	body = append(body, EncodeKeyOp(KeyOp{Namespace: "ns", Key: "a"})...)
	body = append(body, EncodeKeyOp(KeyOp{Namespace: "ns", Key: "b"})...)

	first, rest, err := DecodeKeyOp(body)
	if err != nil {
		t.Fatalf("DecodeKeyOp(first): %v", err)
	}
	if first.Key != "a" {
		t.Fatalf("first.Key = %q, want %q", first.Key, "a")
	}
	second, rest, err := DecodeKeyOp(rest)
	if err != nil {
		t.Fatalf("DecodeKeyOp(second): %v", err)
	}
	if second.Key != "b" {
		t.Fatalf("second.Key = %q, want %q", second.Key, "b")
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remaining bytes, got %d", len(rest))
	}
}

func TestDocReplyNotFound(t *testing.T) {
	buf := EncodeDocReply(nil)
	doc, found, rest, err := DecodeDocReply(buf)
	if err != nil {
		t.Fatalf("DecodeDocReply: %v", err)
	}
	if found {
		t.Fatal("expected found == false for empty doc")
	}
	if len(doc) != 0 {
		t.Fatalf("expected empty doc, got %d bytes", len(doc))
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remaining bytes, got %d", len(rest))
	}
}

func TestDocReplyFound(t *testing.T) {
	buf := EncodeDocReply([]byte("hello"))
	doc, found, _, err := DecodeDocReply(buf)
	if err != nil {
		t.Fatalf("DecodeDocReply: %v", err)
	}
	if !found {
		t.Fatal("expected found == true")
	}
	if string(doc) != "hello" {
		t.Fatalf("doc = %q, want %q", doc, "hello")
	}
}

func TestOKReplyRoundTrip(t *testing.T) {
	for _, want := range []bool{true, false} {
		buf := EncodeOKReply(want)
		got, rest, err := DecodeOKReply(buf)
		if err != nil {
			t.Fatalf("DecodeOKReply: %v", err)
		}
		if got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		if len(rest) != 0 {
			t.Fatalf("expected no remaining bytes, got %d", len(rest))
		}
	}
}

func TestDecodeTruncatedPayloads(t *testing.T) {
	if _, _, err := DecodeRequestHeader([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated header")
	}
	if _, _, err := DecodeKeyOp([]byte("no-nul-terminator")); err == nil {
		t.Error("expected error for missing NUL terminator")
	}
	if _, _, _, err := DecodeDocReply([]byte{5, 0, 0, 0, 1, 2}); err == nil {
		t.Error("expected error when declared doc_len exceeds available bytes")
	}
}
