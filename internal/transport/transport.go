// Package transport implements the pooled, bidirectional connection that
// spec.md §1 assumes as an external collaborator ("each shard is reachable
// via a pooled bidirectional connection exposing send(msg)/receive() ->
// msg"). It turns internal/wire's self-delimited byte encodings into
// actual reads and writes against a net.Conn, and pools one long-lived
// connection per shard address so the dispatch engine (internal/smd)
// doesn't pay a dial cost on every batch.
package transport

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dreamware/smd/internal/wire"
)

// Conn wraps a net.Conn with a buffered reader, sized so that the
// self-delimited wire payloads (NUL-terminated strings, length-prefixed
// documents) can be read incrementally without knowing the total message
// length up front.
type Conn struct {
	nc   net.Conn
	r    *bufio.Reader
	mu   sync.Mutex
	addr string
}

func newConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, r: bufio.NewReader(nc), addr: nc.RemoteAddr().String()}
}

// Wrap adapts an already-accepted net.Conn (server side of a listener) to
// a *Conn. Dial is for clients; shard servers use Wrap on each accepted
// connection.
func Wrap(nc net.Conn) *Conn {
	return newConn(nc)
}

// Dial opens a new connection to a shard server address.
func Dial(addr string) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return newConn(nc), nil
}

// Close closes the underlying network connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// SendRequest writes a request header followed by the packed operation
// payloads, all in one call under the connection's write lock so
// concurrent senders on a shared Conn can't interleave message bytes.
func (c *Conn) SendRequest(header wire.RequestHeader, opPayloads [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.nc.Write(wire.EncodeRequestHeader(header)); err != nil {
		return fmt.Errorf("transport: send request header to %s: %w", c.addr, err)
	}
	for _, op := range opPayloads {
		if _, err := c.nc.Write(op); err != nil {
			return fmt.Errorf("transport: send operation payload to %s: %w", c.addr, err)
		}
	}
	return nil
}

// ReadRequestHeader reads and decodes one RequestHeader from the
// connection. Shard servers call this once per incoming request.
func (c *Conn) ReadRequestHeader() (wire.RequestHeader, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return wire.RequestHeader{}, fmt.Errorf("transport: read request header: %w", err)
	}
	h, _, err := wire.DecodeRequestHeader(buf)
	return h, err
}

// ReadCString reads one NUL-terminated string from the connection.
func (c *Conn) ReadCString() (string, error) {
	s, err := c.r.ReadString(0)
	if err != nil {
		return "", fmt.Errorf("transport: read string: %w", err)
	}
	return s[:len(s)-1], nil
}

// ReadDoc reads a u32 length prefix followed by that many bytes.
func (c *Conn) ReadDoc() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("transport: read document length: %w", err)
	}
	n := int(lenBuf[0]) | int(lenBuf[1])<<8 | int(lenBuf[2])<<16 | int(lenBuf[3])<<24
	if n == 0 {
		return nil, nil
	}
	doc := make([]byte, n)
	if _, err := io.ReadFull(c.r, doc); err != nil {
		return nil, fmt.Errorf("transport: read document body: %w", err)
	}
	return doc, nil
}

// ReadApplySchemeOp reads one apply-scheme operation payload directly off
// the wire: ns_bytes, u32 doc_len, doc_len bytes.
func (c *Conn) ReadApplySchemeOp() (wire.ApplySchemeOp, error) {
	ns, err := c.ReadCString()
	if err != nil {
		return wire.ApplySchemeOp{}, err
	}
	doc, err := c.ReadDoc()
	if err != nil {
		return wire.ApplySchemeOp{}, err
	}
	return wire.ApplySchemeOp{Namespace: ns, SchemeDoc: doc}, nil
}

// ReadGetSchemeOp reads one get-scheme operation payload: ns_bytes.
func (c *Conn) ReadGetSchemeOp() (wire.GetSchemeOp, error) {
	ns, err := c.ReadCString()
	if err != nil {
		return wire.GetSchemeOp{}, err
	}
	return wire.GetSchemeOp{Namespace: ns}, nil
}

// ReadValuesOp reads one insert/update operation payload: ns_bytes,
// key_bytes, u32 doc_len, doc_len bytes.
func (c *Conn) ReadValuesOp() (wire.ValuesOp, error) {
	ns, err := c.ReadCString()
	if err != nil {
		return wire.ValuesOp{}, err
	}
	key, err := c.ReadCString()
	if err != nil {
		return wire.ValuesOp{}, err
	}
	doc, err := c.ReadDoc()
	if err != nil {
		return wire.ValuesOp{}, err
	}
	return wire.ValuesOp{Namespace: ns, Key: key, ValuesDoc: doc}, nil
}

// ReadKeyOp reads one delete/get operation payload: ns_bytes, key_bytes.
func (c *Conn) ReadKeyOp() (wire.KeyOp, error) {
	ns, err := c.ReadCString()
	if err != nil {
		return wire.KeyOp{}, err
	}
	key, err := c.ReadCString()
	if err != nil {
		return wire.KeyOp{}, err
	}
	return wire.KeyOp{Namespace: ns, Key: key}, nil
}

// WriteDocReply writes a get/get-scheme reply fragment.
func (c *Conn) WriteDocReply(doc []byte) error {
	_, err := c.nc.Write(wire.EncodeDocReply(doc))
	return err
}

// ReadDocReply reads a get/get-scheme reply fragment off the wire.
func (c *Conn) ReadDocReply() (doc []byte, found bool, err error) {
	doc, err = c.ReadDoc()
	if err != nil {
		return nil, false, err
	}
	return doc, len(doc) > 0, nil
}

// WriteOKReply writes the one-byte ok/fail reply fragment.
func (c *Conn) WriteOKReply(ok bool) error {
	_, err := c.nc.Write(wire.EncodeOKReply(ok))
	return err
}

// ReadOKReply reads the one-byte ok/fail reply fragment off the wire.
func (c *Conn) ReadOKReply() (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return false, fmt.Errorf("transport: read ok reply: %w", err)
	}
	return b[0] != 0, nil
}

// Pool holds one long-lived Conn per shard server address, dialing lazily
// on first use. A batch executing against many namespaces in the same
// shard reuses the same connection instead of paying a dial cost per
// operation (§5: connection acquisition is one of the engine's four
// suspension points).
type Pool struct {
	mu    sync.Mutex
	conns map[string]*Conn
}

// NewPool creates an empty connection pool.
func NewPool() *Pool {
	return &Pool{conns: make(map[string]*Conn)}
}

// Get returns the pooled connection for addr, dialing one if none exists
// yet. The returned Conn is never removed from the pool by Get; callers
// report failures via Evict so a future Get redials.
func (p *Pool) Get(addr string) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[addr]; ok {
		return c, nil
	}
	c, err := Dial(addr)
	if err != nil {
		return nil, err
	}
	p.conns[addr] = c
	return c, nil
}

// Evict closes and removes addr's pooled connection, if any, so the next
// Get dials fresh. Call this after a send/receive failure on addr.
func (p *Pool) Evict(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[addr]; ok {
		c.Close()
		delete(p.conns, addr)
	}
}

// Close closes every pooled connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for addr, c := range p.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.conns, addr)
	}
	return firstErr
}
