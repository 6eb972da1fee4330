// Package shard implements the shard-local server: one Host per shard,
// each wrapping a backend.Backend and serving the wire protocol over
// accepted connections from internal/transport.
package shard

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/dreamware/smd/internal/backend"
	"github.com/dreamware/smd/internal/transport"
	"github.com/dreamware/smd/internal/wire"
)

// Stats tracks per-verb operation counts for a Host, for the /info
// debugging endpoint cmd/shard exposes. All fields are updated with
// atomic ops so handleConn's per-connection goroutines never contend on
// a mutex for bookkeeping alone.
type Stats struct {
	ApplyScheme uint64
	GetScheme   uint64
	Inserts     uint64
	Updates     uint64
	Deletes     uint64
	Gets        uint64
	Searches    uint64
	Errors      uint64
}

// Host serves one shard's wire protocol traffic against a single
// backend.Backend. A shard server process (cmd/shard) runs one Host,
// for the single shard ID it is configured with.
type Host struct {
	ID      int
	Backend backend.Backend
	stats   Stats
}

// NewHost wires a Host to an already-initialized backend. The caller is
// responsible for calling be.Init before Serve accepts any connections,
// and be.Fini after Serve returns.
func NewHost(id int, be backend.Backend) *Host {
	return &Host{ID: id, Backend: be}
}

// Stats returns a snapshot of the host's operation counters.
func (h *Host) Stats() Stats {
	return Stats{
		ApplyScheme: atomic.LoadUint64(&h.stats.ApplyScheme),
		GetScheme:   atomic.LoadUint64(&h.stats.GetScheme),
		Inserts:     atomic.LoadUint64(&h.stats.Inserts),
		Updates:     atomic.LoadUint64(&h.stats.Updates),
		Deletes:     atomic.LoadUint64(&h.stats.Deletes),
		Gets:        atomic.LoadUint64(&h.stats.Gets),
		Searches:    atomic.LoadUint64(&h.stats.Searches),
		Errors:      atomic.LoadUint64(&h.stats.Errors),
	}
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed during shutdown), handling each on its own
// goroutine. It always returns a non-nil error.
func (h *Host) Serve(ln net.Listener) error {
	var wg sync.WaitGroup
	for {
		nc, err := ln.Accept()
		if err != nil {
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.handleConn(transport.Wrap(nc))
		}()
	}
}

// handleConn serves requests off one connection until the peer closes it
// or a framing error makes the connection unrecoverable.
func (h *Host) handleConn(c *transport.Conn) {
	defer c.Close()
	for {
		header, err := c.ReadRequestHeader()
		if err != nil {
			return
		}
		if err := h.handleRequest(c, header); err != nil {
			log.Printf("shard[%d]: %v", h.ID, err)
			return
		}
	}
}

// handleRequest reads and dispatches header.OpCount operation payloads
// of header.Verb's shape, writing one reply fragment per operation in
// the same order they arrived (§4.3: replies preserve per-shard order).
func (h *Host) handleRequest(c *transport.Conn, header wire.RequestHeader) error {
	for i := uint32(0); i < header.OpCount; i++ {
		switch header.Verb {
		case wire.VerbApplyScheme:
			op, err := c.ReadApplySchemeOp()
			if err != nil {
				return err
			}
			atomic.AddUint64(&h.stats.ApplyScheme, 1)
			err = h.Backend.ApplyScheme(op.Namespace, op.SchemeDoc)
			if err := h.writeOK(c, err); err != nil {
				return err
			}

		case wire.VerbGetScheme:
			op, err := c.ReadGetSchemeOp()
			if err != nil {
				return err
			}
			atomic.AddUint64(&h.stats.GetScheme, 1)
			doc, err := h.Backend.GetScheme(op.Namespace)
			if err := h.writeDoc(c, doc, err); err != nil {
				return err
			}

		case wire.VerbInsert:
			op, err := c.ReadValuesOp()
			if err != nil {
				return err
			}
			atomic.AddUint64(&h.stats.Inserts, 1)
			err = h.Backend.Insert(op.Namespace, op.Key, op.ValuesDoc)
			if err := h.writeOK(c, err); err != nil {
				return err
			}

		case wire.VerbUpdate:
			op, err := c.ReadValuesOp()
			if err != nil {
				return err
			}
			atomic.AddUint64(&h.stats.Updates, 1)
			err = h.Backend.Update(op.Namespace, op.Key, op.ValuesDoc)
			if err := h.writeOK(c, err); err != nil {
				return err
			}

		case wire.VerbDelete:
			op, err := c.ReadKeyOp()
			if err != nil {
				return err
			}
			atomic.AddUint64(&h.stats.Deletes, 1)
			err = h.Backend.Delete(op.Namespace, op.Key)
			if err := h.writeOK(c, err); err != nil {
				return err
			}

		case wire.VerbGet:
			op, err := c.ReadKeyOp()
			if err != nil {
				return err
			}
			atomic.AddUint64(&h.stats.Gets, 1)
			doc, err := h.Backend.Get(op.Namespace, op.Key)
			if err := h.writeDoc(c, doc, err); err != nil {
				return err
			}

		case wire.VerbSearch:
			op, err := c.ReadGetSchemeOp()
			if err != nil {
				return err
			}
			atomic.AddUint64(&h.stats.Searches, 1)
			cur, err := h.Backend.Search([]byte(op.Namespace))
			if err != nil {
				if err := h.writeDoc(c, nil, err); err != nil {
					return err
				}
				continue
			}
			doc, ok := cur.Next()
			if !ok {
				err = cur.Err()
			}
			if err := h.writeDoc(c, doc, err); err != nil {
				return err
			}

		default:
			return fmt.Errorf("shard: unknown verb %s", header.Verb)
		}
	}
	return nil
}

// writeOK records a failure (if any) in the error counter and writes the
// one-byte ok/fail reply fragment used by apply-scheme, insert, update,
// and delete.
func (h *Host) writeOK(c *transport.Conn, opErr error) error {
	if opErr != nil {
		atomic.AddUint64(&h.stats.Errors, 1)
		if !isBackendError(opErr) {
			return fmt.Errorf("non-backend error from Backend: %w", opErr)
		}
	}
	return c.WriteOKReply(opErr == nil)
}

// writeDoc writes a get/get-scheme reply fragment. A "not found"-shaped
// backend error (ErrNamespaceUnknown, ErrRecordNotFound) is not itself a
// connection-level failure: it is reported to the client as doc_len==0,
// matching §6's reply-body contract.
func (h *Host) writeDoc(c *transport.Conn, doc []byte, opErr error) error {
	if opErr != nil {
		atomic.AddUint64(&h.stats.Errors, 1)
		if !isBackendError(opErr) {
			return fmt.Errorf("non-backend error from Backend: %w", opErr)
		}
		return c.WriteDocReply(nil)
	}
	return c.WriteDocReply(doc)
}

func isBackendError(err error) bool {
	return errors.Is(err, backend.ErrBackend) || errors.Is(err, backend.ErrConsistency)
}
