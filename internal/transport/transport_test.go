package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/smd/internal/wire"
)

func pipe(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return newConn(a), newConn(b)
}

func TestSendRequestThenReadHeaderAndValuesOp(t *testing.T) {
	client, server := pipe(t)

	op := wire.ValuesOp{Namespace: "ns", Key: "k1", ValuesDoc: []byte{1, 2, 3}}
	header := wire.RequestHeader{Verb: wire.VerbInsert, OpCount: 1}

	done := make(chan error, 1)
	go func() {
		done <- client.SendRequest(header, [][]byte{wire.EncodeValuesOp(op)})
	}()

	gotHeader, err := server.ReadRequestHeader()
	require.NoError(t, err)
	require.Equal(t, header, gotHeader)

	gotOp, err := server.ReadValuesOp()
	require.NoError(t, err)
	require.Equal(t, op, gotOp)

	require.NoError(t, <-done)
}

func TestDocReplyRoundTripOverConn(t *testing.T) {
	client, server := pipe(t)

	done := make(chan error, 1)
	go func() {
		done <- server.WriteDocReply([]byte("hello"))
	}()

	doc, found, err := client.ReadDocReply()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello", string(doc))
	require.NoError(t, <-done)
}

func TestDocReplyNotFoundOverConn(t *testing.T) {
	client, server := pipe(t)

	done := make(chan error, 1)
	go func() {
		done <- server.WriteDocReply(nil)
	}()

	doc, found, err := client.ReadDocReply()
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, doc)
	require.NoError(t, <-done)
}

func TestOKReplyRoundTripOverConn(t *testing.T) {
	client, server := pipe(t)

	done := make(chan error, 1)
	go func() {
		done <- server.WriteOKReply(true)
	}()

	ok, err := client.ReadOKReply()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, <-done)
}

func TestPoolReusesConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go ioDiscard(c)
		}
	}()

	pool := NewPool()
	defer pool.Close()

	c1, err := pool.Get(ln.Addr().String())
	require.NoError(t, err)
	c2, err := pool.Get(ln.Addr().String())
	require.NoError(t, err)
	require.Same(t, c1, c2)

	pool.Evict(ln.Addr().String())
	c3, err := pool.Get(ln.Addr().String())
	require.NoError(t, err)
	require.NotSame(t, c1, c3)
}

func ioDiscard(c net.Conn) {
	buf := make([]byte, 4096)
	for {
		if _, err := c.Read(buf); err != nil {
			c.Close()
			return
		}
	}
}
