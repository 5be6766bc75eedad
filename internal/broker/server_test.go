package broker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trt-pos/camelotd/internal/transport"
	"github.com/trt-pos/camelotd/internal/wire"
)

func TestAddrForFormatsLoopbackAddress(t *testing.T) {
	require.Equal(t, "127.0.0.1:1237", addrFor(1237))
	require.Equal(t, "127.0.0.1:0", addrFor(0))
}

// TestListenAndServeOverRealTCP exercises the full accept loop and one
// handshake over an actual loopback socket, rather than a net.Pipe, to
// confirm ListenAndServe's wiring (listener -> Serve -> handleConn).
func TestListenAndServeOverRealTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	t.Cleanup(cancel)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	read, write := transport.Split(conn)
	req := wire.NewRequest("merlin", wire.NewAction(wire.ActionConnect, "", ""), nil)
	frame, err := req.Encode()
	require.NoError(t, err)
	require.NoError(t, write.WriteFrame(frame))

	kind, payload, err := read.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, wire.KindResponse, kind)
	resp, err := wire.DecodeResponsePayload(payload)
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, resp.Status.Type)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}

func TestHandleConnRejectsWrongKindHandshakeFrame(t *testing.T) {
	s := newTestServer()
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go s.handleConn(serverConn)

	_, write := transport.Split(clientConn)
	resp := wire.NewOKResponse("nobody")
	frame, err := resp.Encode()
	require.NoError(t, err)
	require.NoError(t, write.WriteFrame(frame))

	buf := make([]byte, 1)
	clientConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = clientConn.Read(buf)
	require.Error(t, err)
}
